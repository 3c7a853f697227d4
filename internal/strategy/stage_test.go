package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"StageSentinel/internal/model"
)

func TestDecideStage_DeepestWins(t *testing.T) {
	ladder := []float64{43, 36, 30}
	tests := []struct {
		rsi  float64
		want model.Stage
	}{
		{50, model.NoStage},
		{43.01, model.NoStage},
		{43, 0},
		{40, 0},
		{36, 1},
		{32, 1},
		{30, 2},
		{29, 2},
		{0, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DecideStage(tt.rsi, ladder), "rsi %.2f", tt.rsi)
	}
}

func TestValidateLadder(t *testing.T) {
	assert.NoError(t, ValidateLadder([]float64{43, 36, 30}))
	assert.ErrorIs(t, ValidateLadder(nil), ErrInvalidLadder)
	assert.ErrorIs(t, ValidateLadder([]float64{30, 36}), ErrInvalidLadder)
	assert.ErrorIs(t, ValidateLadder([]float64{43, 43}), ErrInvalidLadder)
}

func TestStageLabel(t *testing.T) {
	assert.Equal(t, "1단계", model.Stage(0).Label())
	assert.Equal(t, "3단계", model.Stage(2).Label())
	assert.Equal(t, "", model.NoStage.Label())
}
