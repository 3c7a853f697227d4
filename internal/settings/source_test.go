package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StageSentinel/internal/model"
)

func baseSettings() model.Settings {
	return model.Settings{
		MainSymbol:   "069500",
		RSIPeriod:    14,
		BuyLevels:    []float64{43, 36, 30},
		StageAmounts: []float64{100, 200, 300},
		CheckTimes:   []string{"10:30"},
		Basket:       []model.BasketEntry{{Symbol: "069500", Weight: 1}},
	}
}

func writeFile(t *testing.T, path, body string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestSource_NoFileReturnsBase(t *testing.T) {
	src := NewSource(baseSettings(), filepath.Join(t.TempDir(), "missing.json"))
	got, err := src.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, baseSettings(), got)
}

func TestSource_OverlayReplacesPresentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, `{"buy_levels":[40,35],"stage_amounts":[10,20]}`, time.Now().Add(-time.Hour))

	got, err := NewSource(baseSettings(), path).Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 35}, got.BuyLevels)
	assert.Equal(t, []float64{10, 20}, got.StageAmounts)
	assert.Equal(t, "069500", got.MainSymbol)
	assert.Equal(t, 14, got.RSIPeriod)
}

func TestSource_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	t0 := time.Now().Add(-time.Hour)
	writeFile(t, path, `{"rsi_period":10}`, t0)
	src := NewSource(baseSettings(), path)

	got, err := src.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 10, got.RSIPeriod)

	writeFile(t, path, `{"rsi_period":21}`, t0.Add(time.Minute))
	got, err = src.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 21, got.RSIPeriod)
}

func TestSource_SnapshotIsIsolated(t *testing.T) {
	src := NewSource(baseSettings(), "")
	a, err := src.Snapshot()
	require.NoError(t, err)
	a.BuyLevels[0] = 99
	a.Basket[0].Symbol = "X"

	b, err := src.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 43.0, b.BuyLevels[0])
	assert.Equal(t, "069500", b.Basket[0].Symbol)
}

func TestSource_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, `{not json`, time.Now())
	_, err := NewSource(baseSettings(), path).Snapshot()
	assert.Error(t, err)
}
