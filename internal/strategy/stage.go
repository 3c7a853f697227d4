package strategy

import (
	"errors"
	"fmt"

	"StageSentinel/internal/model"
)

// ErrInvalidLadder is returned for empty or non-descending threshold ladders.
var ErrInvalidLadder = errors.New("invalid threshold ladder")

// ValidateLadder checks that buy levels are non-empty and strictly descending.
func ValidateLadder(levels []float64) error {
	if len(levels) == 0 {
		return fmt.Errorf("%w: no buy levels", ErrInvalidLadder)
	}
	for i := 1; i < len(levels); i++ {
		if levels[i] >= levels[i-1] {
			return fmt.Errorf("%w: level %d (%.2f) must be below level %d (%.2f)",
				ErrInvalidLadder, i, levels[i], i-1, levels[i-1])
		}
	}
	return nil
}

// DecideStage maps an RSI value to the deepest stage whose threshold it satisfies.
// The ladder is scanned from the lowest (most restrictive) threshold upward, so
// with [43,36,30] an RSI of 29 is stage 2 even though 43 and 36 also match.
func DecideStage(rsi float64, levels []float64) model.Stage {
	for i := len(levels) - 1; i >= 0; i-- {
		if rsi <= levels[i] {
			return model.Stage(i)
		}
	}
	return model.NoStage
}
