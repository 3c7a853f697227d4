package calculator

import (
	"errors"
	"math"

	"StageSentinel/internal/model"
)

// HighLow scans the most recent `lookback` bars and returns the high and low.
func HighLow(bars []model.Bar, lookback int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	n := len(bars)
	start := n - lookback
	if start < 0 || lookback <= 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low, nil
}

// Drawdown returns how far current sits below high, in percent (0 when at or above).
func Drawdown(current, high float64) float64 {
	if high <= 0 || current >= high {
		return 0
	}
	return (high - current) / high * 100
}
