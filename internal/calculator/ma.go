package calculator

import (
	"errors"
	"iter"
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// SMASeq yields a rolling simple moving average per input point, nil until
// `window` points are available.
func SMASeq(prices []float64, window int) (iter.Seq[*float64], error) {
	if window <= 0 {
		return nil, ErrInvalidPeriod
	}
	return func(yield func(*float64) bool) {
		sum := 0.0
		for i, p := range prices {
			sum += p
			if i >= window {
				sum -= prices[i-window]
			}
			var out *float64
			if i >= window-1 {
				v := sum / float64(window)
				out = &v
			}
			if !yield(out) {
				return
			}
		}
	}, nil
}
