package calculator

import (
	"errors"
	"iter"

	"StageSentinel/internal/model"
)

var (
	// ErrInsufficientData is returned when the series is shorter than period+1.
	// It is an expected outcome, not a failure.
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidPeriod    = errors.New("period must be positive")
)

// RSISeq returns the Cutler-smoothed RSI aligned to closes. Points before
// index `period` carry a nil RSI.
//
// Averages are seeded with the simple mean of the first `period` gains and
// losses, then slide as a fixed-width window:
// avg[i] = avg[i-1] + (x[i] - x[i-period]) / period.
// When the average loss is zero the RSI is 100, including the flat case
// where the average gain is zero as well.
func RSISeq(closes []float64, period int) (iter.Seq[model.IndicatorPoint], error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(closes) < period+1 {
		return nil, ErrInsufficientData
	}

	return func(yield func(model.IndicatorPoint) bool) {
		gains := make([]float64, len(closes))
		losses := make([]float64, len(closes))
		var sumGain, sumLoss float64

		for i := range closes {
			p := model.IndicatorPoint{Index: i}
			if i > 0 {
				change := closes[i] - closes[i-1]
				if change > 0 {
					gains[i] = change
				} else {
					losses[i] = -change
				}
				sumGain += gains[i]
				sumLoss += losses[i]
				if i > period {
					sumGain -= gains[i-period]
					sumLoss -= losses[i-period]
				}
			}
			if i >= period {
				v := rsiValue(sumGain/float64(period), sumLoss/float64(period))
				p.RSI = &v
			}
			if !yield(p) {
				return
			}
		}
	}, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	// Rolling sums can drift a hair below zero after long runs of equal moves.
	if avgLoss <= 1e-12 {
		return 100.0
	}
	if avgGain <= 1e-12 {
		return 0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// LatestRSI returns the most recent RSI value of the series.
func LatestRSI(closes []float64, period int) (float64, error) {
	seq, err := RSISeq(closes, period)
	if err != nil {
		return 0, err
	}
	var last *float64
	for p := range seq {
		if p.RSI != nil {
			last = p.RSI
		}
	}
	if last == nil {
		return 0, ErrInsufficientData
	}
	return *last, nil
}

// Points zips the RSI and SMA sequences into one indicator sequence.
func Points(closes []float64, rsiPeriod, smaWindow int) (iter.Seq[model.IndicatorPoint], error) {
	rsi, err := RSISeq(closes, rsiPeriod)
	if err != nil {
		return nil, err
	}
	sma, err := SMASeq(closes, smaWindow)
	if err != nil {
		return nil, err
	}
	return func(yield func(model.IndicatorPoint) bool) {
		next, stop := iter.Pull(sma)
		defer stop()
		for p := range rsi {
			if avg, ok := next(); ok {
				p.SMA = avg
			}
			if !yield(p) {
				return
			}
		}
	}, nil
}

// ValidateSeries reports an error if bars are not strictly ascending by time.
func ValidateSeries(bars []model.Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return errors.New("series must be strictly ascending with no duplicate timestamps")
		}
	}
	return nil
}
