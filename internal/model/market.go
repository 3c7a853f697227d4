package model

import "time"

// Bar represents a single daily candlestick. A price series is an ascending []Bar.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote is the latest intraday price snapshot for a symbol.
type Quote struct {
	Symbol string
	Price  float64
	High   float64
	AsOf   time.Time
}

// Closes extracts the closing prices of bars in order.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
