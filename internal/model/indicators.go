package model

// IndicatorPoint is aligned 1:1 with a price series. RSI and SMA are nil
// until the series has enough history to seed their windows.
type IndicatorPoint struct {
	Index int      `json:"index"`
	RSI   *float64 `json:"rsi"`
	SMA   *float64 `json:"sma"`
}
