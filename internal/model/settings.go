package model

// BasketEntry is one weighted member of the buy basket.
type BasketEntry struct {
	Symbol string  `json:"symbol" yaml:"symbol"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Settings is the configuration snapshot consumed by one decision cycle.
type Settings struct {
	MainSymbol       string        `json:"main_symbol" yaml:"main_symbol"`
	RSIPeriod        int           `json:"rsi_period" yaml:"rsi_period"`
	SMAWindow        int           `json:"sma_window" yaml:"sma_window"`
	BuyLevels        []float64     `json:"buy_levels" yaml:"buy_levels"`       // strictly descending
	StageAmounts     []float64     `json:"stage_amounts" yaml:"stage_amounts"` // cash budget per stage, 100% basis
	CheckTimes       []string      `json:"check_times" yaml:"check_times"`     // "HH:MM" in Timezone
	ToleranceMinutes int           `json:"tolerance_minutes" yaml:"tolerance_minutes"`
	Timezone         string        `json:"timezone" yaml:"timezone"`
	Basket           []BasketEntry `json:"basket" yaml:"basket"`
	RebalanceBudget  float64       `json:"rebalance_budget" yaml:"rebalance_budget"`
	RebalanceMonth   int           `json:"rebalance_month" yaml:"rebalance_month"`
	RebalanceDay     int           `json:"rebalance_day" yaml:"rebalance_day"`
}

// Clone returns a deep copy so a cycle never shares slices with the source.
func (s Settings) Clone() Settings {
	c := s
	c.BuyLevels = append([]float64(nil), s.BuyLevels...)
	c.StageAmounts = append([]float64(nil), s.StageAmounts...)
	c.CheckTimes = append([]string(nil), s.CheckTimes...)
	c.Basket = append([]BasketEntry(nil), s.Basket...)
	return c
}
