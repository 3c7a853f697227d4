package config

import (
	"fmt"

	"StageSentinel/internal/gate"
	"StageSentinel/internal/model"
	"StageSentinel/internal/strategy"
)

// FieldError names the settings field that failed validation.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// ValidateSettings rejects a snapshot no cycle may act on. The returned
// error is a *FieldError.
func ValidateSettings(s model.Settings) error {
	if s.MainSymbol == "" {
		return &FieldError{Field: "main_symbol", Msg: "is required"}
	}
	if s.RSIPeriod <= 0 {
		return &FieldError{Field: "rsi_period", Msg: "must be positive"}
	}
	if s.SMAWindow <= 0 {
		return &FieldError{Field: "sma_window", Msg: "must be positive"}
	}
	if err := strategy.ValidateLadder(s.BuyLevels); err != nil {
		return &FieldError{Field: "buy_levels", Msg: err.Error()}
	}
	if len(s.StageAmounts) != len(s.BuyLevels) {
		return &FieldError{Field: "stage_amounts", Msg: fmt.Sprintf("has %d entries for %d buy levels", len(s.StageAmounts), len(s.BuyLevels))}
	}
	for i, a := range s.StageAmounts {
		if a < 0 {
			return &FieldError{Field: "stage_amounts", Msg: fmt.Sprintf("entry %d is negative", i)}
		}
	}
	if _, err := gate.ParseCheckTimes(s.CheckTimes); err != nil {
		return &FieldError{Field: "check_times", Msg: err.Error()}
	}
	if s.ToleranceMinutes < 0 {
		return &FieldError{Field: "tolerance_minutes", Msg: "must not be negative"}
	}
	if _, err := gate.LoadLocation(s.Timezone); err != nil {
		return &FieldError{Field: "timezone", Msg: err.Error()}
	}
	if len(s.Basket) == 0 {
		return &FieldError{Field: "basket", Msg: "is empty"}
	}
	total := 0.0
	for _, e := range s.Basket {
		if e.Symbol == "" {
			return &FieldError{Field: "basket", Msg: "entry without symbol"}
		}
		if e.Weight < 0 {
			return &FieldError{Field: "basket", Msg: fmt.Sprintf("negative weight for %s", e.Symbol)}
		}
		total += e.Weight
	}
	if total <= 0 {
		return &FieldError{Field: "basket", Msg: "weights sum to zero"}
	}
	if s.RebalanceMonth < 0 || s.RebalanceMonth > 12 {
		return &FieldError{Field: "rebalance_month", Msg: "must be 1-12 (0 disables)"}
	}
	if s.RebalanceDay < 0 || s.RebalanceDay > 31 {
		return &FieldError{Field: "rebalance_day", Msg: "must be 1-31"}
	}
	return nil
}
