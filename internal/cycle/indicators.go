package cycle

import (
	"context"
	"fmt"

	"StageSentinel/internal/calculator"
	"StageSentinel/internal/model"
	"StageSentinel/internal/strategy"
)

// Snapshot is the read-only view of the main symbol's indicator state.
type Snapshot struct {
	Settings model.Settings         `json:"settings"`
	Quote    *model.Quote           `json:"quote,omitempty"`
	RSI      *float64               `json:"rsi,omitempty"`
	SMA      *float64               `json:"sma,omitempty"`
	Stage    model.Stage            `json:"stage"`
	Label    string                 `json:"stage_label,omitempty"`
	Points   []model.IndicatorPoint `json:"points"`
}

// Indicators computes the RSI/SMA series of the main symbol without any
// gating or writes. tail limits the returned points (0 returns all).
func (r *Runner) Indicators(ctx context.Context, tail int) (*Snapshot, error) {
	s, loc, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	bars, quote, err := r.Collector.Series(ctx, s.MainSymbol, r.now().In(loc))
	if err != nil {
		return nil, err
	}
	if err := calculator.ValidateSeries(bars); err != nil {
		return nil, err
	}

	closes := model.Closes(bars)
	snap := &Snapshot{Settings: s, Quote: quote, Stage: model.NoStage}
	if sma, err := calculator.CalculateSMA(closes, s.SMAWindow); err == nil {
		snap.SMA = &sma
	}
	seq, err := calculator.Points(closes, s.RSIPeriod, s.SMAWindow)
	if err != nil {
		// not enough history for RSI; report settings only
		return snap, nil
	}
	for p := range seq {
		snap.Points = append(snap.Points, p)
	}
	if n := len(snap.Points); n > 0 && snap.Points[n-1].RSI != nil {
		rsi := *snap.Points[n-1].RSI
		snap.RSI = &rsi
		snap.Stage = strategy.DecideStage(rsi, s.BuyLevels)
		snap.Label = snap.Stage.Label()
	}
	if tail > 0 && len(snap.Points) > tail {
		snap.Points = snap.Points[len(snap.Points)-tail:]
	}
	return snap, nil
}

// Summary renders a one-line description of the snapshot for logs.
func (s *Snapshot) Summary() string {
	if s.RSI == nil {
		return fmt.Sprintf("%s RSI n/a", s.Settings.MainSymbol)
	}
	return fmt.Sprintf("%s RSI %.2f stage %q", s.Settings.MainSymbol, *s.RSI, s.Label)
}
