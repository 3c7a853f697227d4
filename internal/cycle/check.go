package cycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"StageSentinel/internal/calculator"
	"StageSentinel/internal/gate"
	"StageSentinel/internal/model"
	"StageSentinel/internal/notifier"
	"StageSentinel/internal/strategy"
)

// drawdownLookback is the number of daily bars scanned for the reference high.
const drawdownLookback = 252

// Check runs one decision cycle: time gate, RSI of the main symbol, stage
// ladder, dedup gate, basket allocation and alert insert. force bypasses
// the time gate only.
func (r *Runner) Check(ctx context.Context, force bool) model.CycleResult {
	now := r.now()
	res := newResult(model.CycleCheck, now)

	s, loc, err := r.snapshot()
	if err != nil {
		return fail(res, model.ReasonInvalidSettings, err)
	}
	now = now.In(loc)

	if !force {
		tg, err := gate.NewTimeGate(s.CheckTimes, s.ToleranceMinutes, s.Timezone)
		if err != nil {
			return fail(res, model.ReasonInvalidSettings, err)
		}
		if !tg.Allow(now) {
			return skip(res, model.ReasonOutsideWindow, now.Format("15:04"))
		}
	}

	bars, quote, err := r.Collector.Series(ctx, s.MainSymbol, now)
	if err != nil {
		return fail(res, model.ReasonPriceFetch, err)
	}
	if err := calculator.ValidateSeries(bars); err != nil {
		return fail(res, model.ReasonPriceFetch, err)
	}
	rsi, err := calculator.LatestRSI(model.Closes(bars), s.RSIPeriod)
	if errors.Is(err, calculator.ErrInsufficientData) {
		return skip(res, model.ReasonInsufficientData, fmt.Sprintf("%d bars for period %d", len(bars), s.RSIPeriod))
	}
	if err != nil {
		return fail(res, model.ReasonInvalidSettings, err)
	}
	res.RSI = &rsi

	stage := strategy.DecideStage(rsi, s.BuyLevels)
	res.Stage = stage
	if stage == model.NoStage {
		return skip(res, model.ReasonNoStage, fmt.Sprintf("RSI %.2f above %.2f", rsi, s.BuyLevels[0]))
	}
	label := stage.Label()
	res.StageLabel = label

	// Unlocked pre-check spares basket price fetches on repeated ticks.
	dg := r.dedupGate(loc)
	if d, err := dg.Check(ctx, label, gate.ScopeWindow, now); err != nil {
		return fail(res, model.ReasonStore, err)
	} else if d.Duplicate {
		return skip(res, model.ReasonDuplicate, fmt.Sprintf("alert #%d at %s", d.Existing.ID, d.Existing.CreatedAt.In(loc).Format("15:04:05")))
	}

	prices := r.Collector.Prices(ctx, basketSymbols(s.Basket, s.MainSymbol))
	prices[s.MainSymbol] = bars[len(bars)-1].Close
	if quote != nil {
		prices[s.MainSymbol] = quote.Price
	}
	allocs, err := strategy.Allocate(s, stage, prices)
	if err != nil {
		return fail(res, model.ReasonInvalidSettings, err)
	}
	res.Allocations = allocs

	note := ""
	if high, _, err := calculator.HighLow(bars, drawdownLookback); err == nil {
		last := bars[len(bars)-1].Close
		note = notifier.FormatDrawdown(last, high, calculator.Drawdown(last, high))
	}
	alerts := buildAlerts(allocs, rsi, label, s.MainSymbol, note, now)

	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := dg.Check(ctx, label, gate.ScopeWindow, now)
	if err != nil {
		return fail(res, model.ReasonStore, err)
	}
	if d.Duplicate {
		return skip(res, model.ReasonDuplicate, fmt.Sprintf("alert #%d at %s", d.Existing.ID, d.Existing.CreatedAt.In(loc).Format("15:04:05")))
	}

	ids, err := r.insertAlerts(ctx, alerts)
	res.AlertIDs = ids
	if err != nil {
		return fail(res, model.ReasonStore, err)
	}
	if len(ids) == 0 {
		return skip(res, model.ReasonDuplicate, "idempotency key exists")
	}
	res.Status = model.StatusOK
	res.Message = fmt.Sprintf("%s RSI %.2f: %d alerts", label, rsi, len(ids))
	log.Printf("[INFO] CHECK %s %s (RSI %.2f) recorded %d alerts", res.RunID, label, rsi, len(ids))
	return res
}

// buildAlerts turns allocations into unsaved alerts sharing one timestamp.
// The main symbol line carries note.
func buildAlerts(allocs []model.Allocation, rsi float64, label, mainSymbol, note string, now time.Time) []model.Alert {
	alerts := make([]model.Alert, 0, len(allocs))
	for _, a := range allocs {
		msg := notifier.FormatAllocation(a)
		if a.Symbol == mainSymbol && note != "" {
			msg += " · " + note
		}
		alerts = append(alerts, model.Alert{
			Symbol:     a.Symbol,
			RSI:        rsi,
			StageLabel: label,
			Message:    msg,
			Quantity:   a.Quantity,
			Budget:     a.Budget,
			Price:      a.Price,
			CreatedAt:  now,
		})
	}
	return alerts
}

func basketSymbols(basket []model.BasketEntry, exclude string) []string {
	out := make([]string, 0, len(basket))
	for _, e := range basket {
		if e.Symbol != exclude {
			out = append(out, e.Symbol)
		}
	}
	return out
}
