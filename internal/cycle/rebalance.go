package cycle

import (
	"context"
	"fmt"
	"log"

	"StageSentinel/internal/gate"
	"StageSentinel/internal/model"
	"StageSentinel/internal/strategy"
)

// Rebalance records the annual rebalance recommendation on the configured
// month and day. At most one rebalance is recorded per calendar year; force
// bypasses the date check but not the yearly dedup.
func (r *Runner) Rebalance(ctx context.Context, force bool) model.CycleResult {
	now := r.now()
	res := newResult(model.CycleRebalance, now)
	res.StageLabel = model.RebalanceLabel

	s, loc, err := r.snapshot()
	if err != nil {
		return fail(res, model.ReasonInvalidSettings, err)
	}
	now = now.In(loc)

	if !force {
		if s.RebalanceMonth == 0 || int(now.Month()) != s.RebalanceMonth || now.Day() != s.RebalanceDay {
			return skip(res, model.ReasonNotRebalanceDay, now.Format("01-02"))
		}
	}
	if s.RebalanceBudget <= 0 {
		return fail(res, model.ReasonInvalidSettings, fieldErr("rebalance_budget", "must be positive"))
	}

	dg := r.dedupGate(loc)
	if d, err := dg.Check(ctx, model.RebalanceLabel, gate.ScopeCalendarYear, now); err != nil {
		return fail(res, model.ReasonStore, err)
	} else if d.Duplicate {
		return skip(res, model.ReasonDuplicate, fmt.Sprintf("alert #%d this year", d.Existing.ID))
	}

	prices := r.Collector.Prices(ctx, basketSymbols(s.Basket, ""))
	allocs, err := strategy.AllocateBudget(s.Basket, s.RebalanceBudget, prices)
	if err != nil {
		return fail(res, model.ReasonInvalidSettings, err)
	}
	res.Allocations = allocs
	alerts := buildAlerts(allocs, 0, model.RebalanceLabel, "", "", now)

	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := dg.Check(ctx, model.RebalanceLabel, gate.ScopeCalendarYear, now)
	if err != nil {
		return fail(res, model.ReasonStore, err)
	}
	if d.Duplicate {
		return skip(res, model.ReasonDuplicate, fmt.Sprintf("alert #%d this year", d.Existing.ID))
	}
	ids, err := r.insertAlerts(ctx, alerts)
	res.AlertIDs = ids
	if err != nil {
		return fail(res, model.ReasonStore, err)
	}
	res.Status = model.StatusOK
	res.Message = fmt.Sprintf("rebalance: %d alerts", len(ids))
	log.Printf("[INFO] REBALANCE %s recorded %d alerts", res.RunID, len(ids))
	return res
}
