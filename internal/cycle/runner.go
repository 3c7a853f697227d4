// Package cycle runs the decision, rebalance and dispatch cycles. Every
// entry point returns a model.CycleResult and is safe to call repeatedly
// and concurrently.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"StageSentinel/internal/collector"
	"StageSentinel/internal/config"
	"StageSentinel/internal/dispatch"
	"StageSentinel/internal/gate"
	"StageSentinel/internal/model"
	"StageSentinel/internal/recorder"
)

// SettingsSource yields the per-cycle settings snapshot.
type SettingsSource interface {
	Snapshot() (model.Settings, error)
}

// Runner wires the cycle stages together.
type Runner struct {
	Settings         SettingsSource
	Collector        *collector.Collector
	Store            recorder.AlertStore
	Batcher          *dispatch.Batcher
	DedupWindow      time.Duration
	DailyIdempotency bool
	Now              func() time.Time

	// serializes dedup check + insert within this process
	mu sync.Mutex
}

// NewRunner creates a Runner with the default clock.
func NewRunner(src SettingsSource, col *collector.Collector, store recorder.AlertStore, batcher *dispatch.Batcher, dedupWindow time.Duration) *Runner {
	return &Runner{
		Settings:    src,
		Collector:   col,
		Store:       store,
		Batcher:     batcher,
		DedupWindow: dedupWindow,
		Now:         time.Now,
	}
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func newResult(kind model.CycleKind, now time.Time) model.CycleResult {
	return model.CycleResult{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Stage:     model.NoStage,
		StartedAt: now,
	}
}

func skip(res model.CycleResult, reason, msg string) model.CycleResult {
	res.Status = model.StatusSkip
	res.Reason = reason
	res.Message = msg
	log.Printf("[INFO] %s %s skipped: %s", res.Kind, res.RunID, reason)
	return res
}

func fail(res model.CycleResult, reason string, err error) model.CycleResult {
	res.Status = model.StatusError
	res.Reason = reason
	res.Error = err.Error()
	var fe *config.FieldError
	if errors.As(err, &fe) {
		res.Field = fe.Field
	}
	log.Printf("[ERROR] %s %s failed (%s): %v", res.Kind, res.RunID, reason, err)
	return res
}

func fieldErr(field, msg string) error {
	return &config.FieldError{Field: field, Msg: msg}
}

// snapshot loads and validates settings and resolves the reporting timezone.
func (r *Runner) snapshot() (model.Settings, *time.Location, error) {
	s, err := r.Settings.Snapshot()
	if err != nil {
		return s, nil, fieldErr("settings_file", err.Error())
	}
	if err := config.ValidateSettings(s); err != nil {
		return s, nil, err
	}
	loc, err := gate.LoadLocation(s.Timezone)
	if err != nil {
		return s, nil, fieldErr("timezone", err.Error())
	}
	return s, loc, nil
}

func (r *Runner) dedupGate(loc *time.Location) *gate.DedupGate {
	return &gate.DedupGate{Store: r.Store, Window: r.DedupWindow, Location: loc}
}

// insertAlerts stores one alert per allocation. Idempotency collisions are
// skipped; any other store error aborts with the ids inserted so far.
func (r *Runner) insertAlerts(ctx context.Context, alerts []model.Alert) ([]int64, error) {
	var ids []int64
	for i := range alerts {
		a := alerts[i]
		if r.DailyIdempotency {
			a.IdempotencyKey = recorder.IdempotencyKey(a.Symbol, a.StageLabel, a.CreatedAt)
		}
		stored, err := r.Store.Insert(ctx, &a)
		if errors.Is(err, recorder.ErrDuplicate) {
			log.Printf("[WARN] alert %s already recorded, skipping", a.IdempotencyKey)
			continue
		}
		if err != nil {
			return ids, fmt.Errorf("insert alert %s: %w", a.Symbol, err)
		}
		ids = append(ids, stored.ID)
	}
	return ids, nil
}

// Dispatch delivers the oldest pending minute batch.
func (r *Runner) Dispatch(ctx context.Context) model.CycleResult {
	now := r.now()
	res := newResult(model.CycleDispatch, now)

	out, err := r.Batcher.Dispatch(ctx, now)
	if err != nil {
		res.AlertIDs = out.AlertIDs
		if errors.Is(err, dispatch.ErrSendFailed) {
			return fail(res, model.ReasonSend, err)
		}
		return fail(res, model.ReasonStore, err)
	}
	if out.Skipped {
		return skip(res, model.ReasonNothingToSend, "")
	}
	res.Status = model.StatusOK
	res.AlertIDs = out.AlertIDs
	res.Message = out.Message
	log.Printf("[INFO] DISPATCH %s sent %d alerts", res.RunID, len(out.AlertIDs))
	return res
}

// RecentAlerts lists alerts created in the last `since` duration.
func (r *Runner) RecentAlerts(ctx context.Context, since time.Duration, unsentOnly bool) ([]model.Alert, error) {
	return r.Store.FindRecent(ctx, recorder.Filter{
		Since:      r.now().Add(-since),
		UnsentOnly: unsentOnly,
	})
}
