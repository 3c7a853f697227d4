package gate

import (
	"context"
	"fmt"
	"time"

	"StageSentinel/internal/model"
	"StageSentinel/internal/recorder"
)

// Scope selects how far back the dedup gate looks.
type Scope int

const (
	// ScopeWindow looks back a trailing duration.
	ScopeWindow Scope = iota
	// ScopeCalendarYear looks back to January 1st in the reporting timezone.
	ScopeCalendarYear
)

// DedupGate suppresses a signal when an alert with the same stage label
// already exists inside the lookback.
type DedupGate struct {
	Store    recorder.AlertStore
	Window   time.Duration
	Location *time.Location
}

// Decision is the dedup gate verdict.
type Decision struct {
	Duplicate bool
	Existing  *model.Alert
	Since     time.Time
}

// Check queries the store for alerts labeled label created at or after the
// lookback start.
func (g *DedupGate) Check(ctx context.Context, label string, scope Scope, now time.Time) (Decision, error) {
	since := g.since(scope, now)
	found, err := g.Store.FindRecent(ctx, recorder.Filter{
		StageLabel: label,
		Since:      since,
		Limit:      1,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("dedup query: %w", err)
	}
	d := Decision{Since: since}
	if len(found) > 0 {
		d.Duplicate = true
		d.Existing = &found[0]
	}
	return d, nil
}

func (g *DedupGate) since(scope Scope, now time.Time) time.Time {
	if scope == ScopeCalendarYear {
		loc := g.Location
		if loc == nil {
			loc = time.UTC
		}
		local := now.In(loc)
		return time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, loc)
	}
	return now.Add(-g.Window)
}
