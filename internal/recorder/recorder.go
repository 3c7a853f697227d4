package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StageSentinel/internal/model"
)

// ErrDuplicate is returned by Insert when the alert's idempotency key already exists.
var ErrDuplicate = errors.New("duplicate alert")

// Filter selects alerts for FindRecent. Zero fields match everything.
type Filter struct {
	Symbol     string
	StageLabel string
	Since      time.Time
	UnsentOnly bool
	Limit      int
}

// AlertStore is the durable, append-only record of generated alerts.
type AlertStore interface {
	// Insert assigns ID (and CreatedAt when zero) and stores the alert unsent.
	Insert(ctx context.Context, a *model.Alert) (*model.Alert, error)
	// FindRecent returns matching alerts ordered by creation time ascending.
	FindRecent(ctx context.Context, f Filter) ([]model.Alert, error)
	// MarkSent flips sent=true for the given ids in one transaction.
	MarkSent(ctx context.Context, ids []int64) error
	Close() error
}

// IdempotencyKey builds the symbol+stage+calendar-day key.
func IdempotencyKey(symbol, label string, day time.Time) string {
	return fmt.Sprintf("%s|%s|%s", symbol, label, day.Format("2006-01-02"))
}

func (f Filter) match(a *model.Alert) bool {
	if f.Symbol != "" && a.Symbol != f.Symbol {
		return false
	}
	if f.StageLabel != "" && a.StageLabel != f.StageLabel {
		return false
	}
	if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
		return false
	}
	if f.UnsentOnly && a.Sent {
		return false
	}
	return true
}
