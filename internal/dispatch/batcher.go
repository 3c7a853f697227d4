// Package dispatch groups unsent alerts into minute batches and delivers the
// oldest batch per invocation.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"StageSentinel/internal/model"
	"StageSentinel/internal/notifier"
	"StageSentinel/internal/recorder"
)

// ErrSendFailed marks a Dispatch error raised by the message channel.
var ErrSendFailed = errors.New("send failed")

// DefaultLookback bounds how far back unsent alerts are considered.
const DefaultLookback = 30 * time.Minute

// Publisher receives every batch that was delivered successfully.
type Publisher interface {
	PublishBatch(ctx context.Context, ev model.BatchEvent) error
}

// Batcher delivers one minute batch of unsent alerts per Dispatch call.
type Batcher struct {
	Store     recorder.AlertStore
	Sender    notifier.Sender
	Publisher Publisher // optional
	Lookback  time.Duration
	Location  *time.Location

	// serializes load, send and mark
	mu sync.Mutex
}

// Outcome reports what one Dispatch call did.
type Outcome struct {
	Skipped  bool
	BatchKey int64
	AlertIDs []int64
	Message  string
	Pending  int // unsent alerts left for later invocations
}

// Dispatch sends the earliest pending minute batch. Alerts are marked sent
// only after a successful send; a send failure leaves them for the next call.
// Concurrent calls run one at a time.
func (b *Batcher) Dispatch(ctx context.Context, now time.Time) (Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lookback := b.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	unsent, err := b.Store.FindRecent(ctx, recorder.Filter{
		Since:      now.Add(-lookback),
		UnsentOnly: true,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("load unsent alerts: %w", err)
	}
	if len(unsent) == 0 {
		return Outcome{Skipped: true}, nil
	}

	batch := NextBatch(unsent)
	out := Outcome{
		BatchKey: batch[0].BatchKey(),
		AlertIDs: make([]int64, len(batch)),
		Message:  notifier.FormatBatch(batch, b.Location),
		Pending:  len(unsent) - len(batch),
	}
	for i, a := range batch {
		out.AlertIDs[i] = a.ID
	}

	if err := b.Sender.Send(ctx, out.Message); err != nil {
		return out, fmt.Errorf("%w: batch %d: %w", ErrSendFailed, out.BatchKey, err)
	}
	if err := b.Store.MarkSent(ctx, out.AlertIDs); err != nil {
		return out, fmt.Errorf("mark batch %d sent: %w", out.BatchKey, err)
	}
	log.Printf("[INFO] dispatched batch %d (%d alerts, %d pending)", out.BatchKey, len(batch), out.Pending)

	if b.Publisher != nil {
		for i := range batch {
			batch[i].Sent = true
		}
		ev := model.BatchEvent{
			BatchKey:   out.BatchKey,
			StageLabel: batch[0].StageLabel,
			RSI:        batch[0].RSI,
			Alerts:     batch,
			SentAt:     now,
		}
		if err := b.Publisher.PublishBatch(ctx, ev); err != nil {
			log.Printf("[WARN] publish batch %d: %v", out.BatchKey, err)
		}
	}
	return out, nil
}

// NextBatch returns the alerts sharing the creation minute of the earliest
// alert. alerts must be ordered by CreatedAt ascending and non-empty.
func NextBatch(alerts []model.Alert) []model.Alert {
	key := alerts[0].BatchKey()
	var batch []model.Alert
	for _, a := range alerts {
		if a.BatchKey() == key {
			batch = append(batch, a)
		}
	}
	return batch
}
