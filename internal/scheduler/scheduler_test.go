package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StageSentinel/internal/cycle"
	"StageSentinel/internal/model"
)

type fakeRunner struct {
	mu         sync.Mutex
	checks     []bool
	dispatches int
	rebalances []bool
	checkRes   model.CycleResult
	indErr     error
}

func (f *fakeRunner) Check(_ context.Context, force bool) model.CycleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, force)
	res := f.checkRes
	res.Kind = model.CycleCheck
	return res
}

func (f *fakeRunner) Dispatch(context.Context) model.CycleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches++
	return model.CycleResult{Kind: model.CycleDispatch, Status: model.StatusSkip, Reason: model.ReasonNothingToSend}
}

func (f *fakeRunner) Rebalance(_ context.Context, force bool) model.CycleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebalances = append(f.rebalances, force)
	return model.CycleResult{Kind: model.CycleRebalance, Status: model.StatusSkip}
}

func (f *fakeRunner) Indicators(context.Context, int) (*cycle.Snapshot, error) {
	if f.indErr != nil {
		return nil, f.indErr
	}
	rsi, sma := 41.0, 35210.4
	return &cycle.Snapshot{
		Settings: model.Settings{MainSymbol: "069500", RSIPeriod: 14, SMAWindow: 20, BuyLevels: []float64{43}},
		RSI:      &rsi,
		SMA:      &sma,
		Stage:    0,
	}, nil
}

func (f *fakeRunner) RecentAlerts(context.Context, time.Duration, bool) ([]model.Alert, error) {
	return []model.Alert{{ID: 7, Symbol: "069500", StageLabel: "1단계", Quantity: 3, CreatedAt: time.Now()}}, nil
}

type fakeSender struct {
	sent    []string
	retries []int
}

func (f *fakeSender) SendWithRetry(_ context.Context, text string, maxRetries int) error {
	f.sent = append(f.sent, text)
	f.retries = append(f.retries, maxRetries)
	return nil
}

func newTestScheduler() (*Scheduler, *fakeRunner, *fakeSender) {
	r := &fakeRunner{}
	n := &fakeSender{}
	return NewScheduler(context.Background(), r, n, time.UTC), r, n
}

func TestRegisterAll(t *testing.T) {
	s, _, _ := newTestScheduler()
	require.NoError(t, s.RegisterAll("0 * 9-15 * * 1-5", "15 * * * * *", "0 0 10 * * *"))
	assert.Len(t, s.Cron.Entries(), 3)

	s2, _, _ := newTestScheduler()
	require.NoError(t, s2.RegisterAll("0 * 9-15 * * 1-5", "15 * * * * *", ""))
	assert.Len(t, s2.Cron.Entries(), 2)

	s3, _, _ := newTestScheduler()
	assert.Error(t, s3.RegisterAll("not a cron", "15 * * * * *", ""))
}

func TestCheckTask_NotifiesInvalidSettingsOnly(t *testing.T) {
	s, r, n := newTestScheduler()
	r.checkRes = model.CycleResult{Status: model.StatusSkip, Reason: model.ReasonOutsideWindow}
	s.checkTask()
	assert.Empty(t, n.sent)
	assert.Equal(t, []bool{false}, r.checks)

	r.checkRes = model.CycleResult{Status: model.StatusError, Reason: model.ReasonInvalidSettings, Field: "buy_levels"}
	s.checkTask()
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "buy_levels")
	assert.Equal(t, []int{noticeRetries}, n.retries)
}

func TestHandleCommand(t *testing.T) {
	s, r, _ := newTestScheduler()
	ctx := context.Background()

	reply := s.HandleCommand(ctx, "/check@StageBot")
	assert.Contains(t, reply, "CHECK")
	assert.Equal(t, []bool{true}, r.checks)

	reply = s.HandleCommand(ctx, "/dispatch")
	assert.Contains(t, reply, "no_unsent_alerts")
	assert.Equal(t, 1, r.dispatches)

	s.HandleCommand(ctx, "/rebalance")
	assert.Equal(t, []bool{true}, r.rebalances)

	status := s.HandleCommand(ctx, "/status")
	assert.Contains(t, status, "RSI(14): 41.00")
	assert.Contains(t, status, "SMA(20): ₩35,210")
	assert.Contains(t, s.HandleCommand(ctx, "/alerts"), "#7 1단계 069500")
	assert.Contains(t, s.HandleCommand(ctx, "/help"), "/check")
	assert.Empty(t, s.HandleCommand(ctx, "   "))

	r.indErr = errors.New("yahoo: status 503, body: <html>down</html>")
	assert.Contains(t, s.HandleCommand(ctx, "/status"), "&lt;html&gt;down")
}
