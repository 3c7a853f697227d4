package scheduler

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"StageSentinel/internal/cycle"
	"StageSentinel/internal/model"
	"StageSentinel/internal/notifier"
)

// Runner is the set of cycle entry points the scheduler triggers.
type Runner interface {
	Check(ctx context.Context, force bool) model.CycleResult
	Dispatch(ctx context.Context) model.CycleResult
	Rebalance(ctx context.Context, force bool) model.CycleResult
	Indicators(ctx context.Context, tail int) (*cycle.Snapshot, error)
	RecentAlerts(ctx context.Context, since time.Duration, unsentOnly bool) ([]model.Alert, error)
}

var _ Runner = (*cycle.Runner)(nil)

// Notifier delivers operator notices.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

var _ Notifier = (*notifier.TelegramNotifier)(nil)

// noticeRetries is how many times a failed operator notice is resent.
const noticeRetries = 2

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	Notifier Notifier
	Location *time.Location
	Ctx      context.Context
}

// NewScheduler creates a new Scheduler whose cron specs are evaluated in loc.
func NewScheduler(ctx context.Context, runner Runner, n Notifier, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Runner:   runner,
		Notifier: n,
		Location: loc,
		Ctx:      ctx,
	}
}

// RegisterAll registers the check, dispatch and rebalance tasks.
func (s *Scheduler) RegisterAll(checkCron, dispatchCron, rebalanceCron string) error {
	if _, err := s.Cron.AddFunc(checkCron, s.checkTask); err != nil {
		return fmt.Errorf("register check task: %w", err)
	}
	if _, err := s.Cron.AddFunc(dispatchCron, s.dispatchTask); err != nil {
		return fmt.Errorf("register dispatch task: %w", err)
	}
	if rebalanceCron != "" {
		if _, err := s.Cron.AddFunc(rebalanceCron, s.rebalanceTask); err != nil {
			return fmt.Errorf("register rebalance task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunCheckNow executes a forced check immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunCheckNow() model.CycleResult {
	return s.Runner.Check(s.Ctx, true)
}

func (s *Scheduler) checkTask() {
	res := s.Runner.Check(s.Ctx, false)
	if res.Status == model.StatusError && res.Reason == model.ReasonInvalidSettings {
		s.trySend(notifier.FormatCycleResult(res))
	}
}

func (s *Scheduler) dispatchTask() {
	s.Runner.Dispatch(s.Ctx)
}

func (s *Scheduler) rebalanceTask() {
	s.Runner.Rebalance(s.Ctx, false)
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	// "/check@MyBot" in group chats
	name, _, _ := strings.Cut(fields[0], "@")

	switch name {
	case "/check", "점검":
		return notifier.FormatCycleResult(s.Runner.Check(ctx, true))
	case "/dispatch", "발송":
		return notifier.FormatCycleResult(s.Runner.Dispatch(ctx))
	case "/rebalance", "리밸런싱":
		return notifier.FormatCycleResult(s.Runner.Rebalance(ctx, true))
	case "/status", "상태":
		snap, err := s.Runner.Indicators(ctx, 1)
		if err != nil {
			return "❌ 상태 조회 실패: " + html.EscapeString(err.Error())
		}
		return notifier.FormatStatus(snap.Settings, snap.RSI, snap.SMA, snap.Stage)
	case "/alerts", "알림":
		alerts, err := s.Runner.RecentAlerts(ctx, 24*time.Hour, false)
		if err != nil {
			return "❌ 알림 조회 실패: " + html.EscapeString(err.Error())
		}
		return notifier.FormatAlertList(alerts, time.Now(), s.Location)
	default:
		return "사용 가능한 명령:\n• /check 즉시 점검\n• /dispatch 대기 알림 발송\n• /rebalance 리밸런싱 기록\n• /status 현재 상태\n• /alerts 최근 24시간 알림"
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, noticeRetries); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
