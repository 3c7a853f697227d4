package model

import "time"

// CycleKind identifies which entry point produced a result.
type CycleKind string

const (
	CycleCheck     CycleKind = "CHECK"
	CycleDispatch  CycleKind = "DISPATCH"
	CycleRebalance CycleKind = "REBALANCE"
)

// CycleStatus is the outcome class of a cycle.
type CycleStatus string

const (
	StatusOK    CycleStatus = "ok"
	StatusSkip  CycleStatus = "skip"
	StatusError CycleStatus = "error"
)

// Reason codes reported in CycleResult.Reason.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonOutsideWindow    = "outside_check_window"
	ReasonDuplicate        = "duplicate_signal"
	ReasonNoStage          = "no_stage"
	ReasonNothingToSend    = "no_unsent_alerts"
	ReasonNotRebalanceDay  = "not_rebalance_day"
	ReasonInvalidSettings  = "invalid_settings"
	ReasonPriceFetch       = "price_fetch_failed"
	ReasonStore            = "store_failed"
	ReasonSend             = "send_failed"
)

// CycleResult is the structured result every trigger returns.
type CycleResult struct {
	RunID       string       `json:"run_id"`
	Kind        CycleKind    `json:"kind"`
	Status      CycleStatus  `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	Field       string       `json:"field,omitempty"`
	Error       string       `json:"error,omitempty"`
	RSI         *float64     `json:"rsi,omitempty"`
	Stage       Stage        `json:"stage"`
	StageLabel  string       `json:"stage_label,omitempty"`
	Allocations []Allocation `json:"allocations,omitempty"`
	AlertIDs    []int64      `json:"alert_ids,omitempty"`
	Message     string       `json:"message,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
}

// BatchEvent describes a successfully dispatched batch.
type BatchEvent struct {
	BatchKey   int64     `json:"batch_key"`
	StageLabel string    `json:"stage_label"`
	RSI        float64   `json:"rsi"`
	Alerts     []Alert   `json:"alerts"`
	SentAt     time.Time `json:"sent_at"`
}
