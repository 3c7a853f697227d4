package model

import (
	"fmt"
	"time"
)

// Stage indexes into Settings.BuyLevels / Settings.StageAmounts.
type Stage int

// NoStage means the RSI did not satisfy any threshold.
const NoStage Stage = -1

// RebalanceLabel is the reserved stage label of the sell-side rebalance path.
const RebalanceLabel = "rebalance"

// Label returns the human stage label, 1-based ("1단계", "2단계", ...).
func (s Stage) Label() string {
	if s == NoStage {
		return ""
	}
	return fmt.Sprintf("%d단계", int(s)+1)
}

// Allocation is the recommended order for one basket member.
type Allocation struct {
	Symbol   string  `json:"symbol"`
	Budget   float64 `json:"budget"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// Alert is a persisted signal record. Only Sent is ever mutated after insert.
type Alert struct {
	ID             int64     `json:"id"`
	Symbol         string    `json:"symbol"`
	RSI            float64   `json:"rsi_at_trigger"`
	StageLabel     string    `json:"stage_label"`
	Message        string    `json:"message"`
	Quantity       int64     `json:"quantity"`
	Budget         float64   `json:"budget"`
	Price          float64   `json:"price"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Sent           bool      `json:"sent"`
}

// BatchKey is the dispatch collision unit: floor(createdAt / 60s).
func (a Alert) BatchKey() int64 {
	return a.CreatedAt.Truncate(time.Minute).Unix() / 60
}
