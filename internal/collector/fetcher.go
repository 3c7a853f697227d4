package collector

import (
	"context"
	"time"

	"StageSentinel/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchDailyCloses returns daily bars in [start, end], ascending.
	FetchDailyCloses(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error)
	FetchLastPrice(ctx context.Context, symbol string) (model.Quote, error)
	Name() string
}
