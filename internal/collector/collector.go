package collector

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"StageSentinel/internal/model"
)

// DefaultHistoryDays is the calendar span requested for daily bars; enough
// trading days for RSI warm-up and a 200-day SMA.
const DefaultHistoryDays = 400

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Bars   map[string][]model.Bar
	Quotes map[string]model.Quote
	Err    error

	mu    sync.Mutex
	calls int
}

// Calls reports how many fetches were made.
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockFetcher) count() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyCloses(_ context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	m.count()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []model.Bar
	for _, b := range m.Bars[symbol] {
		if b.Time.Before(start) || b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *MockFetcher) FetchLastPrice(_ context.Context, symbol string) (model.Quote, error) {
	m.count()
	if m.Err != nil {
		return model.Quote{}, m.Err
	}
	q, ok := m.Quotes[symbol]
	if !ok {
		return model.Quote{}, fmt.Errorf("mock: no quote for %s", symbol)
	}
	return q, nil
}

// BarsFromCloses builds one bar per day ending on the day of end.
func BarsFromCloses(closes []float64, end time.Time) []model.Bar {
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Time:   last.AddDate(0, 0, i-len(closes)+1),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000000,
		}
	}
	return bars
}

// Collector orchestrates data fetching for a decision cycle.
type Collector struct {
	Fetcher     Fetcher
	HistoryDays int
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher) *Collector {
	return &Collector{Fetcher: fetcher, HistoryDays: DefaultHistoryDays}
}

// Series returns the daily series of symbol up to now with the latest quote
// merged in as today's bar, plus that quote. A failed quote fetch is logged
// and the daily series is returned unchanged.
func (c *Collector) Series(ctx context.Context, symbol string, now time.Time) ([]model.Bar, *model.Quote, error) {
	days := c.HistoryDays
	if days <= 0 {
		days = DefaultHistoryDays
	}
	bars, err := c.Fetcher.FetchDailyCloses(ctx, symbol, now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch daily bars: %w", err)
	}

	quote, err := c.Fetcher.FetchLastPrice(ctx, symbol)
	if err != nil {
		log.Printf("[WARN] %s quote for %s failed: %v, using daily closes only", c.Fetcher.Name(), symbol, err)
		return bars, nil, nil
	}
	return MergeQuote(bars, quote, now), &quote, nil
}

// MergeQuote folds the quote into the bar of its trading day: the close of
// that bar is replaced, or a new bar is appended when the quote traded today
// and today is missing. A quote from an earlier session never adds a bar.
// A zero AsOf counts as now. The input slice is not modified.
func MergeQuote(bars []model.Bar, q model.Quote, now time.Time) []model.Bar {
	if q.Price <= 0 {
		return bars
	}
	asOf := q.AsOf
	if asOf.IsZero() {
		asOf = now
	}
	tradeDay := dayOf(asOf.In(now.Location()))
	out := make([]model.Bar, len(bars), len(bars)+1)
	copy(out, bars)

	if n := len(out); n > 0 {
		last := dayOf(out[n-1].Time.In(now.Location()))
		if last.Equal(tradeDay) {
			out[n-1].Close = q.Price
			if q.High > out[n-1].High {
				out[n-1].High = q.High
			}
			return out
		}
		if last.After(tradeDay) {
			return out
		}
	}
	if !tradeDay.Equal(dayOf(now)) {
		return out
	}
	high := q.High
	if high < q.Price {
		high = q.Price
	}
	return append(out, model.Bar{Time: tradeDay, Open: q.Price, High: high, Low: q.Price, Close: q.Price})
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Prices fetches the latest price for each symbol. Failures are logged and
// the symbol is omitted so callers can treat it as unavailable.
func (c *Collector) Prices(ctx context.Context, symbols []string) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if _, ok := prices[s]; ok {
			continue
		}
		q, err := c.Fetcher.FetchLastPrice(ctx, s)
		if err != nil {
			log.Printf("[WARN] %s price for %s failed: %v", c.Fetcher.Name(), s, err)
			continue
		}
		if q.Price > 0 {
			prices[s] = q.Price
		}
	}
	return prices
}
