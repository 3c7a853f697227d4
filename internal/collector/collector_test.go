package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StageSentinel/internal/model"
)

func TestMergeQuote_ReplacesToday(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)
	bars := BarsFromCloses([]float64{100, 101, 102}, now)

	merged := MergeQuote(bars, model.Quote{Price: 99, High: 105}, now)
	require.Len(t, merged, 3)
	assert.Equal(t, 99.0, merged[2].Close)
	assert.Equal(t, 105.0, merged[2].High)
	assert.Equal(t, 102.0, bars[2].Close, "input must not be modified")
}

func TestMergeQuote_AppendsMissingToday(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 5, 0, 0, time.UTC)
	bars := BarsFromCloses([]float64{100, 101}, now.AddDate(0, 0, -1))

	merged := MergeQuote(bars, model.Quote{Price: 98}, now)
	require.Len(t, merged, 3)
	assert.Equal(t, 98.0, merged[2].Close)
	assert.Equal(t, 4, merged[2].Time.Day())
}

func TestMergeQuote_StaleQuoteOnWeekendAddsNoBar(t *testing.T) {
	friday := time.Date(2024, 3, 8, 15, 30, 0, 0, time.UTC)
	saturday := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)
	bars := BarsFromCloses([]float64{100, 101, 102}, friday)

	merged := MergeQuote(bars, model.Quote{Price: 102, AsOf: friday}, saturday)
	require.Len(t, merged, 3)
	assert.Equal(t, time.Friday, merged[2].Time.Weekday())
	assert.Equal(t, 102.0, merged[2].Close)
}

func TestMergeQuote_EarlierSessionUpdatesItsOwnBar(t *testing.T) {
	thursday := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
	friday := time.Date(2024, 3, 8, 15, 30, 0, 0, time.UTC)
	monday := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	bars := BarsFromCloses([]float64{100, 101}, thursday)

	merged := MergeQuote(bars, model.Quote{Price: 99, AsOf: friday}, monday)
	assert.Equal(t, bars, merged)
}

func TestMergeQuote_IgnoresEmptyQuote(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 5, 0, 0, time.UTC)
	bars := BarsFromCloses([]float64{100, 101}, now)
	assert.Equal(t, bars, MergeQuote(bars, model.Quote{}, now))
}

func TestCollector_SeriesFallsBackWithoutQuote(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)
	f := &MockFetcher{Bars: map[string][]model.Bar{"069500": BarsFromCloses([]float64{1, 2, 3}, now)}}

	bars, quote, err := NewCollector(f).Series(context.Background(), "069500", now)
	require.NoError(t, err)
	assert.Nil(t, quote)
	assert.Len(t, bars, 3)
}

func TestCollector_SeriesPropagatesDailyError(t *testing.T) {
	f := &MockFetcher{Err: errors.New("down")}
	_, _, err := NewCollector(f).Series(context.Background(), "069500", time.Now())
	assert.Error(t, err)
}

func TestCollector_PricesOmitsFailures(t *testing.T) {
	f := &MockFetcher{Quotes: map[string]model.Quote{
		"A": {Symbol: "A", Price: 10},
		"C": {Symbol: "C", Price: 0},
	}}
	prices := NewCollector(f).Prices(context.Background(), []string{"A", "B", "C", "A"})
	assert.Equal(t, map[string]float64{"A": 10}, prices)
}
