package report

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
)

type fakeSource struct {
	loads     int
	shifts    []domain.Shift
	creditors []domain.Creditor
	entries   []domain.CreditEntry
}

func (f *fakeSource) ListShifts(_ context.Context, filter store.ShiftFilter) ([]domain.Shift, error) {
	f.loads++
	return f.shifts, nil
}

func (f *fakeSource) ListHandovers(_ context.Context, _ store.HandoverFilter) ([]domain.CashHandover, error) {
	return nil, nil
}

func (f *fakeSource) ListTransactions(_ context.Context, _ string, _ string, _ string) ([]domain.Transaction, error) {
	return nil, nil
}

func (f *fakeSource) ListReadings(_ context.Context, _ string, _ string, _ string) ([]domain.NozzleReading, error) {
	return nil, nil
}

func (f *fakeSource) ListCreditors(_ context.Context, _ string) ([]domain.Creditor, error) {
	return f.creditors, nil
}

func (f *fakeSource) ListCreditEntries(_ context.Context, _ []string, before time.Time) ([]domain.CreditEntry, error) {
	out := make([]domain.CreditEntry, 0, len(f.entries))
	for _, e := range f.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

type mapCache struct {
	mu    sync.Mutex
	items map[string]domain.SettlementSummary
	gens  map[string]int64
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string]domain.SettlementSummary{}, gens: map[string]int64{}}
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.SettlementSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.SettlementSummary, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = *value
	return nil
}

func (c *mapCache) Generation(_ context.Context, stationID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[stationID], nil
}

func (c *mapCache) Bump(_ context.Context, stationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[stationID]++
	return nil
}

func closedShift(stationID string, expected string, actual string, end time.Time) domain.Shift {
	e := decimal.RequireFromString(expected)
	a := decimal.RequireFromString(actual)
	return domain.Shift{
		ID:                  "shift-" + expected,
		StationID:           stationID,
		Status:              domain.ShiftStatusClosed,
		EndTime:             &end,
		ExpectedCash:        e,
		ActualCashCollected: a,
		CashDifference:      a.Sub(e),
	}
}

func TestSummaryClassifiesDailyVariance(t *testing.T) {
	src := &fakeSource{shifts: []domain.Shift{
		closedShift("S1", "5000", "4950", time.Date(2026, 10, 1, 14, 0, 0, 0, time.UTC)),
	}}
	engine := NewEngine(src, newMapCache(), time.Minute, settlement.DefaultPolicy(), nil)

	summary, err := engine.Summary(context.Background(), "S1", "2026-10-01", "2026-10-02")
	require.NoError(t, err)
	require.Len(t, summary.Days, 2)

	day := summary.Days[0]
	assert.Equal(t, 1, day.ShiftsClosed)
	assert.Equal(t, "-50.00", day.Variance.StringFixed(2))
	assert.Equal(t, "-1.00", day.VariancePercent.StringFixed(2))
	assert.Equal(t, domain.VarianceOK, day.VarianceStatus)
	assert.Equal(t, domain.VarianceOK, summary.Days[1].VarianceStatus)
}

func TestSummaryIsCachedUntilInvalidated(t *testing.T) {
	src := &fakeSource{}
	engine := NewEngine(src, newMapCache(), time.Minute, settlement.DefaultPolicy(), nil)
	ctx := context.Background()

	first, err := engine.Summary(ctx, "S1", "2026-10-01", "2026-10-01")
	require.NoError(t, err)
	second, err := engine.Summary(ctx, "S1", "2026-10-01", "2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, 1, src.loads)
	assert.Equal(t, first.Days[0].Date, second.Days[0].Date)

	require.NoError(t, engine.Invalidate(ctx, "S1"))
	_, err = engine.Summary(ctx, "S1", "2026-10-01", "2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, 2, src.loads)
}

func TestSummaryAgesReceivablesAsOfRangeEnd(t *testing.T) {
	src := &fakeSource{
		creditors: []domain.Creditor{{ID: "C1", StationID: "S1", Name: "Fleet Co", CreditLimit: decimal.NewFromInt(500)}},
		entries: []domain.CreditEntry{
			{ID: "e1", CreditorID: "C1", Delta: decimal.NewFromInt(1000), Kind: domain.CreditEntryAllocation, CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
			{ID: "e2", CreditorID: "C1", Delta: decimal.NewFromInt(-200), Kind: domain.CreditEntrySettlement, CreatedAt: time.Date(2026, 10, 5, 10, 0, 0, 0, time.UTC)},
		},
	}
	engine := NewEngine(src, nil, 0, settlement.DefaultPolicy(), nil)

	summary, err := engine.Summary(context.Background(), "S1", "2026-10-01", "2026-10-01")
	require.NoError(t, err)

	aging := summary.Receivables
	assert.Equal(t, "1000", aging.TotalOutstanding.String())
	assert.Equal(t, "1000", aging.Over60Days.String())
	assert.Equal(t, "1000", aging.Over30Days.String())
	require.Len(t, aging.Creditors, 1)
	assert.Equal(t, 61, aging.Creditors[0].OldestUnsettledDays)
	assert.True(t, aging.Creditors[0].OverLimit)
}

func TestSummaryRejectsBadRange(t *testing.T) {
	engine := NewEngine(&fakeSource{}, nil, 0, settlement.DefaultPolicy(), nil)

	_, err := engine.Summary(context.Background(), "S1", "2026-10-05", "2026-10-01")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = engine.Summary(context.Background(), "S1", "2026-01-01", "2026-12-31")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
