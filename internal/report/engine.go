package report

import (
	"context"
	"fmt"
	"time"

	"fuelsync/backend/internal/cache"
	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/metrics"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
)

// Source is the read side the engine aggregates over.
type Source interface {
	ListShifts(ctx context.Context, filter store.ShiftFilter) ([]domain.Shift, error)
	ListHandovers(ctx context.Context, filter store.HandoverFilter) ([]domain.CashHandover, error)
	ListTransactions(ctx context.Context, stationID string, fromDate string, toDate string) ([]domain.Transaction, error)
	ListReadings(ctx context.Context, stationID string, fromDate string, toDate string) ([]domain.NozzleReading, error)
	ListCreditors(ctx context.Context, stationID string) ([]domain.Creditor, error)
	ListCreditEntries(ctx context.Context, creditorIDs []string, before time.Time) ([]domain.CreditEntry, error)
}

type Engine struct {
	source   Source
	cache    cache.ReportCache
	cacheTTL time.Duration
	policy   settlement.Policy
	metrics  *metrics.Metrics
}

func NewEngine(source Source, cacheStore cache.ReportCache, cacheTTL time.Duration, policy settlement.Policy, m *metrics.Metrics) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		policy:   policy,
		metrics:  m,
	}
}

// Summary returns the settlement summary for the inclusive date range. Results
// are cached under the station's current generation.
func (e *Engine) Summary(ctx context.Context, stationID string, from string, to string) (domain.SettlementSummary, error) {
	startedAt := time.Now()

	start, end, err := settlement.ParseRange(from, to)
	if err != nil {
		return domain.SettlementSummary{}, err
	}

	gen, genErr := e.cache.Generation(ctx, stationID)
	cacheKey := buildCacheKey(stationID, start, end, gen)
	if genErr == nil {
		if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
			e.metrics.ObserveReport(metrics.ResultCached, time.Since(startedAt))
			return *cached, nil
		}
	}

	in, err := e.load(ctx, stationID, start, end)
	if err != nil {
		e.metrics.ObserveReport(metrics.ResultError, time.Since(startedAt))
		return domain.SettlementSummary{}, err
	}
	summary := settlement.Aggregate(in, e.policy)

	if genErr == nil {
		_ = e.cache.Set(ctx, cacheKey, &summary, e.cacheTTL)
	}
	e.metrics.ObserveReport(metrics.ResultSuccess, time.Since(startedAt))
	return summary, nil
}

// Invalidate makes every cached summary for the station unreachable.
func (e *Engine) Invalidate(ctx context.Context, stationID string) error {
	return e.cache.Bump(ctx, stationID)
}

func (e *Engine) load(ctx context.Context, stationID string, start time.Time, end time.Time) (settlement.AggregateInput, error) {
	fromDate := start.Format(domain.DateLayout)
	toDate := end.Format(domain.DateLayout)
	endExclusive := end.AddDate(0, 0, 1)

	shifts, err := e.source.ListShifts(ctx, store.ShiftFilter{
		StationID:  stationID,
		Status:     domain.ShiftStatusClosed,
		ClosedFrom: start,
		ClosedTo:   endExclusive,
	})
	if err != nil {
		return settlement.AggregateInput{}, fmt.Errorf("list shifts: %w", err)
	}
	handovers, err := e.source.ListHandovers(ctx, store.HandoverFilter{StationID: stationID, From: start, To: endExclusive})
	if err != nil {
		return settlement.AggregateInput{}, fmt.Errorf("list handovers: %w", err)
	}
	transactions, err := e.source.ListTransactions(ctx, stationID, fromDate, toDate)
	if err != nil {
		return settlement.AggregateInput{}, fmt.Errorf("list transactions: %w", err)
	}
	readings, err := e.source.ListReadings(ctx, stationID, fromDate, toDate)
	if err != nil {
		return settlement.AggregateInput{}, fmt.Errorf("list readings: %w", err)
	}
	creditors, err := e.source.ListCreditors(ctx, stationID)
	if err != nil {
		return settlement.AggregateInput{}, fmt.Errorf("list creditors: %w", err)
	}

	var entries []domain.CreditEntry
	if len(creditors) > 0 {
		ids := make([]string, 0, len(creditors))
		for _, c := range creditors {
			ids = append(ids, c.ID)
		}
		entries, err = e.source.ListCreditEntries(ctx, ids, endExclusive)
		if err != nil {
			return settlement.AggregateInput{}, fmt.Errorf("list credit entries: %w", err)
		}
	}

	return settlement.AggregateInput{
		StationID:     stationID,
		From:          start,
		To:            end,
		Shifts:        shifts,
		Handovers:     handovers,
		Transactions:  transactions,
		Readings:      readings,
		Creditors:     creditors,
		CreditEntries: entries,
	}, nil
}

func buildCacheKey(stationID string, start time.Time, end time.Time, gen int64) string {
	return fmt.Sprintf("fuelsync:report:%s:%s:%s:g%d", stationID, start.Format(domain.DateLayout), end.Format(domain.DateLayout), gen)
}
