package cache

import (
	"context"
	"time"

	"fuelsync/backend/internal/domain"
)

// ReportCache stores derived settlement summaries. Keys embed a per-station
// generation so that any write to the station makes older entries unreachable.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.SettlementSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.SettlementSummary, ttl time.Duration) error
	Generation(ctx context.Context, stationID string) (int64, error)
	Bump(ctx context.Context, stationID string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SettlementSummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SettlementSummary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Generation(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopReportCache) Bump(_ context.Context, _ string) error {
	return nil
}
