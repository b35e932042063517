package service

import (
	"context"
	"strings"
	"time"

	"fuelsync/backend/internal/domain"
)

func (s *Service) SettlementReport(ctx context.Context, stationID string, from string, to string) (domain.SettlementSummary, error) {
	if _, err := requireRole(ctx, domain.RoleManager, domain.RoleOwner); err != nil {
		return domain.SettlementSummary{}, err
	}
	today := s.now().Format(domain.DateLayout)
	if strings.TrimSpace(to) == "" {
		to = today
	}
	if strings.TrimSpace(from) == "" {
		from = to
	}
	return s.reports.Summary(ctx, s.stationOrDefault(stationID), strings.TrimSpace(from), strings.TrimSpace(to))
}

func (s *Service) ListAuditLogs(ctx context.Context, stationID string, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleManager, domain.RoleOwner); err != nil {
		return nil, err
	}
	stationID = s.stationOrDefault(stationID)
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := parseDate(date, "date")
		if err != nil {
			return nil, err
		}
		from = parsed
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, stationID, from, to, limit)
}
