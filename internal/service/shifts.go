package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
	"fuelsync/backend/internal/xid"
)

// StartShift opens a shift for the calling user. A user has at most one
// active shift across all stations.
func (s *Service) StartShift(ctx context.Context, req domain.ShiftStartRequest) (domain.ShiftResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	active, err := settlement.StartShift(settlement.ShiftStart{
		ID:         xid.New("shift"),
		EmployeeID: actor.Username,
		StationID:  s.stationOrDefault(req.StationID),
		ShiftType:  strings.ToLower(strings.TrimSpace(req.ShiftType)),
		Notes:      req.Notes,
		At:         s.now(),
	})
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	saved, err := s.repo.CreateShift(ctx, active.Record())
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, saved.StationID, "shift_start", "shift", saved.ID, fmt.Sprintf("type=%s", saved.ShiftType))
	return domain.ShiftResponse{Shift: *saved}, nil
}

// EndShift closes the caller's active shift and freezes its cash difference.
func (s *Service) EndShift(ctx context.Context, req domain.ShiftEndRequest) (domain.ShiftResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	if req.CashCollected.IsNegative() || (req.OnlineCollected != nil && req.OnlineCollected.IsNegative()) {
		return domain.ShiftResponse{}, fmt.Errorf("%w: collected amounts must not be negative", domain.ErrInvalidInput)
	}
	if err := settlement.CheckMoney("cash collected", req.CashCollected); err != nil {
		return domain.ShiftResponse{}, err
	}
	if req.OnlineCollected != nil {
		if err := settlement.CheckMoney("online collected", *req.OnlineCollected); err != nil {
			return domain.ShiftResponse{}, err
		}
	}

	closed, err := s.repo.CloseActiveShift(ctx, actor.Username, settlement.ShiftEnd{
		CashCollected:   req.CashCollected,
		OnlineCollected: req.OnlineCollected,
		Notes:           req.Notes,
		At:              s.now(),
	})
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	pct, status := settlement.ClassifyVariance(s.policy, closed.ExpectedCash, closed.ActualCashCollected)
	s.metrics.IncShiftClosed(status)
	if status != domain.VarianceOK {
		s.logger.Warn("shift closed with cash variance",
			zap.String("shift_id", closed.ID),
			zap.String("employee_id", closed.EmployeeID),
			zap.String("difference", closed.CashDifference.StringFixed(2)),
			zap.String("variance_pct", pct.StringFixed(2)),
			zap.String("status", status),
		)
	}

	s.logAudit(ctx, closed.StationID, "shift_end", "shift", closed.ID, fmt.Sprintf(
		"expected=%s,actual=%s,difference=%s,status=%s",
		closed.ExpectedCash.StringFixed(2),
		closed.ActualCashCollected.StringFixed(2),
		closed.CashDifference.StringFixed(2),
		status,
	))
	s.invalidateReports(ctx, closed.StationID)
	return domain.ShiftResponse{Shift: *closed}, nil
}

func (s *Service) GetActiveShift(ctx context.Context) (domain.ShiftResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	shift, err := s.repo.GetActiveShift(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftResponse{}, domain.ErrNoActiveShift
		}
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

// ListShifts returns shifts newest first. Employees only ever see their own.
func (s *Service) ListShifts(ctx context.Context, stationID string, employeeID string, status string, limit int) ([]domain.Shift, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleEmployee {
		employeeID = actor.Username
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != domain.ShiftStatusActive && status != domain.ShiftStatusClosed {
		return nil, fmt.Errorf("%w: unknown shift status %q", domain.ErrInvalidInput, status)
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}

	return s.repo.ListShifts(ctx, store.ShiftFilter{
		StationID:  s.stationOrDefault(stationID),
		EmployeeID: strings.TrimSpace(employeeID),
		Status:     status,
		Limit:      limit,
	})
}
