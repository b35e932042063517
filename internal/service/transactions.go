package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/metrics"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
	"fuelsync/backend/internal/xid"
)

// CreateTransaction settles a set of readings against a payment breakdown.
// Resubmitting with the same idempotency key returns the original transaction.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.TransactionResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	resp, err := s.createTransaction(ctx, actor, req)
	switch {
	case err != nil:
		s.metrics.IncTransaction(metrics.ResultError)
		return domain.TransactionResponse{}, err
	case resp.Duplicate:
		return resp, nil
	}

	created := resp.Transaction
	s.metrics.IncTransaction(metrics.ResultSuccess)
	s.metrics.AddCreditWarnings(len(resp.Warnings))
	for _, w := range resp.Warnings {
		s.logger.Warn("creditor over credit limit",
			zap.String("transaction_id", created.ID),
			zap.String("creditor_id", w.CreditorID),
			zap.String("outstanding", w.Outstanding.StringFixed(2)),
			zap.String("credit_limit", w.CreditLimit.StringFixed(2)),
		)
	}
	s.logAudit(ctx, created.StationID, "transaction_create", "transaction", created.ID, fmt.Sprintf(
		"readings=%d,sale=%s,cash=%s,online=%s,credit=%s,shift=%s",
		len(created.ReadingIDs),
		created.SaleValue.StringFixed(2),
		created.PaymentBreakdown.Cash.StringFixed(2),
		created.PaymentBreakdown.Online.StringFixed(2),
		created.PaymentBreakdown.Credit.StringFixed(2),
		created.ShiftID,
	))
	s.invalidateReports(ctx, created.StationID)
	return resp, nil
}

func (s *Service) createTransaction(ctx context.Context, actor domain.Actor, req domain.TransactionRequest) (domain.TransactionResponse, error) {
	stationID := s.stationOrDefault(req.StationID)
	if strings.TrimSpace(req.TransactionDate) == "" {
		req.TransactionDate = s.now().Format(domain.DateLayout)
	}
	day, err := parseDate(req.TransactionDate, "transaction_date")
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = xid.New("idem")
	}

	if existing, err := s.repo.FindTransactionByIdempotency(ctx, idempotencyKey); err == nil {
		return replay(existing, stationID, actor.Username)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.TransactionResponse{}, err
	}

	readingIDs, err := normalizeReadingIDs(req.ReadingIDs)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	readings, err := s.repo.GetReadings(ctx, readingIDs)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	litres := decimal.Zero
	saleValue := decimal.Zero
	for _, reading := range readings {
		if reading.StationID != stationID {
			return domain.TransactionResponse{}, fmt.Errorf("reading %s at station %s: %w", reading.ID, stationID, store.ErrNotFound)
		}
		if reading.TransactionID != "" {
			return domain.TransactionResponse{}, fmt.Errorf("reading %s settled by %s: %w", reading.ID, reading.TransactionID, domain.ErrReadingSettled)
		}
		litres = litres.Add(reading.LitresSold)
		saleValue = saleValue.Add(reading.SaleValue)
	}

	alloc, err := settlement.Allocate(s.policy, saleValue, req.PaymentBreakdown, req.CreditAllocations)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	var warnings []domain.CreditLimitWarning
	guard := func(balances []settlement.CreditorBalance) error {
		warnings = settlement.CheckCreditLimits(balances)
		if s.creditHardStop && len(warnings) > 0 {
			return &domain.CreditLimitError{Warnings: warnings}
		}
		return nil
	}

	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		ID:                xid.New("tx"),
		StationID:         stationID,
		EmployeeID:        actor.Username,
		TransactionDate:   day.Format(domain.DateLayout),
		ReadingIDs:        readingIDs,
		LitresSold:        litres,
		SaleValue:         saleValue,
		PaymentBreakdown:  alloc.Breakdown,
		CreditAllocations: alloc.Allocations,
		IdempotencyKey:    idempotencyKey,
		Notes:             strings.TrimSpace(req.Notes),
		CreatedAt:         s.now(),
	}, alloc.Entries, guard)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent submission with the same key won.
			existing, findErr := s.repo.FindTransactionByIdempotency(ctx, idempotencyKey)
			if findErr == nil {
				return replay(existing, stationID, actor.Username)
			}
		}
		return domain.TransactionResponse{}, err
	}

	if warnings == nil {
		warnings = []domain.CreditLimitWarning{}
	}
	return domain.TransactionResponse{Transaction: *created, Warnings: warnings}, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Transaction{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Transaction{}, fmt.Errorf("%w: transaction id is required", domain.ErrInvalidInput)
	}
	tx, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// replay returns the stored transaction for a resubmitted key. Keys are global,
// so a key owned by another station or employee is a conflict, not a replay.
func replay(tx *domain.Transaction, stationID string, employeeID string) (domain.TransactionResponse, error) {
	if tx.StationID != stationID || tx.EmployeeID != employeeID {
		return domain.TransactionResponse{}, fmt.Errorf("idempotency key %q already used by another submission: %w", tx.IdempotencyKey, store.ErrConflict)
	}
	return duplicateResponse(tx), nil
}

func duplicateResponse(tx *domain.Transaction) domain.TransactionResponse {
	return domain.TransactionResponse{
		Transaction: *tx,
		Warnings:    []domain.CreditLimitWarning{},
		Duplicate:   true,
	}
}

func normalizeReadingIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	normalized := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: reading ids must not be empty", domain.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: reading %s listed twice", domain.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		normalized = append(normalized, id)
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: at least one reading is required", domain.ErrInvalidInput)
	}
	return normalized, nil
}
