package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/xid"
)

func (s *Service) CreateCreditor(ctx context.Context, req domain.CreditorCreateRequest) (domain.Creditor, error) {
	if _, err := requireRole(ctx, domain.RoleManager, domain.RoleOwner); err != nil {
		return domain.Creditor{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Creditor{}, fmt.Errorf("%w: creditor name is required", domain.ErrInvalidInput)
	}
	if req.CreditLimit.IsNegative() {
		return domain.Creditor{}, fmt.Errorf("%w: credit limit must not be negative", domain.ErrInvalidInput)
	}
	if err := settlement.CheckMoney("credit limit", req.CreditLimit); err != nil {
		return domain.Creditor{}, err
	}

	created, err := s.repo.CreateCreditor(ctx, domain.Creditor{
		ID:          xid.New("crd"),
		StationID:   s.stationOrDefault(req.StationID),
		Name:        name,
		CreditLimit: req.CreditLimit,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.Creditor{}, err
	}
	s.logAudit(ctx, created.StationID, "creditor_create", "creditor", created.ID, fmt.Sprintf("name=%s,limit=%s", created.Name, created.CreditLimit.StringFixed(2)))
	return *created, nil
}

func (s *Service) ListCreditors(ctx context.Context, stationID string) ([]domain.Creditor, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListCreditors(ctx, s.stationOrDefault(stationID))
}

// ListCreditEntries returns a creditor's ledger, oldest first.
func (s *Service) ListCreditEntries(ctx context.Context, creditorID string) ([]domain.CreditEntry, error) {
	if _, err := requireRole(ctx, domain.RoleManager, domain.RoleOwner); err != nil {
		return nil, err
	}
	creditor, err := s.repo.GetCreditor(ctx, strings.TrimSpace(creditorID))
	if err != nil {
		return nil, err
	}
	return s.repo.ListCreditEntries(ctx, []string{creditor.ID}, time.Time{})
}

// RecordSettlement books a payment received from a creditor. Payments may not
// exceed the outstanding balance.
func (s *Service) RecordSettlement(ctx context.Context, creditorID string, req domain.CreditSettlementRequest) (domain.CreditSettlementResponse, error) {
	if _, err := requireRole(ctx, domain.RoleManager, domain.RoleOwner); err != nil {
		return domain.CreditSettlementResponse{}, err
	}
	creditorID = strings.TrimSpace(creditorID)
	if creditorID == "" {
		return domain.CreditSettlementResponse{}, fmt.Errorf("%w: creditor id is required", domain.ErrInvalidInput)
	}
	if !req.Amount.IsPositive() {
		return domain.CreditSettlementResponse{}, fmt.Errorf("%w: settlement amount must be positive", domain.ErrInvalidInput)
	}
	if err := settlement.CheckMoney("settlement amount", req.Amount); err != nil {
		return domain.CreditSettlementResponse{}, err
	}

	entry := domain.CreditEntry{
		ID:         xid.New("cre"),
		CreditorID: creditorID,
		Delta:      req.Amount.Neg(),
		Kind:       domain.CreditEntrySettlement,
		Reference:  strings.TrimSpace(req.Reference),
		CreatedAt:  s.now(),
	}
	updated, err := s.repo.AppendSettlement(ctx, entry)
	if err != nil {
		return domain.CreditSettlementResponse{}, err
	}

	detail := fmt.Sprintf("amount=%s,outstanding=%s,reference=%s", req.Amount.StringFixed(2), updated.CurrentOutstanding.StringFixed(2), entry.Reference)
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		detail += ",notes=" + notes
	}
	s.logAudit(ctx, updated.StationID, "credit_settlement", "creditor", updated.ID, detail)
	s.invalidateReports(ctx, updated.StationID)
	return domain.CreditSettlementResponse{Entry: entry, Creditor: *updated}, nil
}
