package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
	"fuelsync/backend/internal/xid"
)

// Parties are the two ends of a handover with their roles resolved.
type Parties struct {
	From domain.Actor
	To   domain.Actor
}

// Authorizer decides who may confirm or resolve a handover.
type Authorizer interface {
	CanConfirm(actor domain.Actor, handover domain.CashHandover) bool
	CanResolve(actor domain.Actor, parties Parties) bool
}

// RoleAuthorizer lets the receiver or an owner confirm. Owners may resolve any
// dispute; a manager may resolve one only when neither party is an owner and
// the manager did not send the cash.
type RoleAuthorizer struct{}

func (RoleAuthorizer) CanConfirm(actor domain.Actor, handover domain.CashHandover) bool {
	return actor.Role == domain.RoleOwner || strings.EqualFold(actor.Username, handover.ToUser)
}

func (RoleAuthorizer) CanResolve(actor domain.Actor, parties Parties) bool {
	switch actor.Role {
	case domain.RoleOwner:
		return true
	case domain.RoleManager:
		if parties.From.Role == domain.RoleOwner || parties.To.Role == domain.RoleOwner {
			return false
		}
		return !strings.EqualFold(actor.Username, parties.From.Username)
	default:
		return false
	}
}

func (s *Service) CreateHandover(ctx context.Context, req domain.HandoverCreateRequest) (domain.HandoverResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.HandoverResponse{}, err
	}

	in := settlement.HandoverInput{
		ID:               xid.New("ho"),
		StationID:        s.stationOrDefault(req.StationID),
		HandoverType:     strings.ToLower(strings.TrimSpace(req.HandoverType)),
		FromUser:         strings.ToLower(strings.TrimSpace(req.FromUserID)),
		ToUser:           strings.ToLower(strings.TrimSpace(req.ToUserID)),
		SourceShiftID:    strings.TrimSpace(req.SourceShiftID),
		SourceHandoverID: strings.TrimSpace(req.SourceHandoverID),
		At:               s.now(),
	}
	if err := s.resolveHandoverSource(ctx, &in, req.ExpectedAmount); err != nil {
		return domain.HandoverResponse{}, err
	}
	if in.FromUser == "" {
		in.FromUser = actor.Username
	}
	if actor.Role == domain.RoleEmployee && !strings.EqualFold(actor.Username, in.FromUser) {
		return domain.HandoverResponse{}, fmt.Errorf("%w: employees may only hand over their own cash", domain.ErrForbidden)
	}

	pending, err := settlement.NewHandover(in)
	if err != nil {
		return domain.HandoverResponse{}, err
	}
	saved, err := s.repo.CreateHandover(ctx, pending.Record())
	if err != nil {
		return domain.HandoverResponse{}, err
	}

	s.metrics.IncHandover(saved.Status)
	s.logAudit(ctx, saved.StationID, "handover_create", "handover", saved.ID, fmt.Sprintf(
		"type=%s,from=%s,to=%s,expected=%s",
		saved.HandoverType, saved.FromUser, saved.ToUser, saved.ExpectedAmount.StringFixed(2),
	))
	s.invalidateReports(ctx, saved.StationID)
	return domain.HandoverResponse{Handover: *saved}, nil
}

// resolveHandoverSource fills the expected amount and sender from the source
// shift or handover when one is given.
func (s *Service) resolveHandoverSource(ctx context.Context, in *settlement.HandoverInput, expected *decimal.Decimal) error {
	switch {
	case in.SourceShiftID != "" && in.SourceHandoverID != "":
		return fmt.Errorf("%w: a handover has at most one source", domain.ErrInvalidInput)

	case in.SourceShiftID != "":
		shift, err := s.repo.GetShift(ctx, in.SourceShiftID)
		if err != nil {
			return err
		}
		if shift.StationID != in.StationID {
			return fmt.Errorf("shift %s at station %s: %w", shift.ID, in.StationID, store.ErrNotFound)
		}
		if _, err := settlement.ClosedShiftFrom(*shift); err != nil {
			return err
		}
		if in.FromUser != "" && !strings.EqualFold(in.FromUser, shift.EmployeeID) {
			return fmt.Errorf("%w: shift %s belongs to %s", domain.ErrInvalidInput, shift.ID, shift.EmployeeID)
		}
		in.FromUser = shift.EmployeeID
		in.ExpectedAmount = shift.ActualCashCollected
		if in.HandoverType == "" {
			in.HandoverType = domain.HandoverShiftCollection
		}

	case in.SourceHandoverID != "":
		rec, err := s.repo.GetHandover(ctx, in.SourceHandoverID)
		if err != nil {
			return err
		}
		if rec.StationID != in.StationID {
			return fmt.Errorf("handover %s at station %s: %w", rec.ID, in.StationID, store.ErrNotFound)
		}
		source, err := settlement.LoadHandover(*rec)
		if err != nil {
			return err
		}
		if !settlement.Settled(source) {
			return fmt.Errorf("handover %s is %s: %w", rec.ID, rec.Status, domain.ErrHandoverSourceOpen)
		}
		if in.FromUser != "" && !strings.EqualFold(in.FromUser, rec.ToUser) {
			return fmt.Errorf("%w: handover %s was received by %s", domain.ErrInvalidInput, rec.ID, rec.ToUser)
		}
		in.FromUser = rec.ToUser
		in.ExpectedAmount = rec.ActualAmount

	default:
		if expected == nil {
			return fmt.Errorf("%w: expected amount is required", domain.ErrInvalidInput)
		}
		in.ExpectedAmount = *expected
	}
	return nil
}

// ConfirmHandover records what the receiver counted. Any difference from the
// expected amount disputes the handover.
func (s *Service) ConfirmHandover(ctx context.Context, id string, req domain.HandoverConfirmRequest) (domain.HandoverResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.HandoverResponse{}, err
	}

	current, err := s.loadHandover(ctx, id)
	if err != nil {
		return domain.HandoverResponse{}, err
	}
	pending, ok := current.(settlement.PendingHandover)
	if !ok {
		return domain.HandoverResponse{}, settlement.StateError(current)
	}
	if !s.authorizer.CanConfirm(actor, pending.Record()) {
		return domain.HandoverResponse{}, fmt.Errorf("%w: only the receiver or an owner may confirm", domain.ErrForbidden)
	}

	next, err := pending.Confirm(settlement.ConfirmInput{
		AcceptAsIs: req.AcceptAsIs,
		Actual:     req.ActualAmount,
		Notes:      req.Notes,
		By:         actor.Username,
		At:         s.now(),
	})
	if err != nil {
		return domain.HandoverResponse{}, err
	}
	saved, err := s.repo.TransitionHandover(ctx, next.Record(), domain.HandoverStatusPending)
	if err != nil {
		return domain.HandoverResponse{}, err
	}

	s.metrics.IncHandover(saved.Status)
	if saved.Status == domain.HandoverStatusDisputed {
		s.logger.Warn("handover disputed",
			zap.String("handover_id", saved.ID),
			zap.String("from_user", saved.FromUser),
			zap.String("to_user", saved.ToUser),
			zap.String("difference", saved.Difference.StringFixed(2)),
		)
	}
	s.logAudit(ctx, saved.StationID, "handover_confirm", "handover", saved.ID, fmt.Sprintf(
		"status=%s,actual=%s,difference=%s",
		saved.Status, saved.ActualAmount.StringFixed(2), saved.Difference.StringFixed(2),
	))
	s.invalidateReports(ctx, saved.StationID)
	return domain.HandoverResponse{Handover: *saved}, nil
}

func (s *Service) ResolveHandover(ctx context.Context, id string, req domain.HandoverResolveRequest) (domain.HandoverResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.HandoverResponse{}, err
	}

	current, err := s.loadHandover(ctx, id)
	if err != nil {
		return domain.HandoverResponse{}, err
	}
	disputed, ok := current.(settlement.DisputedHandover)
	if !ok {
		return domain.HandoverResponse{}, settlement.StateError(current)
	}

	parties, err := s.handoverParties(ctx, disputed.Record())
	if err != nil {
		return domain.HandoverResponse{}, err
	}
	if !s.authorizer.CanResolve(actor, parties) {
		return domain.HandoverResponse{}, fmt.Errorf("%w: no settlement authority over this handover", domain.ErrForbidden)
	}

	resolved, err := disputed.Resolve(settlement.ResolveInput{
		Notes: req.Notes,
		By:    actor.Username,
		At:    s.now(),
	})
	if err != nil {
		return domain.HandoverResponse{}, err
	}
	saved, err := s.repo.TransitionHandover(ctx, resolved.Record(), domain.HandoverStatusDisputed)
	if err != nil {
		return domain.HandoverResponse{}, err
	}

	s.metrics.IncHandover(saved.Status)
	s.logAudit(ctx, saved.StationID, "handover_resolve", "handover", saved.ID, saved.ResolutionNotes)
	s.invalidateReports(ctx, saved.StationID)
	return domain.HandoverResponse{Handover: *saved}, nil
}

func (s *Service) GetHandover(ctx context.Context, id string) (domain.HandoverResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.HandoverResponse{}, err
	}
	current, err := s.loadHandover(ctx, id)
	if err != nil {
		return domain.HandoverResponse{}, err
	}
	rec := current.Record()
	if !visibleTo(actor, rec) {
		return domain.HandoverResponse{}, fmt.Errorf("%w: not a party to this handover", domain.ErrForbidden)
	}
	return domain.HandoverResponse{Handover: rec}, nil
}

// ListHandovers returns handovers newest first. Employees only see the ones
// they sent or received.
func (s *Service) ListHandovers(ctx context.Context, stationID string, status string, limit int) ([]domain.CashHandover, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", domain.HandoverStatusPending, domain.HandoverStatusConfirmed, domain.HandoverStatusDisputed, domain.HandoverStatusResolved:
	default:
		return nil, fmt.Errorf("%w: unknown handover status %q", domain.ErrInvalidInput, status)
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}

	filter := store.HandoverFilter{StationID: s.stationOrDefault(stationID), Status: status, Limit: limit}
	if actor.Role == domain.RoleEmployee {
		filter.Limit = 0
	}
	handovers, err := s.repo.ListHandovers(ctx, filter)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleEmployee {
		return handovers, nil
	}

	visible := make([]domain.CashHandover, 0, len(handovers))
	for _, h := range handovers {
		if visibleTo(actor, h) {
			visible = append(visible, h)
		}
		if len(visible) == limit {
			break
		}
	}
	return visible, nil
}

func (s *Service) loadHandover(ctx context.Context, id string) (settlement.Handover, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: handover id is required", domain.ErrInvalidInput)
	}
	rec, err := s.repo.GetHandover(ctx, id)
	if err != nil {
		return nil, err
	}
	return settlement.LoadHandover(*rec)
}

func (s *Service) handoverParties(ctx context.Context, h domain.CashHandover) (Parties, error) {
	from, err := s.partyActor(ctx, h.FromUser)
	if err != nil {
		return Parties{}, err
	}
	to, err := s.partyActor(ctx, h.ToUser)
	if err != nil {
		return Parties{}, err
	}
	return Parties{From: from, To: to}, nil
}

// partyActor looks up a handover party's role. Parties without an account
// carry no role.
func (s *Service) partyActor(ctx context.Context, username string) (domain.Actor, error) {
	user, err := s.repo.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Actor{Username: username}, nil
		}
		return domain.Actor{}, err
	}
	return domain.Actor{Username: user.Username, Role: user.Role}, nil
}

func visibleTo(actor domain.Actor, h domain.CashHandover) bool {
	if actor.Role != domain.RoleEmployee {
		return true
	}
	return strings.EqualFold(actor.Username, h.FromUser) || strings.EqualFold(actor.Username, h.ToUser)
}
