package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fuelsync/backend/internal/domain"
)

// Handover is one of PendingHandover, ConfirmedHandover, DisputedHandover or
// ResolvedHandover. Only PendingHandover can be confirmed and only
// DisputedHandover can be resolved.
type Handover interface {
	Record() domain.CashHandover
	Status() string
	isHandover()
}

type PendingHandover struct{ rec domain.CashHandover }
type ConfirmedHandover struct{ rec domain.CashHandover }
type DisputedHandover struct{ rec domain.CashHandover }
type ResolvedHandover struct{ rec domain.CashHandover }

func (h PendingHandover) Record() domain.CashHandover   { return h.rec }
func (h ConfirmedHandover) Record() domain.CashHandover { return h.rec }
func (h DisputedHandover) Record() domain.CashHandover  { return h.rec }
func (h ResolvedHandover) Record() domain.CashHandover  { return h.rec }

func (PendingHandover) Status() string   { return domain.HandoverStatusPending }
func (ConfirmedHandover) Status() string { return domain.HandoverStatusConfirmed }
func (DisputedHandover) Status() string  { return domain.HandoverStatusDisputed }
func (ResolvedHandover) Status() string  { return domain.HandoverStatusResolved }

func (PendingHandover) isHandover()   {}
func (ConfirmedHandover) isHandover() {}
func (DisputedHandover) isHandover()  {}
func (ResolvedHandover) isHandover()  {}

type HandoverInput struct {
	ID               string
	StationID        string
	HandoverType     string
	FromUser         string
	ToUser           string
	ExpectedAmount   decimal.Decimal
	SourceShiftID    string
	SourceHandoverID string
	At               time.Time
}

type ConfirmInput struct {
	AcceptAsIs bool
	Actual     *decimal.Decimal
	Notes      string
	By         string
	At         time.Time
}

type ResolveInput struct {
	Notes string
	By    string
	At    time.Time
}

func IsHandoverType(handoverType string) bool {
	switch handoverType {
	case domain.HandoverShiftCollection, domain.HandoverManagerToOwner, domain.HandoverBankDeposit:
		return true
	default:
		return false
	}
}

func NewHandover(in HandoverInput) (PendingHandover, error) {
	from := strings.TrimSpace(in.FromUser)
	to := strings.TrimSpace(in.ToUser)
	if from == "" || to == "" || strings.TrimSpace(in.StationID) == "" {
		return PendingHandover{}, fmt.Errorf("%w: handover requires station, sender and receiver", domain.ErrInvalidInput)
	}
	if strings.EqualFold(from, to) {
		return PendingHandover{}, fmt.Errorf("%w: sender and receiver must differ", domain.ErrInvalidInput)
	}
	if !IsHandoverType(in.HandoverType) {
		return PendingHandover{}, fmt.Errorf("%w: unknown handover type %q", domain.ErrInvalidInput, in.HandoverType)
	}
	if in.ExpectedAmount.IsNegative() {
		return PendingHandover{}, fmt.Errorf("%w: expected amount must not be negative", domain.ErrInvalidInput)
	}
	if err := CheckMoney("expected amount", in.ExpectedAmount); err != nil {
		return PendingHandover{}, err
	}

	return PendingHandover{rec: domain.CashHandover{
		ID:               in.ID,
		StationID:        in.StationID,
		HandoverType:     in.HandoverType,
		FromUser:         from,
		ToUser:           to,
		SourceShiftID:    in.SourceShiftID,
		SourceHandoverID: in.SourceHandoverID,
		ExpectedAmount:   in.ExpectedAmount,
		ActualAmount:     decimal.Zero,
		Difference:       decimal.Zero,
		Status:           domain.HandoverStatusPending,
		CreatedAt:        in.At.UTC(),
	}}, nil
}

// LoadHandover rebuilds the variant matching a stored record's status.
func LoadHandover(rec domain.CashHandover) (Handover, error) {
	switch rec.Status {
	case domain.HandoverStatusPending:
		return PendingHandover{rec: rec}, nil
	case domain.HandoverStatusConfirmed:
		return ConfirmedHandover{rec: rec}, nil
	case domain.HandoverStatusDisputed:
		return DisputedHandover{rec: rec}, nil
	case domain.HandoverStatusResolved:
		return ResolvedHandover{rec: rec}, nil
	default:
		return nil, fmt.Errorf("%w: unknown handover status %q", domain.ErrInvalidInput, rec.Status)
	}
}

// Confirm records the received amount. An exact match confirms the handover;
// any difference disputes it with generated notes.
func (h PendingHandover) Confirm(in ConfirmInput) (Handover, error) {
	var actual decimal.Decimal
	switch {
	case in.AcceptAsIs:
		actual = h.rec.ExpectedAmount
	case in.Actual != nil:
		actual = *in.Actual
	default:
		return nil, fmt.Errorf("%w: actual amount or accept as is required", domain.ErrInvalidInput)
	}
	if actual.IsNegative() {
		return nil, fmt.Errorf("%w: actual amount must not be negative", domain.ErrInvalidInput)
	}
	if err := CheckMoney("actual amount", actual); err != nil {
		return nil, err
	}

	rec := h.rec
	at := in.At.UTC()
	rec.ActualAmount = actual
	rec.Difference = actual.Sub(rec.ExpectedAmount)
	rec.ConfirmNotes = strings.TrimSpace(in.Notes)
	rec.ConfirmedBy = in.By
	rec.ConfirmedAt = &at

	if rec.Difference.IsZero() {
		rec.Status = domain.HandoverStatusConfirmed
		return ConfirmedHandover{rec: rec}, nil
	}
	rec.Status = domain.HandoverStatusDisputed
	rec.DisputeNotes = DisputeNotes(rec.ExpectedAmount, actual)
	return DisputedHandover{rec: rec}, nil
}

// Resolve closes a dispute. The caller has already checked authority.
func (h DisputedHandover) Resolve(in ResolveInput) (ResolvedHandover, error) {
	notes := strings.TrimSpace(in.Notes)
	if notes == "" {
		return ResolvedHandover{}, fmt.Errorf("%w: resolution notes are required", domain.ErrInvalidInput)
	}
	rec := h.rec
	at := in.At.UTC()
	rec.Status = domain.HandoverStatusResolved
	rec.ResolutionNotes = notes
	rec.ResolvedBy = in.By
	rec.ResolvedAt = &at
	return ResolvedHandover{rec: rec}, nil
}

func DisputeNotes(expected decimal.Decimal, actual decimal.Decimal) string {
	diff := actual.Sub(expected)
	kind := "Excess"
	if diff.IsNegative() {
		kind = "Shortage"
	}
	return fmt.Sprintf("%s of %s: expected %s, received %s", kind, diff.Abs().StringFixed(2), expected.StringFixed(2), actual.StringFixed(2))
}

// StateError maps a handover that cannot take the requested transition to the
// matching taxonomy error.
func StateError(h Handover) error {
	rec := h.Record()
	return domain.HandoverState(rec.ID, h.Status())
}

// Settled reports whether a handover's amount is final and can seed the next
// handover in the chain.
func Settled(h Handover) bool {
	switch h.(type) {
	case ConfirmedHandover, ResolvedHandover:
		return true
	default:
		return false
	}
}
