package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fuelsync/backend/internal/domain"
)

// ActiveShift is a shift still accumulating postings.
type ActiveShift struct {
	rec domain.Shift
}

// ClosedShift is a frozen shift. It has no mutators.
type ClosedShift struct {
	rec domain.Shift
}

type ShiftStart struct {
	ID         string
	EmployeeID string
	StationID  string
	ShiftType  string
	Notes      string
	At         time.Time
}

// Posting is one transaction's contribution to a shift.
type Posting struct {
	Readings int
	Litres   decimal.Decimal
	Sales    decimal.Decimal
	Online   decimal.Decimal
	Credit   decimal.Decimal
}

type ShiftEnd struct {
	CashCollected   decimal.Decimal
	OnlineCollected *decimal.Decimal
	Notes           string
	At              time.Time
}

func IsShiftType(shiftType string) bool {
	switch shiftType {
	case domain.ShiftTypeMorning, domain.ShiftTypeEvening, domain.ShiftTypeNight, domain.ShiftTypeFullDay:
		return true
	default:
		return false
	}
}

func StartShift(in ShiftStart) (ActiveShift, error) {
	if strings.TrimSpace(in.EmployeeID) == "" || strings.TrimSpace(in.StationID) == "" {
		return ActiveShift{}, fmt.Errorf("%w: shift requires employee and station", domain.ErrInvalidInput)
	}
	if !IsShiftType(in.ShiftType) {
		return ActiveShift{}, fmt.Errorf("%w: unknown shift type %q", domain.ErrInvalidInput, in.ShiftType)
	}
	return ActiveShift{rec: domain.Shift{
		ID:               in.ID,
		EmployeeID:       in.EmployeeID,
		StationID:        in.StationID,
		ShiftType:        in.ShiftType,
		Status:           domain.ShiftStatusActive,
		StartTime:        in.At.UTC(),
		TotalLitresSold:  decimal.Zero,
		TotalSalesAmount: decimal.Zero,
		TotalOnline:      decimal.Zero,
		TotalCredit:      decimal.Zero,
		ExpectedCash:     decimal.Zero,
		Notes:            strings.TrimSpace(in.Notes),
	}}, nil
}

// ResumeShift rebuilds an ActiveShift from a stored record.
func ResumeShift(rec domain.Shift) (ActiveShift, error) {
	if rec.Status != domain.ShiftStatusActive {
		return ActiveShift{}, domain.ErrNoActiveShift
	}
	return ActiveShift{rec: rec}, nil
}

func (s ActiveShift) Record() domain.Shift { return s.rec }

// Post adds a transaction's totals and recomputes expected cash as sales minus
// online minus credit.
func (s ActiveShift) Post(p Posting) ActiveShift {
	rec := s.rec
	rec.ReadingsCount += p.Readings
	rec.TotalLitresSold = rec.TotalLitresSold.Add(p.Litres)
	rec.TotalSalesAmount = rec.TotalSalesAmount.Add(p.Sales)
	rec.TotalOnline = rec.TotalOnline.Add(p.Online)
	rec.TotalCredit = rec.TotalCredit.Add(p.Credit)
	rec.ExpectedCash = rec.TotalSalesAmount.Sub(rec.TotalOnline).Sub(rec.TotalCredit)
	return ActiveShift{rec: rec}
}

// End freezes the shift. Amounts are validated before anything changes.
func (s ActiveShift) End(in ShiftEnd) (ClosedShift, error) {
	if in.CashCollected.IsNegative() {
		return ClosedShift{}, fmt.Errorf("%w: cash collected must not be negative", domain.ErrInvalidInput)
	}
	if in.OnlineCollected != nil && in.OnlineCollected.IsNegative() {
		return ClosedShift{}, fmt.Errorf("%w: online collected must not be negative", domain.ErrInvalidInput)
	}
	if err := CheckMoney("cash collected", in.CashCollected); err != nil {
		return ClosedShift{}, err
	}
	if in.OnlineCollected != nil {
		if err := CheckMoney("online collected", *in.OnlineCollected); err != nil {
			return ClosedShift{}, err
		}
	}

	rec := s.rec
	at := in.At.UTC()
	rec.Status = domain.ShiftStatusClosed
	rec.EndTime = &at
	rec.ActualCashCollected = in.CashCollected
	rec.CashDifference = in.CashCollected.Sub(rec.ExpectedCash)
	if in.OnlineCollected != nil {
		online := *in.OnlineCollected
		diff := online.Sub(rec.TotalOnline)
		rec.ActualOnlineCollected = &online
		rec.OnlineDifference = &diff
	}
	rec.CloseNotes = strings.TrimSpace(in.Notes)
	return ClosedShift{rec: rec}, nil
}

func (s ClosedShift) Record() domain.Shift { return s.rec }

func (s ClosedShift) CashDifference() decimal.Decimal { return s.rec.CashDifference }

// ClosedShiftFrom rebuilds a ClosedShift from a stored record.
func ClosedShiftFrom(rec domain.Shift) (ClosedShift, error) {
	if rec.Status != domain.ShiftStatusClosed || rec.EndTime == nil {
		return ClosedShift{}, fmt.Errorf("%w: shift %s is not closed", domain.ErrInvalidInput, rec.ID)
	}
	return ClosedShift{rec: rec}, nil
}
