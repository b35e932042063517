package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidReading      = errors.New("invalid reading")
	ErrMissingPrice        = errors.New("missing fuel price")
	ErrBreakdownMismatch   = errors.New("payment breakdown does not match sale value")
	ErrUnallocatedCredit   = errors.New("credit amount is not fully allocated")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrReadingSettled      = errors.New("reading already settled")
	ErrShiftAlreadyActive  = errors.New("shift already active")
	ErrNoActiveShift       = errors.New("no active shift")
	ErrAlreadyConfirmed    = errors.New("handover already confirmed")
	ErrAlreadyDisputed     = errors.New("handover already disputed")
	ErrAlreadyResolved     = errors.New("handover already resolved")
	ErrHandoverNotDisputed = errors.New("handover is not disputed")
	ErrHandoverSourceOpen  = errors.New("source handover is not settled")
	ErrForbidden           = errors.New("forbidden")
	ErrSettlementOverpays  = errors.New("settlement exceeds outstanding balance")
	ErrSourceAlreadyHanded = errors.New("source already handed over")
)

type InvalidReadingError struct {
	NozzleID   string
	Entered    decimal.Decimal
	Comparison decimal.Decimal
}

func (e *InvalidReadingError) Error() string {
	return fmt.Sprintf("invalid reading for nozzle %s: %s is not above previous %s", e.NozzleID, e.Entered.String(), e.Comparison.String())
}

func (e *InvalidReadingError) Unwrap() error { return ErrInvalidReading }

type MissingPriceError struct {
	StationID string
	FuelType  string
	Date      string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("no %s price for station %s effective on %s", e.FuelType, e.StationID, e.Date)
}

func (e *MissingPriceError) Unwrap() error { return ErrMissingPrice }

type BreakdownMismatchError struct {
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *BreakdownMismatchError) Error() string {
	return fmt.Sprintf("payment breakdown totals %s but sale value is %s", e.Actual.StringFixed(2), e.Expected.StringFixed(2))
}

func (e *BreakdownMismatchError) Unwrap() error { return ErrBreakdownMismatch }

type UnallocatedCreditError struct {
	Credit    decimal.Decimal
	Allocated decimal.Decimal
}

func (e *UnallocatedCreditError) Error() string {
	return fmt.Sprintf("credit of %s has %s allocated to creditors", e.Credit.StringFixed(2), e.Allocated.StringFixed(2))
}

func (e *UnallocatedCreditError) Unwrap() error { return ErrUnallocatedCredit }

type CreditLimitError struct {
	Warnings []CreditLimitWarning
}

func (e *CreditLimitError) Error() string {
	if len(e.Warnings) == 0 {
		return ErrCreditLimitExceeded.Error()
	}
	w := e.Warnings[0]
	return fmt.Sprintf("creditor %s would owe %s against a limit of %s", w.CreditorID, w.Outstanding.StringFixed(2), w.CreditLimit.StringFixed(2))
}

func (e *CreditLimitError) Unwrap() error { return ErrCreditLimitExceeded }

type ShiftAlreadyActiveError struct {
	EmployeeID string
	ShiftID    string
	StationID  string
}

func (e *ShiftAlreadyActiveError) Error() string {
	if e.ShiftID == "" {
		return fmt.Sprintf("employee %s already has an active shift", e.EmployeeID)
	}
	return fmt.Sprintf("employee %s already has active shift %s at station %s", e.EmployeeID, e.ShiftID, e.StationID)
}

func (e *ShiftAlreadyActiveError) Unwrap() error { return ErrShiftAlreadyActive }

// HandoverStateError is returned when a handover transition finds the record in
// a state other than the one it expected.
type HandoverStateError struct {
	HandoverID string
	Status     string
}

func (e *HandoverStateError) Error() string {
	return fmt.Sprintf("handover %s is %s", e.HandoverID, e.Status)
}

func (e *HandoverStateError) Unwrap() []error {
	switch e.Status {
	case HandoverStatusConfirmed:
		return []error{ErrAlreadyConfirmed}
	case HandoverStatusDisputed:
		return []error{ErrAlreadyDisputed}
	case HandoverStatusResolved:
		return []error{ErrAlreadyResolved, ErrAlreadyDisputed}
	case HandoverStatusPending:
		return []error{ErrHandoverNotDisputed}
	}
	return nil
}

func HandoverState(id string, status string) error {
	return &HandoverStateError{HandoverID: id, Status: status}
}
