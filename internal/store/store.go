package store

import (
	"context"
	"errors"
	"time"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/settlement"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict means a concurrent writer won; the caller may resubmit.
	ErrConflict = errors.New("concurrent update conflict, retry the request")
)

func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// CreditGuard sees every allocated creditor's balance after a posting and may
// veto the whole transaction before anything is committed.
type CreditGuard func(balances []settlement.CreditorBalance) error

type ShiftFilter struct {
	StationID  string
	EmployeeID string
	Status     string
	// ClosedFrom and ClosedTo bound EndTime as [from, to).
	ClosedFrom time.Time
	ClosedTo   time.Time
	Limit      int
}

type HandoverFilter struct {
	StationID string
	Status    string
	// From and To bound CreatedAt as [from, to).
	From  time.Time
	To    time.Time
	Limit int
}

type Repository interface {
	CreateNozzle(ctx context.Context, nozzle domain.Nozzle) (*domain.Nozzle, error)
	GetNozzle(ctx context.Context, id string) (*domain.Nozzle, error)
	SetFuelPrice(ctx context.Context, price domain.FuelPrice) error
	GetEffectivePrice(ctx context.Context, stationID string, fuelType string, at time.Time) (*domain.FuelPrice, error)

	GetLastReading(ctx context.Context, nozzleID string) (*domain.NozzleReading, error)
	CreateReading(ctx context.Context, reading domain.NozzleReading) (*domain.NozzleReading, error)
	GetReadings(ctx context.Context, ids []string) ([]domain.NozzleReading, error)
	ListReadings(ctx context.Context, stationID string, fromDate string, toDate string) ([]domain.NozzleReading, error)

	FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction, entries []domain.CreditEntry, guard CreditGuard) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, stationID string, fromDate string, toDate string) ([]domain.Transaction, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, employeeID string) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, employeeID string, end settlement.ShiftEnd) (*domain.Shift, error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
	ListShifts(ctx context.Context, filter ShiftFilter) ([]domain.Shift, error)

	CreateHandover(ctx context.Context, handover domain.CashHandover) (*domain.CashHandover, error)
	GetHandover(ctx context.Context, id string) (*domain.CashHandover, error)
	TransitionHandover(ctx context.Context, next domain.CashHandover, fromStatus string) (*domain.CashHandover, error)
	ListHandovers(ctx context.Context, filter HandoverFilter) ([]domain.CashHandover, error)

	CreateCreditor(ctx context.Context, creditor domain.Creditor) (*domain.Creditor, error)
	GetCreditor(ctx context.Context, id string) (*domain.Creditor, error)
	ListCreditors(ctx context.Context, stationID string) ([]domain.Creditor, error)
	AppendSettlement(ctx context.Context, entry domain.CreditEntry) (*domain.Creditor, error)
	ListCreditEntries(ctx context.Context, creditorIDs []string, before time.Time) ([]domain.CreditEntry, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, stationID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
