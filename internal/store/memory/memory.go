package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
	"fuelsync/backend/internal/xid"
)

// Store keeps every aggregate behind one lock so each write is a single
// critical section.
type Store struct {
	mu                    sync.RWMutex
	nozzlesByID           map[string]domain.Nozzle
	pricesByKey           map[string][]domain.FuelPrice
	readingsByID          map[string]domain.NozzleReading
	readingsByNozzle      map[string][]string
	readingTx             map[string]string
	transactionsByID      map[string]*domain.Transaction
	transactionsByIdem    map[string]string
	creditorsByID         map[string]domain.Creditor
	creditEntries         map[string][]domain.CreditEntry
	shiftsByID            map[string]domain.Shift
	activeShiftByEmployee map[string]string
	handoversByID         map[string]domain.CashHandover
	handoverBySource      map[string]string
	auditLogs             []domain.AuditLog
	usersByUsername       map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		nozzlesByID:           make(map[string]domain.Nozzle),
		pricesByKey:           make(map[string][]domain.FuelPrice),
		readingsByID:          make(map[string]domain.NozzleReading),
		readingsByNozzle:      make(map[string][]string),
		readingTx:             make(map[string]string),
		transactionsByID:      make(map[string]*domain.Transaction),
		transactionsByIdem:    make(map[string]string),
		creditorsByID:         make(map[string]domain.Creditor),
		creditEntries:         make(map[string][]domain.CreditEntry),
		shiftsByID:            make(map[string]domain.Shift),
		activeShiftByEmployee: make(map[string]string),
		handoversByID:         make(map[string]domain.CashHandover),
		handoverBySource:      make(map[string]string),
		auditLogs:             make([]domain.AuditLog, 0, 128),
		usersByUsername:       make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_EMPLOYEE_PASSWORD; unset variables fall back to dev defaults with a
// warning. The in-memory store is never used when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "employee123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		zap.L().Warn("memory store is using default dev credentials; set SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and SEED_EMPLOYEE_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"owner", ownerPwd, domain.RoleOwner},
		{"manager", managerPwd, domain.RoleManager},
		{"employee", employeePwd, domain.RoleEmployee},
		{"employee2", employeePwd, domain.RoleEmployee},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users, two nozzles at main-station and
// prices effective from the Unix epoch.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	epoch := time.Unix(0, 0).UTC()
	for _, n := range []domain.Nozzle{
		{ID: "N1", StationID: "main-station", FuelType: "petrol", InitialReading: decimal.Zero, Active: true, CreatedAt: epoch},
		{ID: "N2", StationID: "main-station", FuelType: "diesel", InitialReading: decimal.NewFromInt(1000), Active: true, CreatedAt: epoch},
	} {
		s.nozzlesByID[n.ID] = n
	}
	for _, p := range []domain.FuelPrice{
		{StationID: "main-station", FuelType: "petrol", Price: decimal.RequireFromString("95.50"), EffectiveFrom: epoch, SetBy: "system"},
		{StationID: "main-station", FuelType: "diesel", Price: decimal.RequireFromString("87.25"), EffectiveFrom: epoch, SetBy: "system"},
	} {
		key := priceKey(p.StationID, p.FuelType)
		s.pricesByKey[key] = append(s.pricesByKey[key], p)
	}
	return s
}

func (s *Store) CreateNozzle(_ context.Context, nozzle domain.Nozzle) (*domain.Nozzle, error) {
	if strings.TrimSpace(nozzle.ID) == "" || strings.TrimSpace(nozzle.StationID) == "" || strings.TrimSpace(nozzle.FuelType) == "" {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nozzlesByID[nozzle.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if nozzle.CreatedAt.IsZero() {
		nozzle.CreatedAt = time.Now().UTC()
	}
	nozzle.Active = true
	s.nozzlesByID[nozzle.ID] = nozzle
	created := nozzle
	return &created, nil
}

func (s *Store) GetNozzle(_ context.Context, id string) (*domain.Nozzle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nozzle, exists := s.nozzlesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &nozzle, nil
}

func (s *Store) SetFuelPrice(_ context.Context, price domain.FuelPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := priceKey(price.StationID, price.FuelType)
	prices := s.pricesByKey[key]
	replaced := false
	for i := range prices {
		if prices[i].EffectiveFrom.Equal(price.EffectiveFrom) {
			prices[i] = price
			replaced = true
		}
	}
	if !replaced {
		prices = append(prices, price)
	}
	slices.SortFunc(prices, func(a, b domain.FuelPrice) int {
		return a.EffectiveFrom.Compare(b.EffectiveFrom)
	})
	s.pricesByKey[key] = prices
	return nil
}

func (s *Store) GetEffectivePrice(_ context.Context, stationID string, fuelType string, at time.Time) (*domain.FuelPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prices := s.pricesByKey[priceKey(stationID, fuelType)]
	for i := len(prices) - 1; i >= 0; i-- {
		if !prices[i].EffectiveFrom.After(at) {
			price := prices[i]
			return &price, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetLastReading(_ context.Context, nozzleID string) (*domain.NozzleReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last, ok := s.lastReadingLocked(nozzleID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &last, nil
}

func (s *Store) CreateReading(_ context.Context, reading domain.NozzleReading) (*domain.NozzleReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nozzlesByID[reading.NozzleID]; !exists {
		return nil, store.ErrNotFound
	}
	// Another reading landed after the caller resolved its comparison value.
	if last, ok := s.lastReadingLocked(reading.NozzleID); ok && !last.EnteredValue.Equal(reading.ComparisonValue) {
		return nil, store.ErrConflict
	}
	if reading.ID == "" {
		reading.ID = xid.New("rdg")
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now().UTC()
	}
	reading.TransactionID = ""

	s.readingsByID[reading.ID] = reading
	s.readingsByNozzle[reading.NozzleID] = append(s.readingsByNozzle[reading.NozzleID], reading.ID)
	created := reading
	return &created, nil
}

func (s *Store) GetReadings(_ context.Context, ids []string) ([]domain.NozzleReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.NozzleReading, 0, len(ids))
	for _, id := range ids {
		reading, exists := s.readingsByID[id]
		if !exists {
			return nil, fmt.Errorf("reading %s: %w", id, store.ErrNotFound)
		}
		reading.TransactionID = s.readingTx[id]
		result = append(result, reading)
	}
	return result, nil
}

func (s *Store) ListReadings(_ context.Context, stationID string, fromDate string, toDate string) ([]domain.NozzleReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.NozzleReading, 0, 64)
	for id, reading := range s.readingsByID {
		if reading.StationID != stationID || reading.ReadingDate < fromDate || reading.ReadingDate > toDate {
			continue
		}
		reading.TransactionID = s.readingTx[id]
		result = append(result, reading)
	}
	slices.SortFunc(result, func(a, b domain.NozzleReading) int {
		if c := a.ReadingAt.Compare(b.ReadingAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) FindTransactionByIdempotency(_ context.Context, key string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.transactionsByIdem[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(s.transactionsByID[id]), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

// CreateTransaction settles the readings, appends credit entries and posts to
// the employee's active shift at the station. Either all of it happens or none.
func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction, entries []domain.CreditEntry, guard store.CreditGuard) (*domain.Transaction, error) {
	if tx.IdempotencyKey == "" || len(tx.ReadingIDs) == 0 {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionsByIdem[tx.IdempotencyKey]; exists {
		return nil, store.ErrDuplicate
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	for _, id := range tx.ReadingIDs {
		reading, exists := s.readingsByID[id]
		if !exists || reading.StationID != tx.StationID {
			return nil, fmt.Errorf("reading %s: %w", id, store.ErrNotFound)
		}
		if settledBy, settled := s.readingTx[id]; settled {
			return nil, fmt.Errorf("reading %s settled by %s: %w", id, settledBy, domain.ErrReadingSettled)
		}
	}

	balances := make([]settlement.CreditorBalance, 0, len(entries))
	for _, entry := range entries {
		creditor, exists := s.creditorsByID[entry.CreditorID]
		if !exists || creditor.StationID != tx.StationID {
			return nil, fmt.Errorf("creditor %s: %w", entry.CreditorID, store.ErrNotFound)
		}
		balances = append(balances, settlement.CreditorBalance{
			CreditorID:  creditor.ID,
			CreditLimit: creditor.CreditLimit,
			Outstanding: settlement.Outstanding(s.creditEntries[creditor.ID]).Add(entry.Delta),
		})
	}
	if guard != nil {
		if err := guard(balances); err != nil {
			return nil, err
		}
	}

	var posted *domain.Shift
	if shiftID, active := s.activeShiftByEmployee[tx.EmployeeID]; active {
		rec := s.shiftsByID[shiftID]
		if rec.StationID == tx.StationID {
			shift, err := settlement.ResumeShift(rec)
			if err != nil {
				return nil, err
			}
			next := shift.Post(settlement.Posting{
				Readings: len(tx.ReadingIDs),
				Litres:   tx.LitresSold,
				Sales:    tx.SaleValue,
				Online:   tx.PaymentBreakdown.Online,
				Credit:   tx.PaymentBreakdown.Credit,
			}).Record()
			posted = &next
			tx.ShiftID = next.ID
		}
	}

	// Nothing below can fail.
	for _, entry := range entries {
		entry.ID = xid.New("cre")
		entry.CauseID = tx.ID
		entry.Kind = domain.CreditEntryAllocation
		entry.CreatedAt = tx.CreatedAt
		s.creditEntries[entry.CreditorID] = append(s.creditEntries[entry.CreditorID], entry)
	}
	for _, id := range tx.ReadingIDs {
		s.readingTx[id] = tx.ID
	}
	if posted != nil {
		s.shiftsByID[posted.ID] = *posted
	}
	stored := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = stored
	s.transactionsByIdem[tx.IdempotencyKey] = tx.ID
	return cloneTransaction(stored), nil
}

func (s *Store) ListTransactions(_ context.Context, stationID string, fromDate string, toDate string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 64)
	for _, tx := range s.transactionsByID {
		if tx.StationID != stationID || tx.TransactionDate < fromDate || tx.TransactionDate > toDate {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.EmployeeID) == "" || strings.TrimSpace(shift.StationID) == "" {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if activeID, exists := s.activeShiftByEmployee[shift.EmployeeID]; exists {
		active := s.shiftsByID[activeID]
		return nil, &domain.ShiftAlreadyActiveError{EmployeeID: shift.EmployeeID, ShiftID: active.ID, StationID: active.StationID}
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartTime.IsZero() {
		shift.StartTime = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusActive
	shift.EndTime = nil

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByEmployee[shift.EmployeeID] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetActiveShift(_ context.Context, employeeID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByEmployee[employeeID]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift := s.shiftsByID[shiftID]
	return &shift, nil
}

func (s *Store) CloseActiveShift(_ context.Context, employeeID string, end settlement.ShiftEnd) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shiftID, exists := s.activeShiftByEmployee[employeeID]
	if !exists {
		return nil, domain.ErrNoActiveShift
	}
	active, err := settlement.ResumeShift(s.shiftsByID[shiftID])
	if err != nil {
		return nil, err
	}
	if end.At.IsZero() {
		end.At = time.Now().UTC()
	}
	closed, err := active.End(end)
	if err != nil {
		return nil, err
	}

	rec := closed.Record()
	delete(s.activeShiftByEmployee, employeeID)
	s.shiftsByID[shiftID] = rec
	return &rec, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &shift, nil
}

func (s *Store) ListShifts(_ context.Context, filter store.ShiftFilter) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shift, 0, 32)
	for _, shift := range s.shiftsByID {
		if filter.StationID != "" && shift.StationID != filter.StationID {
			continue
		}
		if filter.EmployeeID != "" && shift.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Status != "" && shift.Status != filter.Status {
			continue
		}
		if !filter.ClosedFrom.IsZero() || !filter.ClosedTo.IsZero() {
			if shift.EndTime == nil {
				continue
			}
			if !filter.ClosedFrom.IsZero() && shift.EndTime.Before(filter.ClosedFrom) {
				continue
			}
			if !filter.ClosedTo.IsZero() && !shift.EndTime.Before(filter.ClosedTo) {
				continue
			}
		}
		result = append(result, shift)
	}
	slices.SortFunc(result, func(a, b domain.Shift) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CreateHandover(_ context.Context, handover domain.CashHandover) (*domain.CashHandover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sourceKey := handoverSourceKey(handover)
	if sourceKey != "" {
		if _, exists := s.handoverBySource[sourceKey]; exists {
			return nil, domain.ErrSourceAlreadyHanded
		}
	}
	if handover.ID == "" {
		handover.ID = xid.New("ho")
	}
	if handover.CreatedAt.IsZero() {
		handover.CreatedAt = time.Now().UTC()
	}
	s.handoversByID[handover.ID] = handover
	if sourceKey != "" {
		s.handoverBySource[sourceKey] = handover.ID
	}
	created := handover
	return &created, nil
}

func (s *Store) GetHandover(_ context.Context, id string) (*domain.CashHandover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handover, exists := s.handoversByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &handover, nil
}

// TransitionHandover replaces the record only while it is still in fromStatus.
func (s *Store) TransitionHandover(_ context.Context, next domain.CashHandover, fromStatus string) (*domain.CashHandover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.handoversByID[next.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if current.Status != fromStatus {
		return nil, domain.HandoverState(current.ID, current.Status)
	}
	s.handoversByID[next.ID] = next
	saved := next
	return &saved, nil
}

func (s *Store) ListHandovers(_ context.Context, filter store.HandoverFilter) ([]domain.CashHandover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashHandover, 0, 32)
	for _, h := range s.handoversByID {
		if filter.StationID != "" && h.StationID != filter.StationID {
			continue
		}
		if filter.Status != "" && h.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && h.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !h.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, h)
	}
	slices.SortFunc(result, func(a, b domain.CashHandover) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CreateCreditor(_ context.Context, creditor domain.Creditor) (*domain.Creditor, error) {
	if strings.TrimSpace(creditor.StationID) == "" || strings.TrimSpace(creditor.Name) == "" || creditor.CreditLimit.IsNegative() {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if creditor.ID == "" {
		creditor.ID = xid.New("crd")
	}
	if _, exists := s.creditorsByID[creditor.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if creditor.CreatedAt.IsZero() {
		creditor.CreatedAt = time.Now().UTC()
	}
	creditor.CurrentOutstanding = decimal.Zero
	s.creditorsByID[creditor.ID] = creditor
	created := creditor
	return &created, nil
}

func (s *Store) GetCreditor(_ context.Context, id string) (*domain.Creditor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creditor, exists := s.creditorsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	creditor.CurrentOutstanding = settlement.Outstanding(s.creditEntries[id])
	return &creditor, nil
}

func (s *Store) ListCreditors(_ context.Context, stationID string) ([]domain.Creditor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Creditor, 0, len(s.creditorsByID))
	for id, creditor := range s.creditorsByID {
		if stationID != "" && creditor.StationID != stationID {
			continue
		}
		creditor.CurrentOutstanding = settlement.Outstanding(s.creditEntries[id])
		result = append(result, creditor)
	}
	slices.SortFunc(result, func(a, b domain.Creditor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

// AppendSettlement records a payment against a creditor. A payment may not
// take the balance below zero.
func (s *Store) AppendSettlement(_ context.Context, entry domain.CreditEntry) (*domain.Creditor, error) {
	if !entry.Delta.IsNegative() {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	creditor, exists := s.creditorsByID[entry.CreditorID]
	if !exists {
		return nil, store.ErrNotFound
	}
	outstanding := settlement.Outstanding(s.creditEntries[creditor.ID])
	if outstanding.Add(entry.Delta).IsNegative() {
		return nil, domain.ErrSettlementOverpays
	}
	if entry.ID == "" {
		entry.ID = xid.New("cre")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Kind = domain.CreditEntrySettlement
	s.creditEntries[creditor.ID] = append(s.creditEntries[creditor.ID], entry)
	creditor.CurrentOutstanding = outstanding.Add(entry.Delta)
	return &creditor, nil
}

func (s *Store) ListCreditEntries(_ context.Context, creditorIDs []string, before time.Time) ([]domain.CreditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CreditEntry, 0, 64)
	for _, id := range creditorIDs {
		for _, entry := range s.creditEntries[id] {
			if !before.IsZero() && !entry.CreatedAt.Before(before) {
				continue
			}
			result = append(result, entry)
		}
	}
	slices.SortFunc(result, func(a, b domain.CreditEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, stationID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if stationID != "" && entry.StationID != stationID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleEmployee
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) lastReadingLocked(nozzleID string) (domain.NozzleReading, bool) {
	ids := s.readingsByNozzle[nozzleID]
	if len(ids) == 0 {
		return domain.NozzleReading{}, false
	}
	last := s.readingsByID[ids[len(ids)-1]]
	last.TransactionID = s.readingTx[last.ID]
	return last, true
}

func priceKey(stationID string, fuelType string) string {
	return stationID + "::" + fuelType
}

func handoverSourceKey(h domain.CashHandover) string {
	switch {
	case h.SourceShiftID != "":
		return "shift::" + h.SourceShiftID
	case h.SourceHandoverID != "":
		return "handover::" + h.SourceHandoverID
	default:
		return ""
	}
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.ReadingIDs = slices.Clone(src.ReadingIDs)
	dup.CreditAllocations = slices.Clone(src.CreditAllocations)
	return &dup
}

var _ store.Repository = (*Store)(nil)
