package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
	"fuelsync/backend/internal/xid"
)

const transactionColumns = `id, station_id, employee_id, shift_id, transaction_date::text, reading_ids,
	litres_sold::text, sale_value::text, cash_amount::text, online_amount::text, credit_amount::text,
	idempotency_key, notes, created_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var shiftID *string
	var litres, value, cash, online, credit string
	if err := row.Scan(&tx.ID, &tx.StationID, &tx.EmployeeID, &shiftID, &tx.TransactionDate, &tx.ReadingIDs,
		&litres, &value, &cash, &online, &credit, &tx.IdempotencyKey, &tx.Notes, &tx.CreatedAt); err != nil {
		return nil, err
	}
	var d decoder
	tx.ShiftID = deref(shiftID)
	tx.LitresSold = d.dec(litres)
	tx.SaleValue = d.dec(value)
	tx.PaymentBreakdown = domain.PaymentBreakdown{Cash: d.dec(cash), Online: d.dec(online), Credit: d.dec(credit)}
	tx.CreatedAt = tx.CreatedAt.UTC()
	if d.err != nil {
		return nil, d.err
	}
	return &tx, nil
}

func (s *Store) FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "idempotency_key", key)
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "id", id)
}

func (s *Store) findTransaction(ctx context.Context, column string, value string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE `+column+` = $1
	`, value))
	if err != nil {
		return nil, notFound(err)
	}

	allocations, err := s.allocationsFor(ctx, []string{tx.ID})
	if err != nil {
		return nil, err
	}
	tx.CreditAllocations = allocations[tx.ID]
	if tx.CreditAllocations == nil {
		tx.CreditAllocations = []domain.CreditAllocation{}
	}
	return tx, nil
}

func (s *Store) allocationsFor(ctx context.Context, txIDs []string) (map[string][]domain.CreditAllocation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT cause_id, creditor_id, delta::text
		FROM credit_entries
		WHERE kind = 'allocation' AND cause_id = ANY($1)
		ORDER BY creditor_id ASC
	`, txIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.CreditAllocation, len(txIDs))
	var d decoder
	for rows.Next() {
		var causeID, creditorID, delta string
		if err := rows.Scan(&causeID, &creditorID, &delta); err != nil {
			return nil, err
		}
		result[causeID] = append(result[causeID], domain.CreditAllocation{CreditorID: creditorID, Amount: d.dec(delta)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, d.err
}

// CreateTransaction settles the readings, appends credit entries and posts to
// the employee's active shift at the station in one serializable transaction.
func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction, entries []domain.CreditEntry, guard store.CreditGuard) (*domain.Transaction, error) {
	if tx.IdempotencyKey == "" || len(tx.ReadingIDs) == 0 {
		return nil, domain.ErrInvalidInput
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	var saved domain.Transaction
	err := s.inTx(ctx, func(pgTx pgx.Tx) error {
		saved = tx
		saved.ShiftID = ""

		var existing string
		err := pgTx.QueryRow(ctx, `SELECT id FROM transactions WHERE idempotency_key = $1`, tx.IdempotencyKey).Scan(&existing)
		if err == nil {
			return store.ErrDuplicate
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		if err := lockUnsettledReadings(ctx, pgTx, tx.StationID, tx.ReadingIDs); err != nil {
			return err
		}

		balances, err := lockCreditorBalances(ctx, pgTx, tx.StationID, entries)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(balances); err != nil {
				return err
			}
		}

		shift, err := scanShift(pgTx.QueryRow(ctx, `
			SELECT `+shiftColumns+`
			FROM shifts
			WHERE employee_id = $1 AND status = 'active'
			FOR UPDATE
		`, tx.EmployeeID))
		switch {
		case err == nil && shift.StationID == tx.StationID:
			active, err := settlement.ResumeShift(*shift)
			if err != nil {
				return err
			}
			posted := active.Post(settlement.Posting{
				Readings: len(tx.ReadingIDs),
				Litres:   tx.LitresSold,
				Sales:    tx.SaleValue,
				Online:   tx.PaymentBreakdown.Online,
				Credit:   tx.PaymentBreakdown.Credit,
			}).Record()
			if err := updateShiftTotals(ctx, pgTx, posted); err != nil {
				return err
			}
			saved.ShiftID = posted.ID
		case err != nil && !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		_, err = pgTx.Exec(ctx, `
			INSERT INTO transactions (
				id, station_id, employee_id, shift_id, transaction_date, reading_ids,
				litres_sold, sale_value, cash_amount, online_amount, credit_amount,
				idempotency_key, notes, created_at
			)
			VALUES ($1,$2,$3,$4,$5::date,$6,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12,$13,$14)
		`, saved.ID, saved.StationID, saved.EmployeeID, nullIfEmpty(saved.ShiftID), saved.TransactionDate, saved.ReadingIDs,
			numeric(saved.LitresSold), numeric(saved.SaleValue), numeric(saved.PaymentBreakdown.Cash),
			numeric(saved.PaymentBreakdown.Online), numeric(saved.PaymentBreakdown.Credit),
			saved.IdempotencyKey, saved.Notes, saved.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicate
			}
			return err
		}

		for _, entry := range entries {
			_, err := pgTx.Exec(ctx, `
				INSERT INTO credit_entries (id, creditor_id, delta, kind, cause_id, reference, created_at)
				VALUES ($1,$2,$3::numeric,$4,$5,$6,$7)
			`, xid.New("cre"), entry.CreditorID, numeric(entry.Delta), domain.CreditEntryAllocation, saved.ID, entry.Reference, saved.CreatedAt)
			if err != nil {
				return err
			}
		}

		_, err = pgTx.Exec(ctx, `
			UPDATE nozzle_readings
			SET transaction_id = $1
			WHERE id = ANY($2)
		`, saved.ID, saved.ReadingIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func lockUnsettledReadings(ctx context.Context, pgTx pgx.Tx, stationID string, ids []string) error {
	rows, err := pgTx.Query(ctx, `
		SELECT id, station_id, transaction_id
		FROM nozzle_readings
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id, station string
		var settledBy *string
		if err := rows.Scan(&id, &station, &settledBy); err != nil {
			return err
		}
		if station != stationID {
			return fmt.Errorf("reading %s: %w", id, store.ErrNotFound)
		}
		if settledBy != nil {
			return fmt.Errorf("reading %s settled by %s: %w", id, *settledBy, domain.ErrReadingSettled)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return fmt.Errorf("reading %s: %w", id, store.ErrNotFound)
		}
	}
	return nil
}

// lockCreditorBalances locks each allocated creditor row and returns its
// balance as it will be once entries are appended.
func lockCreditorBalances(ctx context.Context, pgTx pgx.Tx, stationID string, entries []domain.CreditEntry) ([]settlement.CreditorBalance, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.CreditorID)
	}

	rows, err := pgTx.Query(ctx, `
		SELECT c.id, c.station_id, c.credit_limit::text, COALESCE(
			(SELECT SUM(e.delta) FROM credit_entries e WHERE e.creditor_id = c.id), 0
		)::text
		FROM creditors c
		WHERE c.id = ANY($1)
		ORDER BY c.id
		FOR UPDATE OF c
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type current struct {
		limit       decimal.Decimal
		outstanding decimal.Decimal
	}
	byID := make(map[string]current, len(ids))
	var d decoder
	for rows.Next() {
		var id, station, limit, outstanding string
		if err := rows.Scan(&id, &station, &limit, &outstanding); err != nil {
			return nil, err
		}
		if station != stationID {
			continue
		}
		byID[id] = current{limit: d.dec(limit), outstanding: d.dec(outstanding)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}

	balances := make([]settlement.CreditorBalance, 0, len(entries))
	for _, entry := range entries {
		c, ok := byID[entry.CreditorID]
		if !ok {
			return nil, fmt.Errorf("creditor %s: %w", entry.CreditorID, store.ErrNotFound)
		}
		balances = append(balances, settlement.CreditorBalance{
			CreditorID:  entry.CreditorID,
			CreditLimit: c.limit,
			Outstanding: c.outstanding.Add(entry.Delta),
		})
	}
	return balances, nil
}

func (s *Store) ListTransactions(ctx context.Context, stationID string, fromDate string, toDate string) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE station_id = $1 AND transaction_date BETWEEN $2::date AND $3::date
		ORDER BY created_at ASC, id ASC
	`, stationID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return txs, nil
	}

	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	allocations, err := s.allocationsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i].CreditAllocations = allocations[txs[i].ID]
		if txs[i].CreditAllocations == nil {
			txs[i].CreditAllocations = []domain.CreditAllocation{}
		}
	}
	return txs, nil
}
