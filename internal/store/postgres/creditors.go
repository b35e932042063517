package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/store"
	"fuelsync/backend/internal/xid"
)

const creditorColumns = `c.id, c.station_id, c.name, c.credit_limit::text,
	COALESCE((SELECT SUM(e.delta) FROM credit_entries e WHERE e.creditor_id = c.id), 0)::text, c.created_at`

func scanCreditor(row pgx.Row) (*domain.Creditor, error) {
	var c domain.Creditor
	var limit, outstanding string
	if err := row.Scan(&c.ID, &c.StationID, &c.Name, &limit, &outstanding, &c.CreatedAt); err != nil {
		return nil, err
	}
	var d decoder
	c.CreditLimit = d.dec(limit)
	c.CurrentOutstanding = d.dec(outstanding)
	c.CreatedAt = c.CreatedAt.UTC()
	if d.err != nil {
		return nil, d.err
	}
	return &c, nil
}

func (s *Store) CreateCreditor(ctx context.Context, creditor domain.Creditor) (*domain.Creditor, error) {
	if strings.TrimSpace(creditor.StationID) == "" || strings.TrimSpace(creditor.Name) == "" || creditor.CreditLimit.IsNegative() {
		return nil, domain.ErrInvalidInput
	}
	if creditor.ID == "" {
		creditor.ID = xid.New("crd")
	}
	if creditor.CreatedAt.IsZero() {
		creditor.CreatedAt = time.Now().UTC()
	}
	creditor.CurrentOutstanding = decimal.Zero

	_, err := s.db.Exec(ctx, `
		INSERT INTO creditors (id, station_id, name, credit_limit, created_at)
		VALUES ($1,$2,$3,$4::numeric,$5)
	`, creditor.ID, creditor.StationID, creditor.Name, numeric(creditor.CreditLimit), creditor.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := creditor
	return &created, nil
}

func (s *Store) GetCreditor(ctx context.Context, id string) (*domain.Creditor, error) {
	c, err := scanCreditor(s.db.QueryRow(ctx, `
		SELECT `+creditorColumns+`
		FROM creditors c
		WHERE c.id = $1
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Store) ListCreditors(ctx context.Context, stationID string) ([]domain.Creditor, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+creditorColumns+`
		FROM creditors c
		WHERE $1 = '' OR c.station_id = $1
		ORDER BY c.id ASC
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creditors := make([]domain.Creditor, 0, 32)
	for rows.Next() {
		c, err := scanCreditor(rows)
		if err != nil {
			return nil, err
		}
		creditors = append(creditors, *c)
	}
	return creditors, rows.Err()
}

// AppendSettlement records a payment against a creditor. A payment may not
// take the balance below zero.
func (s *Store) AppendSettlement(ctx context.Context, entry domain.CreditEntry) (*domain.Creditor, error) {
	if !entry.Delta.IsNegative() {
		return nil, domain.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("cre")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var updated *domain.Creditor
	err := s.inTx(ctx, func(pgTx pgx.Tx) error {
		current, err := scanCreditor(pgTx.QueryRow(ctx, `
			SELECT `+creditorColumns+`
			FROM creditors c
			WHERE c.id = $1
			FOR UPDATE OF c
		`, entry.CreditorID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		after := current.CurrentOutstanding.Add(entry.Delta)
		if after.IsNegative() {
			return domain.ErrSettlementOverpays
		}

		_, err = pgTx.Exec(ctx, `
			INSERT INTO credit_entries (id, creditor_id, delta, kind, cause_id, reference, created_at)
			VALUES ($1,$2,$3::numeric,$4,$5,$6,$7)
		`, entry.ID, entry.CreditorID, numeric(entry.Delta), domain.CreditEntrySettlement, entry.CauseID, entry.Reference, entry.CreatedAt)
		if err != nil {
			return err
		}
		current.CurrentOutstanding = after
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) ListCreditEntries(ctx context.Context, creditorIDs []string, before time.Time) ([]domain.CreditEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, creditor_id, delta::text, kind, cause_id, reference, created_at
		FROM credit_entries
		WHERE creditor_id = ANY($1) AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at ASC, id ASC
	`, creditorIDs, nullTime(beforePtr(before)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.CreditEntry, 0, 64)
	var d decoder
	for rows.Next() {
		var entry domain.CreditEntry
		var delta string
		if err := rows.Scan(&entry.ID, &entry.CreditorID, &delta, &entry.Kind, &entry.CauseID, &entry.Reference, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Delta = d.dec(delta)
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, d.err
}

func beforePtr(before time.Time) *time.Time {
	if before.IsZero() {
		return nil
	}
	return &before
}
