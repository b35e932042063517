package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/store"
	"fuelsync/backend/internal/xid"
)

const handoverColumns = `id, station_id, handover_type, from_user, to_user, source_shift_id, source_handover_id,
	expected_amount::text, actual_amount::text, difference::text, status, dispute_notes, confirm_notes,
	resolution_notes, confirmed_by, resolved_by, created_at, confirmed_at, resolved_at`

func scanHandover(row pgx.Row) (*domain.CashHandover, error) {
	var h domain.CashHandover
	var sourceShift, sourceHandover *string
	var expected, actual, difference string
	if err := row.Scan(&h.ID, &h.StationID, &h.HandoverType, &h.FromUser, &h.ToUser, &sourceShift, &sourceHandover,
		&expected, &actual, &difference, &h.Status, &h.DisputeNotes, &h.ConfirmNotes,
		&h.ResolutionNotes, &h.ConfirmedBy, &h.ResolvedBy, &h.CreatedAt, &h.ConfirmedAt, &h.ResolvedAt); err != nil {
		return nil, err
	}
	var d decoder
	h.SourceShiftID = deref(sourceShift)
	h.SourceHandoverID = deref(sourceHandover)
	h.ExpectedAmount = d.dec(expected)
	h.ActualAmount = d.dec(actual)
	h.Difference = d.dec(difference)
	h.CreatedAt = h.CreatedAt.UTC()
	h.ConfirmedAt = utcPtr(h.ConfirmedAt)
	h.ResolvedAt = utcPtr(h.ResolvedAt)
	if d.err != nil {
		return nil, d.err
	}
	return &h, nil
}

func (s *Store) CreateHandover(ctx context.Context, handover domain.CashHandover) (*domain.CashHandover, error) {
	if handover.ID == "" {
		handover.ID = xid.New("ho")
	}
	if handover.CreatedAt.IsZero() {
		handover.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO cash_handovers (
			id, station_id, handover_type, from_user, to_user, source_shift_id, source_handover_id,
			expected_amount, actual_amount, difference, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,$10::numeric,$11,$12)
	`, handover.ID, handover.StationID, handover.HandoverType, handover.FromUser, handover.ToUser,
		nullIfEmpty(handover.SourceShiftID), nullIfEmpty(handover.SourceHandoverID),
		numeric(handover.ExpectedAmount), numeric(handover.ActualAmount), numeric(handover.Difference),
		handover.Status, handover.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && strings.HasPrefix(constraintName(err), "uq_cash_handovers_source") {
			return nil, domain.ErrSourceAlreadyHanded
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := handover
	return &created, nil
}

func (s *Store) GetHandover(ctx context.Context, id string) (*domain.CashHandover, error) {
	h, err := scanHandover(s.db.QueryRow(ctx, `
		SELECT `+handoverColumns+`
		FROM cash_handovers
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return h, nil
}

// TransitionHandover writes next only while the stored status is still
// fromStatus. A lost race reports the state the winner left behind.
func (s *Store) TransitionHandover(ctx context.Context, next domain.CashHandover, fromStatus string) (*domain.CashHandover, error) {
	saved, err := scanHandover(s.db.QueryRow(ctx, `
		UPDATE cash_handovers
		SET actual_amount = $3::numeric,
			difference = $4::numeric,
			status = $5,
			dispute_notes = $6,
			confirm_notes = $7,
			resolution_notes = $8,
			confirmed_by = $9,
			resolved_by = $10,
			confirmed_at = $11,
			resolved_at = $12
		WHERE id = $1 AND status = $2
		RETURNING `+handoverColumns,
		next.ID, fromStatus, numeric(next.ActualAmount), numeric(next.Difference), next.Status,
		next.DisputeNotes, next.ConfirmNotes, next.ResolutionNotes, next.ConfirmedBy, next.ResolvedBy,
		nullTime(next.ConfirmedAt), nullTime(next.ResolvedAt)))
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := s.GetHandover(ctx, next.ID)
	if err != nil {
		return nil, err
	}
	return nil, domain.HandoverState(current.ID, current.Status)
}

func (s *Store) ListHandovers(ctx context.Context, filter store.HandoverFilter) ([]domain.CashHandover, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.StationID != "" {
		add("station_id = $%d", filter.StationID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}

	query := `SELECT ` + handoverColumns + ` FROM cash_handovers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	handovers := make([]domain.CashHandover, 0, 32)
	for rows.Next() {
		h, err := scanHandover(rows)
		if err != nil {
			return nil, err
		}
		handovers = append(handovers, *h)
	}
	return handovers, rows.Err()
}
