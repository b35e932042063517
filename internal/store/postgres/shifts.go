package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
	"fuelsync/backend/internal/xid"
)

const shiftColumns = `id, employee_id, station_id, shift_type, status, start_time, end_time, readings_count,
	total_litres_sold::text, total_sales_amount::text, total_online::text, total_credit::text,
	expected_cash::text, actual_cash_collected::text, actual_online_collected::text,
	cash_difference::text, online_difference::text, notes, close_notes`

func scanShift(row pgx.Row) (*domain.Shift, error) {
	var shift domain.Shift
	var litres, sales, online, credit, expected, actual, cashDiff string
	var actualOnline, onlineDiff *string
	if err := row.Scan(&shift.ID, &shift.EmployeeID, &shift.StationID, &shift.ShiftType, &shift.Status,
		&shift.StartTime, &shift.EndTime, &shift.ReadingsCount,
		&litres, &sales, &online, &credit, &expected, &actual, &actualOnline, &cashDiff, &onlineDiff,
		&shift.Notes, &shift.CloseNotes); err != nil {
		return nil, err
	}
	var d decoder
	shift.TotalLitresSold = d.dec(litres)
	shift.TotalSalesAmount = d.dec(sales)
	shift.TotalOnline = d.dec(online)
	shift.TotalCredit = d.dec(credit)
	shift.ExpectedCash = d.dec(expected)
	shift.ActualCashCollected = d.dec(actual)
	shift.ActualOnlineCollected = d.decPtr(actualOnline)
	shift.CashDifference = d.dec(cashDiff)
	shift.OnlineDifference = d.decPtr(onlineDiff)
	shift.StartTime = shift.StartTime.UTC()
	shift.EndTime = utcPtr(shift.EndTime)
	if d.err != nil {
		return nil, d.err
	}
	return &shift, nil
}

func updateShiftTotals(ctx context.Context, pgTx pgx.Tx, shift domain.Shift) error {
	_, err := pgTx.Exec(ctx, `
		UPDATE shifts
		SET readings_count = $2,
			total_litres_sold = $3::numeric,
			total_sales_amount = $4::numeric,
			total_online = $5::numeric,
			total_credit = $6::numeric,
			expected_cash = $7::numeric
		WHERE id = $1
	`, shift.ID, shift.ReadingsCount, numeric(shift.TotalLitresSold), numeric(shift.TotalSalesAmount),
		numeric(shift.TotalOnline), numeric(shift.TotalCredit), numeric(shift.ExpectedCash))
	return err
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.EmployeeID) == "" || strings.TrimSpace(shift.StationID) == "" {
		return nil, domain.ErrInvalidInput
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartTime.IsZero() {
		shift.StartTime = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusActive
	shift.EndTime = nil

	_, err := s.db.Exec(ctx, `
		INSERT INTO shifts (id, employee_id, station_id, shift_type, status, start_time, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, shift.ID, shift.EmployeeID, shift.StationID, shift.ShiftType, shift.Status, shift.StartTime, shift.Notes)
	if err != nil {
		if isUniqueViolation(err) && constraintName(err) == "uq_shifts_active_employee" {
			active, lookupErr := s.GetActiveShift(ctx, shift.EmployeeID)
			if lookupErr != nil {
				return nil, &domain.ShiftAlreadyActiveError{EmployeeID: shift.EmployeeID}
			}
			return nil, &domain.ShiftAlreadyActiveError{EmployeeID: shift.EmployeeID, ShiftID: active.ID, StationID: active.StationID}
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) GetActiveShift(ctx context.Context, employeeID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRow(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE employee_id = $1 AND status = 'active'
	`, employeeID))
	if err != nil {
		return nil, notFound(err)
	}
	return shift, nil
}

func (s *Store) CloseActiveShift(ctx context.Context, employeeID string, end settlement.ShiftEnd) (*domain.Shift, error) {
	if end.At.IsZero() {
		end.At = time.Now().UTC()
	}

	var closed domain.Shift
	err := s.inTx(ctx, func(pgTx pgx.Tx) error {
		current, err := scanShift(pgTx.QueryRow(ctx, `
			SELECT `+shiftColumns+`
			FROM shifts
			WHERE employee_id = $1 AND status = 'active'
			FOR UPDATE
		`, employeeID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNoActiveShift
			}
			return err
		}

		active, err := settlement.ResumeShift(*current)
		if err != nil {
			return err
		}
		done, err := active.End(end)
		if err != nil {
			return err
		}
		closed = done.Record()

		_, err = pgTx.Exec(ctx, `
			UPDATE shifts
			SET status = $2,
				end_time = $3,
				actual_cash_collected = $4::numeric,
				actual_online_collected = $5::numeric,
				cash_difference = $6::numeric,
				online_difference = $7::numeric,
				close_notes = $8
			WHERE id = $1
		`, closed.ID, closed.Status, nullTime(closed.EndTime), numeric(closed.ActualCashCollected),
			nullNumeric(closed.ActualOnlineCollected), numeric(closed.CashDifference),
			nullNumeric(closed.OnlineDifference), closed.CloseNotes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &closed, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRow(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return shift, nil
}

func (s *Store) ListShifts(ctx context.Context, filter store.ShiftFilter) ([]domain.Shift, error) {
	where := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.StationID != "" {
		add("station_id = $%d", filter.StationID)
	}
	if filter.EmployeeID != "" {
		add("employee_id = $%d", filter.EmployeeID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.ClosedFrom.IsZero() {
		add("end_time >= $%d", filter.ClosedFrom)
	}
	if !filter.ClosedTo.IsZero() {
		add("end_time < $%d", filter.ClosedTo)
	}

	query := `SELECT ` + shiftColumns + ` FROM shifts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_time DESC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, 32)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *shift)
	}
	return shifts, rows.Err()
}
