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

func (s *Store) CreateNozzle(ctx context.Context, nozzle domain.Nozzle) (*domain.Nozzle, error) {
	if strings.TrimSpace(nozzle.ID) == "" || strings.TrimSpace(nozzle.StationID) == "" || strings.TrimSpace(nozzle.FuelType) == "" {
		return nil, domain.ErrInvalidInput
	}
	if nozzle.CreatedAt.IsZero() {
		nozzle.CreatedAt = time.Now().UTC()
	}
	nozzle.Active = true

	_, err := s.db.Exec(ctx, `
		INSERT INTO nozzles (id, station_id, fuel_type, initial_reading, active, created_at)
		VALUES ($1,$2,$3,$4::numeric,$5,$6)
	`, nozzle.ID, nozzle.StationID, nozzle.FuelType, numeric(nozzle.InitialReading), nozzle.Active, nozzle.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := nozzle
	return &created, nil
}

func (s *Store) GetNozzle(ctx context.Context, id string) (*domain.Nozzle, error) {
	var nozzle domain.Nozzle
	var initial string
	err := s.db.QueryRow(ctx, `
		SELECT id, station_id, fuel_type, initial_reading::text, active, created_at
		FROM nozzles
		WHERE id = $1
	`, id).Scan(&nozzle.ID, &nozzle.StationID, &nozzle.FuelType, &initial, &nozzle.Active, &nozzle.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	var d decoder
	nozzle.InitialReading = d.dec(initial)
	nozzle.CreatedAt = nozzle.CreatedAt.UTC()
	return &nozzle, d.err
}

func (s *Store) SetFuelPrice(ctx context.Context, price domain.FuelPrice) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO fuel_prices (station_id, fuel_type, price, effective_from, set_by)
		VALUES ($1,$2,$3::numeric,$4,$5)
		ON CONFLICT (station_id, fuel_type, effective_from)
		DO UPDATE SET price = EXCLUDED.price, set_by = EXCLUDED.set_by
	`, price.StationID, price.FuelType, numeric(price.Price), price.EffectiveFrom, price.SetBy)
	return err
}

func (s *Store) GetEffectivePrice(ctx context.Context, stationID string, fuelType string, at time.Time) (*domain.FuelPrice, error) {
	var price domain.FuelPrice
	var raw string
	err := s.db.QueryRow(ctx, `
		SELECT station_id, fuel_type, price::text, effective_from, set_by
		FROM fuel_prices
		WHERE station_id = $1 AND fuel_type = $2 AND effective_from <= $3
		ORDER BY effective_from DESC
		LIMIT 1
	`, stationID, fuelType, at).Scan(&price.StationID, &price.FuelType, &raw, &price.EffectiveFrom, &price.SetBy)
	if err != nil {
		return nil, notFound(err)
	}
	var d decoder
	price.Price = d.dec(raw)
	price.EffectiveFrom = price.EffectiveFrom.UTC()
	return &price, d.err
}

const readingColumns = `id, nozzle_id, station_id, fuel_type, entered_value::text, comparison_value::text,
	litres_sold::text, price_at_entry::text, sale_value::text, reading_date::text, reading_at,
	entered_by, transaction_id, created_at`

func scanReading(row pgx.Row) (*domain.NozzleReading, error) {
	var r domain.NozzleReading
	var entered, comparison, litres, price, value string
	var txID *string
	if err := row.Scan(&r.ID, &r.NozzleID, &r.StationID, &r.FuelType, &entered, &comparison,
		&litres, &price, &value, &r.ReadingDate, &r.ReadingAt, &r.EnteredBy, &txID, &r.CreatedAt); err != nil {
		return nil, err
	}
	var d decoder
	r.EnteredValue = d.dec(entered)
	r.ComparisonValue = d.dec(comparison)
	r.LitresSold = d.dec(litres)
	r.PriceAtEntry = d.dec(price)
	r.SaleValue = d.dec(value)
	r.TransactionID = deref(txID)
	r.ReadingAt = r.ReadingAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	if d.err != nil {
		return nil, d.err
	}
	return &r, nil
}

// Meter values only grow, so the highest entered value is the latest reading.
func (s *Store) GetLastReading(ctx context.Context, nozzleID string) (*domain.NozzleReading, error) {
	reading, err := scanReading(s.db.QueryRow(ctx, `
		SELECT `+readingColumns+`
		FROM nozzle_readings
		WHERE nozzle_id = $1
		ORDER BY entered_value DESC
		LIMIT 1
	`, nozzleID))
	if err != nil {
		return nil, notFound(err)
	}
	return reading, nil
}

func (s *Store) CreateReading(ctx context.Context, reading domain.NozzleReading) (*domain.NozzleReading, error) {
	if reading.ID == "" {
		reading.ID = xid.New("rdg")
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now().UTC()
	}
	reading.TransactionID = ""

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM nozzles WHERE id = $1 FOR UPDATE`, reading.NozzleID).Scan(&locked); err != nil {
			return notFound(err)
		}

		var last string
		err := tx.QueryRow(ctx, `
			SELECT entered_value::text
			FROM nozzle_readings
			WHERE nozzle_id = $1
			ORDER BY entered_value DESC
			LIMIT 1
		`, reading.NozzleID).Scan(&last)
		switch {
		case err == nil:
			var d decoder
			current := d.dec(last)
			if d.err != nil {
				return d.err
			}
			// Another reading landed after the caller resolved its comparison value.
			if !current.Equal(reading.ComparisonValue) {
				return store.ErrConflict
			}
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO nozzle_readings (
				id, nozzle_id, station_id, fuel_type, entered_value, comparison_value,
				litres_sold, price_at_entry, sale_value, reading_date, reading_at, entered_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10::date,$11,$12,$13)
		`, reading.ID, reading.NozzleID, reading.StationID, reading.FuelType,
			numeric(reading.EnteredValue), numeric(reading.ComparisonValue), numeric(reading.LitresSold),
			numeric(reading.PriceAtEntry), numeric(reading.SaleValue), reading.ReadingDate,
			reading.ReadingAt, reading.EnteredBy, reading.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	created := reading
	return &created, nil
}

func (s *Store) GetReadings(ctx context.Context, ids []string) ([]domain.NozzleReading, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+readingColumns+`
		FROM nozzle_readings
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]domain.NozzleReading, len(ids))
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		byID[reading.ID] = *reading
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.NozzleReading, 0, len(ids))
	for _, id := range ids {
		reading, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("reading %s: %w", id, store.ErrNotFound)
		}
		result = append(result, reading)
	}
	return result, nil
}

func (s *Store) ListReadings(ctx context.Context, stationID string, fromDate string, toDate string) ([]domain.NozzleReading, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+readingColumns+`
		FROM nozzle_readings
		WHERE station_id = $1 AND reading_date BETWEEN $2::date AND $3::date
		ORDER BY reading_at ASC, id ASC
	`, stationID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]domain.NozzleReading, 0, 64)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *reading)
	}
	return readings, rows.Err()
}
