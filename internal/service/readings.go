package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/metrics"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
)

func (s *Service) CreateNozzle(ctx context.Context, req domain.NozzleCreateRequest) (domain.Nozzle, error) {
	if _, err := requireRole(ctx, domain.RoleManager, domain.RoleOwner); err != nil {
		return domain.Nozzle{}, err
	}

	nozzle := domain.Nozzle{
		ID:             strings.ToUpper(strings.TrimSpace(req.NozzleID)),
		StationID:      s.stationOrDefault(req.StationID),
		FuelType:       strings.ToLower(strings.TrimSpace(req.FuelType)),
		InitialReading: req.InitialReading,
		Active:         true,
		CreatedAt:      s.now(),
	}
	if nozzle.ID == "" || nozzle.FuelType == "" {
		return domain.Nozzle{}, fmt.Errorf("%w: nozzle id and fuel type are required", domain.ErrInvalidInput)
	}
	if nozzle.InitialReading.IsNegative() {
		return domain.Nozzle{}, fmt.Errorf("%w: initial reading must not be negative", domain.ErrInvalidInput)
	}
	if err := settlement.CheckReading("initial reading", nozzle.InitialReading); err != nil {
		return domain.Nozzle{}, err
	}

	created, err := s.repo.CreateNozzle(ctx, nozzle)
	if err != nil {
		return domain.Nozzle{}, err
	}
	s.logAudit(ctx, created.StationID, "nozzle_create", "nozzle", created.ID, fmt.Sprintf("fuel=%s,initial=%s", created.FuelType, created.InitialReading))
	return *created, nil
}

func (s *Service) SetFuelPrice(ctx context.Context, req domain.FuelPriceRequest) (domain.FuelPrice, error) {
	actor, err := requireRole(ctx, domain.RoleManager, domain.RoleOwner)
	if err != nil {
		return domain.FuelPrice{}, err
	}

	price := domain.FuelPrice{
		StationID: s.stationOrDefault(req.StationID),
		FuelType:  strings.ToLower(strings.TrimSpace(req.FuelType)),
		Price:     req.Price,
		SetBy:     actor.Username,
	}
	if price.FuelType == "" || !price.Price.IsPositive() {
		return domain.FuelPrice{}, fmt.Errorf("%w: fuel type and a positive price are required", domain.ErrInvalidInput)
	}
	if err := settlement.CheckMoney("price", price.Price); err != nil {
		return domain.FuelPrice{}, err
	}
	if strings.TrimSpace(req.EffectiveFrom) == "" {
		price.EffectiveFrom = s.now()
	} else {
		effective, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EffectiveFrom))
		if err != nil {
			day, dayErr := parseDate(req.EffectiveFrom, "effective_from")
			if dayErr != nil {
				return domain.FuelPrice{}, fmt.Errorf("%w: effective_from must be RFC3339 or YYYY-MM-DD", domain.ErrInvalidInput)
			}
			effective = day
		}
		price.EffectiveFrom = effective.UTC()
	}

	if err := s.repo.SetFuelPrice(ctx, price); err != nil {
		return domain.FuelPrice{}, err
	}
	s.logAudit(ctx, price.StationID, "fuel_price_set", "fuel_price", price.FuelType, fmt.Sprintf("price=%s,effective_from=%s", price.Price.StringFixed(2), price.EffectiveFrom.Format(time.RFC3339)))
	return price, nil
}

// RecordReading turns a meter value into a priced reading. The comparison value
// is the nozzle's last reading, falling back to its initial reading.
func (s *Service) RecordReading(ctx context.Context, req domain.ReadingRequest) (domain.NozzleReading, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.NozzleReading{}, err
	}

	reading, err := s.recordReading(ctx, actor, req)
	if err != nil {
		s.metrics.IncReading(metrics.ResultError)
		return domain.NozzleReading{}, err
	}
	s.metrics.IncReading(metrics.ResultSuccess)
	s.logAudit(ctx, reading.StationID, "reading_create", "reading", reading.ID, fmt.Sprintf("nozzle=%s,value=%s,litres=%s,sale=%s", reading.NozzleID, reading.EnteredValue, reading.LitresSold, reading.SaleValue.StringFixed(2)))
	s.invalidateReports(ctx, reading.StationID)
	return reading, nil
}

func (s *Service) recordReading(ctx context.Context, actor domain.Actor, req domain.ReadingRequest) (domain.NozzleReading, error) {
	nozzleID := strings.ToUpper(strings.TrimSpace(req.NozzleID))
	if nozzleID == "" {
		return domain.NozzleReading{}, fmt.Errorf("%w: nozzle id is required", domain.ErrInvalidInput)
	}
	if req.ReadingValue.IsNegative() {
		return domain.NozzleReading{}, fmt.Errorf("%w: reading value must not be negative", domain.ErrInvalidInput)
	}
	if err := settlement.CheckReading("reading value", req.ReadingValue); err != nil {
		return domain.NozzleReading{}, err
	}

	nozzle, err := s.repo.GetNozzle(ctx, nozzleID)
	if err != nil {
		return domain.NozzleReading{}, err
	}
	if req.StationID != "" && req.StationID != nozzle.StationID {
		return domain.NozzleReading{}, fmt.Errorf("nozzle %s at station %s: %w", nozzleID, req.StationID, store.ErrNotFound)
	}

	readingDate, readingAt, err := s.readingTime(req.ReadingDate, req.ReadingTime)
	if err != nil {
		return domain.NozzleReading{}, err
	}

	comparison := nozzle.InitialReading
	last, err := s.repo.GetLastReading(ctx, nozzle.ID)
	switch {
	case err == nil:
		comparison = last.EnteredValue
	case !errors.Is(err, store.ErrNotFound):
		return domain.NozzleReading{}, err
	}

	var price *decimal.Decimal
	effective, err := s.repo.GetEffectivePrice(ctx, nozzle.StationID, nozzle.FuelType, readingAt)
	switch {
	case err == nil:
		price = &effective.Price
	case !errors.Is(err, store.ErrNotFound):
		return domain.NozzleReading{}, err
	}

	sale, err := settlement.CalculateSale(settlement.SaleInput{
		NozzleID:   nozzle.ID,
		StationID:  nozzle.StationID,
		FuelType:   nozzle.FuelType,
		Date:       readingDate,
		Entered:    req.ReadingValue,
		Comparison: comparison,
		Price:      price,
	})
	if err != nil {
		return domain.NozzleReading{}, err
	}

	created, err := s.repo.CreateReading(ctx, domain.NozzleReading{
		NozzleID:        nozzle.ID,
		StationID:       nozzle.StationID,
		FuelType:        nozzle.FuelType,
		EnteredValue:    req.ReadingValue,
		ComparisonValue: comparison,
		LitresSold:      sale.Litres,
		PriceAtEntry:    sale.Price,
		SaleValue:       sale.Value,
		ReadingDate:     readingDate,
		ReadingAt:       readingAt,
		EnteredBy:       actor.Username,
		CreatedAt:       s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.logger.Info("reading lost a race for nozzle", zap.String("nozzle_id", nozzle.ID), zap.String("comparison", comparison.String()))
		}
		return domain.NozzleReading{}, err
	}
	return *created, nil
}

// readingTime resolves the reading's business date and instant. Without an
// explicit time the reading is placed at the end of its day, capped at now, so
// the latest price effective that day applies.
func (s *Service) readingTime(date string, clock string) (string, time.Time, error) {
	now := s.now()
	if strings.TrimSpace(date) == "" {
		date = now.Format(domain.DateLayout)
	}
	day, err := parseDate(date, "reading_date")
	if err != nil {
		return "", time.Time{}, err
	}

	clock = strings.TrimSpace(clock)
	if clock == "" {
		at := day.Add(24*time.Hour - time.Second)
		if at.After(now) {
			at = now
		}
		if at.Before(day) {
			at = day
		}
		return day.Format(domain.DateLayout), at, nil
	}

	for _, layout := range []string{"15:04:05", "15:04"} {
		parsed, err := time.Parse(layout, clock)
		if err == nil {
			at := day.Add(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute + time.Duration(parsed.Second())*time.Second)
			return day.Format(domain.DateLayout), at, nil
		}
	}
	return "", time.Time{}, fmt.Errorf("%w: reading_time must be HH:MM or HH:MM:SS", domain.ErrInvalidInput)
}

func (s *Service) ListReadings(ctx context.Context, stationID string, date string) ([]domain.NozzleReading, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	stationID = s.stationOrDefault(stationID)
	if strings.TrimSpace(date) == "" {
		date = s.now().Format(domain.DateLayout)
	}
	day, err := parseDate(date, "date")
	if err != nil {
		return nil, err
	}
	key := day.Format(domain.DateLayout)
	return s.repo.ListReadings(ctx, stationID, key, key)
}
