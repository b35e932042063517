// Package settlement holds the pure settlement and cash-reconciliation rules:
// sale calculation, payment allocation, the shift ledger, handover
// reconciliation and the daily settlement aggregate. Nothing here performs I/O.
package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fuelsync/backend/internal/domain"
)

// Policy is the single source of tolerances and thresholds used by the
// allocator and the aggregator.
type Policy struct {
	MonetaryTolerance       decimal.Decimal
	ReviewThresholdPct      decimal.Decimal
	InvestigateThresholdPct decimal.Decimal
	CurrentMaxDays          int
	OverdueMaxDays          int
}

func DefaultPolicy() Policy {
	return Policy{
		MonetaryTolerance:       decimal.New(1, -2),
		ReviewThresholdPct:      decimal.NewFromInt(2),
		InvestigateThresholdPct: decimal.NewFromInt(5),
		CurrentMaxDays:          30,
		OverdueMaxDays:          60,
	}
}

func (p Policy) Validate() error {
	if p.MonetaryTolerance.IsNegative() {
		return fmt.Errorf("monetary tolerance must not be negative")
	}
	if p.ReviewThresholdPct.IsNegative() || p.InvestigateThresholdPct.LessThan(p.ReviewThresholdPct) {
		return fmt.Errorf("variance thresholds must satisfy 0 <= review <= investigate")
	}
	if p.CurrentMaxDays < 0 || p.OverdueMaxDays < p.CurrentMaxDays {
		return fmt.Errorf("aging buckets must satisfy 0 <= current <= overdue")
	}
	return nil
}

// Round2 rounds a money amount to two places, halves away from zero.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// CheckMoney rejects a money amount carrying more than two decimal places.
// Trailing zeros are fine: 10.500 is accepted, 10.005 is not.
func CheckMoney(field string, v decimal.Decimal) error {
	return checkPlaces(field, v, 2)
}

// CheckReading rejects a meter value carrying more than three decimal places.
func CheckReading(field string, v decimal.Decimal) error {
	return checkPlaces(field, v, 3)
}

func checkPlaces(field string, v decimal.Decimal, places int32) error {
	if !v.Equal(v.Truncate(places)) {
		return fmt.Errorf("%w: %s must have at most %d decimal places", domain.ErrInvalidInput, field, places)
	}
	return nil
}
