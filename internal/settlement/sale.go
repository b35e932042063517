package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fuelsync/backend/internal/domain"
)

type SaleInput struct {
	NozzleID   string
	StationID  string
	FuelType   string
	Date       string
	Entered    decimal.Decimal
	Comparison decimal.Decimal
	// Price is nil when no price was effective for the reading.
	Price *decimal.Decimal
}

type Sale struct {
	Litres decimal.Decimal
	Price  decimal.Decimal
	Value  decimal.Decimal
}

// CalculateSale turns a meter reading into litres and a sale value. A reading
// at or below its comparison value is rejected, never clamped.
func CalculateSale(in SaleInput) (Sale, error) {
	if err := CheckReading("reading value", in.Entered); err != nil {
		return Sale{}, err
	}
	litres := in.Entered.Sub(in.Comparison)
	if !litres.IsPositive() {
		return Sale{}, &domain.InvalidReadingError{
			NozzleID:   in.NozzleID,
			Entered:    in.Entered,
			Comparison: in.Comparison,
		}
	}
	if in.Price == nil {
		return Sale{}, &domain.MissingPriceError{StationID: in.StationID, FuelType: in.FuelType, Date: in.Date}
	}
	if !in.Price.IsPositive() {
		return Sale{}, fmt.Errorf("%w: price must be positive", domain.ErrInvalidInput)
	}
	if err := CheckMoney("price", *in.Price); err != nil {
		return Sale{}, err
	}

	return Sale{
		Litres: litres,
		Price:  *in.Price,
		Value:  Round2(litres.Mul(*in.Price)),
	}, nil
}
