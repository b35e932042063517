package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelsync/backend/internal/domain"
)

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}

func decPtr(t *testing.T, v string) *decimal.Decimal {
	d := dec(t, v)
	return &d
}

func TestCalculateSaleMultipliesLitresByPrice(t *testing.T) {
	sale, err := CalculateSale(SaleInput{
		NozzleID:   "N1",
		Entered:    dec(t, "150"),
		Comparison: dec(t, "100"),
		Price:      decPtr(t, "95.50"),
	})
	require.NoError(t, err)

	assert.True(t, sale.Litres.Equal(dec(t, "50")), "litres = %s", sale.Litres)
	assert.Equal(t, "4775.00", sale.Value.StringFixed(2))
}

func TestCalculateSaleRoundsHalfUp(t *testing.T) {
	sale, err := CalculateSale(SaleInput{
		Entered:    dec(t, "10.5"),
		Comparison: dec(t, "10"),
		Price:      decPtr(t, "0.25"),
	})
	require.NoError(t, err)
	// 0.5 * 0.25 = 0.125
	assert.Equal(t, "0.13", sale.Value.StringFixed(2))
}

func TestCalculateSaleRejectsNonIncreasingReading(t *testing.T) {
	for _, entered := range []string{"100", "99.99"} {
		_, err := CalculateSale(SaleInput{
			NozzleID:   "N1",
			Entered:    dec(t, entered),
			Comparison: dec(t, "100"),
			Price:      decPtr(t, "95.50"),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidReading)

		var readingErr *domain.InvalidReadingError
		require.ErrorAs(t, err, &readingErr)
		assert.Equal(t, "N1", readingErr.NozzleID)
	}
}

func TestCalculateSaleRequiresPrice(t *testing.T) {
	_, err := CalculateSale(SaleInput{
		StationID:  "S1",
		FuelType:   "diesel",
		Date:       "2026-10-01",
		Entered:    dec(t, "150"),
		Comparison: dec(t, "100"),
	})
	require.ErrorIs(t, err, domain.ErrMissingPrice)
	assert.Contains(t, err.Error(), "diesel")
}

func TestCalculateSaleChecksReadingBeforePrice(t *testing.T) {
	_, err := CalculateSale(SaleInput{
		Entered:    dec(t, "90"),
		Comparison: dec(t, "100"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidReading)
}

func TestCalculateSaleRejectsZeroPrice(t *testing.T) {
	_, err := CalculateSale(SaleInput{
		Entered:    dec(t, "110"),
		Comparison: dec(t, "100"),
		Price:      decPtr(t, "0"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCalculateSaleRejectsExcessPrecision(t *testing.T) {
	_, err := CalculateSale(SaleInput{
		Entered:    dec(t, "110"),
		Comparison: dec(t, "100"),
		Price:      decPtr(t, "95.555"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = CalculateSale(SaleInput{
		Entered:    dec(t, "110.0005"),
		Comparison: dec(t, "100"),
		Price:      decPtr(t, "95.50"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	sale, err := CalculateSale(SaleInput{
		Entered:    dec(t, "110.125"),
		Comparison: dec(t, "100"),
		Price:      decPtr(t, "95.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "966.94", sale.Value.StringFixed(2))
}
