package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelsync/backend/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC)
}

func closedShift(t *testing.T, station string, endDay int, expected, actual string) domain.Shift {
	end := day(endDay).Add(18 * time.Hour)
	return domain.Shift{
		ID:                  "shift-" + station + "-" + expected,
		StationID:           station,
		Status:              domain.ShiftStatusClosed,
		EndTime:             &end,
		ExpectedCash:        dec(t, expected),
		ActualCashCollected: dec(t, actual),
	}
}

func TestClassifyVarianceBoundaries(t *testing.T) {
	policy := DefaultPolicy()
	cases := []struct {
		actual string
		pct    string
		status string
	}{
		{"1000", "0.00", domain.VarianceOK},
		{"980", "-2.00", domain.VarianceOK},
		{"1020.00", "2.00", domain.VarianceOK},
		{"1020.01", "2.00", domain.VarianceReview},
		{"979.99", "-2.00", domain.VarianceReview},
		{"979.00", "-2.10", domain.VarianceReview},
		{"1050", "5.00", domain.VarianceReview},
		{"949", "-5.10", domain.VarianceInvestigate},
	}
	for _, tc := range cases {
		pct, status := ClassifyVariance(policy, dec(t, "1000"), dec(t, tc.actual))
		assert.Equal(t, tc.pct, pct.StringFixed(2), "actual %s", tc.actual)
		assert.Equal(t, tc.status, status, "actual %s", tc.actual)
	}
}

func TestClassifyVarianceComparesUnroundedPercent(t *testing.T) {
	pct, status := ClassifyVariance(DefaultPolicy(), dec(t, "10000"), dec(t, "10200.40"))
	assert.Equal(t, "2.00", pct.StringFixed(2))
	assert.Equal(t, domain.VarianceReview, status)

	pct, status = ClassifyVariance(DefaultPolicy(), dec(t, "10000"), dec(t, "10500.40"))
	assert.Equal(t, "5.00", pct.StringFixed(2))
	assert.Equal(t, domain.VarianceInvestigate, status)
}

func TestClassifyVarianceWithNothingExpected(t *testing.T) {
	pct, status := ClassifyVariance(DefaultPolicy(), decimal.Zero, decimal.Zero)
	assert.True(t, pct.IsZero())
	assert.Equal(t, domain.VarianceOK, status)

	pct, status = ClassifyVariance(DefaultPolicy(), decimal.Zero, dec(t, "5"))
	assert.True(t, pct.IsZero())
	assert.Equal(t, domain.VarianceInvestigate, status)
}

func TestClassifyVarianceUsesConfiguredThresholds(t *testing.T) {
	policy := DefaultPolicy()
	policy.ReviewThresholdPct = dec(t, "0.5")
	_, status := ClassifyVariance(policy, dec(t, "1000"), dec(t, "990"))
	assert.Equal(t, domain.VarianceReview, status)
}

func TestAggregateDailyVariance(t *testing.T) {
	in := AggregateInput{
		StationID: "S1",
		From:      day(1),
		To:        day(3),
		Shifts: []domain.Shift{
			closedShift(t, "S1", 1, "5000", "4950"),
			closedShift(t, "S1", 1, "1000", "1000"),
			closedShift(t, "S1", 2, "2000", "1850"),
			closedShift(t, "S2", 2, "9999", "0"),
			closedShift(t, "S1", 9, "100", "0"),
			{ID: "open", StationID: "S1", Status: domain.ShiftStatusActive, ExpectedCash: dec(t, "700")},
		},
	}

	summary := Aggregate(in, DefaultPolicy())
	require.Len(t, summary.Days, 3)
	assert.Equal(t, "2026-10-01", summary.From)
	assert.Equal(t, "2026-10-03", summary.To)

	d1 := summary.Days[0]
	assert.Equal(t, 2, d1.ShiftsClosed)
	assert.Equal(t, "6000.00", d1.ExpectedCash.StringFixed(2))
	assert.Equal(t, "-50.00", d1.Variance.StringFixed(2))
	assert.Equal(t, "-0.83", d1.VariancePercent.StringFixed(2))
	assert.Equal(t, domain.VarianceOK, d1.VarianceStatus)

	d2 := summary.Days[1]
	assert.Equal(t, "-7.50", d2.VariancePercent.StringFixed(2))
	assert.Equal(t, domain.VarianceInvestigate, d2.VarianceStatus)

	d3 := summary.Days[2]
	assert.Equal(t, 0, d3.ShiftsClosed)
	assert.Equal(t, domain.VarianceOK, d3.VarianceStatus)

	assert.Equal(t, "-200.00", summary.Income.CashVariance.StringFixed(2))
}

func TestAggregateHandoverCounts(t *testing.T) {
	at := day(2).Add(10 * time.Hour)
	summary := Aggregate(AggregateInput{
		StationID: "S1",
		From:      day(2),
		To:        day(2),
		Handovers: []domain.CashHandover{
			{StationID: "S1", Status: domain.HandoverStatusPending, CreatedAt: at, Difference: decimal.Zero},
			{StationID: "S1", Status: domain.HandoverStatusConfirmed, CreatedAt: at, Difference: decimal.Zero},
			{StationID: "S1", Status: domain.HandoverStatusDisputed, CreatedAt: at, Difference: dec(t, "-200")},
			{StationID: "S1", Status: domain.HandoverStatusResolved, CreatedAt: at, Difference: dec(t, "15")},
			{StationID: "S2", Status: domain.HandoverStatusDisputed, CreatedAt: at, Difference: dec(t, "-1")},
		},
	}, DefaultPolicy())

	counts := summary.Days[0].Handovers
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 1, counts.Confirmed)
	assert.Equal(t, 1, counts.Disputed)
	assert.Equal(t, 1, counts.Resolved)
	assert.Equal(t, "-185.00", counts.NetDifference.StringFixed(2))
}

func TestAggregateVerificationAndIncome(t *testing.T) {
	in := AggregateInput{
		StationID: "S1",
		From:      day(1),
		To:        day(1),
		Shifts:    []domain.Shift{closedShift(t, "S1", 1, "2775", "2700")},
		Readings: []domain.NozzleReading{
			{StationID: "S1", ReadingDate: "2026-10-01", SaleValue: dec(t, "4775.00")},
			{StationID: "S1", ReadingDate: "2026-10-02", SaleValue: dec(t, "100.00")},
		},
		Transactions: []domain.Transaction{
			{StationID: "S1", TransactionDate: "2026-10-01", PaymentBreakdown: breakdown(t, "2775", "1000", "1000")},
		},
	}

	summary := Aggregate(in, DefaultPolicy())
	v := summary.Verification
	assert.True(t, v.Match)
	assert.Equal(t, "4775.00", v.TotalAccounted.StringFixed(2))
	assert.Equal(t, "1000.00", v.CreditPending.StringFixed(2))

	income := summary.Income
	assert.Equal(t, "4775.00", income.TotalSalesGenerated.StringFixed(2))
	assert.Equal(t, "-75.00", income.CashVariance.StringFixed(2))
	// 4775 - 1000 - abs(-75)
	assert.Equal(t, "3700.00", income.NetCashIncome.StringFixed(2))
}

func TestAggregateVerificationMismatchIsNotAnError(t *testing.T) {
	summary := Aggregate(AggregateInput{
		StationID: "S1",
		From:      day(1),
		To:        day(1),
		Readings:  []domain.NozzleReading{{StationID: "S1", ReadingDate: "2026-10-01", SaleValue: dec(t, "500")}},
		Transactions: []domain.Transaction{
			{StationID: "S1", TransactionDate: "2026-10-01", PaymentBreakdown: breakdown(t, "300", "0", "0")},
		},
	}, DefaultPolicy())

	assert.False(t, summary.Verification.Match)
	assert.Equal(t, "-200.00", summary.Verification.Difference.StringFixed(2))
}

func TestAgeReceivablesBuckets(t *testing.T) {
	asOf := day(31)
	creditors := []domain.Creditor{
		{ID: "C1", StationID: "S1", Name: "Fleet", CreditLimit: dec(t, "1000")},
		{ID: "C2", StationID: "S1", Name: "Farm", CreditLimit: dec(t, "5000")},
		{ID: "C3", StationID: "S1", Name: "Taxi", CreditLimit: dec(t, "100")},
		{ID: "C4", StationID: "S1", Name: "Paid up", CreditLimit: dec(t, "100")},
	}
	entries := []domain.CreditEntry{
		{ID: "e1", CreditorID: "C1", Delta: dec(t, "1500"), Kind: domain.CreditEntryAllocation, CreatedAt: asOf.AddDate(0, 0, -10)},
		{ID: "e2", CreditorID: "C2", Delta: dec(t, "400"), Kind: domain.CreditEntryAllocation, CreatedAt: asOf.AddDate(0, 0, -45)},
		{ID: "e3", CreditorID: "C3", Delta: dec(t, "80"), Kind: domain.CreditEntryAllocation, CreatedAt: asOf.AddDate(0, 0, -90)},
		{ID: "e4", CreditorID: "C4", Delta: dec(t, "50"), Kind: domain.CreditEntryAllocation, CreatedAt: asOf.AddDate(0, 0, -90)},
		{ID: "e5", CreditorID: "C4", Delta: dec(t, "-50"), Kind: domain.CreditEntrySettlement, CreatedAt: asOf.AddDate(0, 0, -5)},
		// after the report date
		{ID: "e6", CreditorID: "C1", Delta: dec(t, "999"), Kind: domain.CreditEntryAllocation, CreatedAt: asOf.AddDate(0, 0, 2)},
	}

	aging := AgeReceivables(creditors, entries, asOf, DefaultPolicy())
	assert.Equal(t, "1500.00", aging.Current.StringFixed(2))
	assert.Equal(t, "400.00", aging.Overdue.StringFixed(2))
	assert.Equal(t, "80.00", aging.Over60Days.StringFixed(2))
	assert.Equal(t, "480.00", aging.Over30Days.StringFixed(2))
	assert.Equal(t, "1980.00", aging.TotalOutstanding.StringFixed(2))

	require.Len(t, aging.Creditors, 3)
	assert.Equal(t, "C1", aging.Creditors[0].CreditorID)
	assert.True(t, aging.Creditors[0].OverLimit)
	assert.Equal(t, 10, aging.Creditors[0].OldestUnsettledDays)
	assert.Equal(t, domain.AgingOverdue, aging.Creditors[1].Bucket)
	assert.Equal(t, domain.AgingOver60Days, aging.Creditors[2].Bucket)
}

func TestAgeReceivablesSettlesOldestFirst(t *testing.T) {
	asOf := day(31)
	entries := []domain.CreditEntry{
		{ID: "a", CreditorID: "C1", Delta: dec(t, "100"), CreatedAt: asOf.AddDate(0, 0, -70)},
		{ID: "b", CreditorID: "C1", Delta: dec(t, "100"), CreatedAt: asOf.AddDate(0, 0, -20)},
		{ID: "c", CreditorID: "C1", Delta: dec(t, "-150"), CreatedAt: asOf.AddDate(0, 0, -1)},
	}
	aging := AgeReceivables([]domain.Creditor{{ID: "C1", CreditLimit: dec(t, "1000")}}, entries, asOf, DefaultPolicy())

	require.Len(t, aging.Creditors, 1)
	assert.Equal(t, 20, aging.Creditors[0].OldestUnsettledDays)
	assert.Equal(t, "50.00", aging.Current.StringFixed(2))
	assert.True(t, aging.Over30Days.IsZero())
}

func TestAggregateIsIdempotent(t *testing.T) {
	in := AggregateInput{
		StationID: "S1",
		From:      day(1),
		To:        day(2),
		Shifts:    []domain.Shift{closedShift(t, "S1", 1, "5000", "4950")},
		Creditors: []domain.Creditor{{ID: "C2", StationID: "S1", CreditLimit: dec(t, "1")}, {ID: "C1", StationID: "S1", CreditLimit: dec(t, "1")}},
		CreditEntries: []domain.CreditEntry{
			{ID: "x", CreditorID: "C1", Delta: dec(t, "5"), CreatedAt: day(1)},
			{ID: "y", CreditorID: "C2", Delta: dec(t, "7"), CreatedAt: day(1)},
			{ID: "z", CreditorID: "C2", Delta: dec(t, "-2"), Kind: domain.CreditEntrySettlement, CreatedAt: day(2)},
		},
	}
	first := Aggregate(in, DefaultPolicy())
	second := Aggregate(in, DefaultPolicy())
	assert.Equal(t, first, second)
	assert.Equal(t, "2.00", first.Income.CreditSettlementsReceived.StringFixed(2))
}

func TestParseRange(t *testing.T) {
	from, to, err := ParseRange("2026-10-01", "2026-10-31")
	require.NoError(t, err)
	assert.Equal(t, day(1), from)
	assert.Equal(t, day(31), to)

	_, _, err = ParseRange("2026-10-05", "2026-10-01")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = ParseRange("2026-01-01", "2026-12-31")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = ParseRange("01/10/2026", "2026-10-01")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
