package settlement

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fuelsync/backend/internal/domain"
)

// MaxReportDays bounds a settlement report range.
const MaxReportDays = 92

var hundred = decimal.NewFromInt(100)

// AggregateInput carries everything the aggregate reads for one station. The
// caller may pass a superset; records outside the station or range are ignored.
type AggregateInput struct {
	StationID     string
	From          time.Time
	To            time.Time
	Shifts        []domain.Shift
	Handovers     []domain.CashHandover
	Transactions  []domain.Transaction
	Readings      []domain.NozzleReading
	Creditors     []domain.Creditor
	CreditEntries []domain.CreditEntry
}

// Aggregate builds the settlement summary. It has no side effects and returns
// the same summary for the same input.
func Aggregate(in AggregateInput, policy Policy) domain.SettlementSummary {
	from := dayStart(in.From)
	to := dayStart(in.To)

	summary := domain.SettlementSummary{
		StationID: in.StationID,
		From:      from.Format(domain.DateLayout),
		To:        to.Format(domain.DateLayout),
		Days:      make([]domain.DailySettlement, 0, int(to.Sub(from).Hours()/24)+1),
	}

	dayIndex := make(map[string]int)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(domain.DateLayout)
		dayIndex[key] = len(summary.Days)
		summary.Days = append(summary.Days, domain.DailySettlement{
			Date:         key,
			ExpectedCash: decimal.Zero,
			ActualCash:   decimal.Zero,
			Handovers:    domain.HandoverDayCounts{NetDifference: decimal.Zero},
		})
	}

	for _, shift := range in.Shifts {
		if shift.StationID != in.StationID || shift.Status != domain.ShiftStatusClosed || shift.EndTime == nil {
			continue
		}
		idx, ok := dayIndex[shift.EndTime.UTC().Format(domain.DateLayout)]
		if !ok {
			continue
		}
		day := &summary.Days[idx]
		day.ShiftsClosed++
		day.ExpectedCash = day.ExpectedCash.Add(shift.ExpectedCash)
		day.ActualCash = day.ActualCash.Add(shift.ActualCashCollected)
	}

	for _, h := range in.Handovers {
		if h.StationID != in.StationID {
			continue
		}
		idx, ok := dayIndex[h.CreatedAt.UTC().Format(domain.DateLayout)]
		if !ok {
			continue
		}
		counts := &summary.Days[idx].Handovers
		switch h.Status {
		case domain.HandoverStatusPending:
			counts.Pending++
		case domain.HandoverStatusConfirmed:
			counts.Confirmed++
		case domain.HandoverStatusDisputed:
			counts.Disputed++
		case domain.HandoverStatusResolved:
			counts.Resolved++
		}
		if h.Status != domain.HandoverStatusPending {
			counts.NetDifference = counts.NetDifference.Add(h.Difference)
		}
	}

	cashVariance := decimal.Zero
	for i := range summary.Days {
		day := &summary.Days[i]
		day.Variance = day.ActualCash.Sub(day.ExpectedCash)
		day.VariancePercent, day.VarianceStatus = ClassifyVariance(policy, day.ExpectedCash, day.ActualCash)
		cashVariance = cashVariance.Add(day.Variance)
	}

	summary.Verification = verify(in, dayIndex, policy)
	summary.Income = domain.IncomeStatement{
		TotalSalesGenerated:       summary.Verification.CalculatedSaleValue,
		CreditPending:             summary.Verification.CreditPending,
		CashVariance:              cashVariance,
		NetCashIncome:             summary.Verification.CalculatedSaleValue.Sub(summary.Verification.CreditPending).Sub(cashVariance.Abs()),
		CreditSettlementsReceived: settlementsReceived(in, dayIndex),
	}
	summary.Receivables = AgeReceivables(in.Creditors, in.CreditEntries, to, policy)

	return summary
}

// ClassifyVariance returns the variance percentage of actual against expected,
// rounded to two places, and its status. Thresholds are compared against the
// unrounded percentage. With nothing expected any non-zero actual is
// investigated.
func ClassifyVariance(policy Policy, expected decimal.Decimal, actual decimal.Decimal) (decimal.Decimal, string) {
	variance := actual.Sub(expected)
	if expected.IsZero() {
		if variance.IsZero() {
			return decimal.Zero, domain.VarianceOK
		}
		return decimal.Zero, domain.VarianceInvestigate
	}

	exact := variance.Mul(hundred).Div(expected)
	pct := exact.Round(2)
	abs := exact.Abs()
	switch {
	case abs.LessThanOrEqual(policy.ReviewThresholdPct):
		return pct, domain.VarianceOK
	case abs.LessThanOrEqual(policy.InvestigateThresholdPct):
		return pct, domain.VarianceReview
	default:
		return pct, domain.VarianceInvestigate
	}
}

func verify(in AggregateInput, dayIndex map[string]int, policy Policy) domain.SalesVerification {
	v := domain.SalesVerification{
		CalculatedSaleValue: decimal.Zero,
		CashReceived:        decimal.Zero,
		OnlineReceived:      decimal.Zero,
		CreditPending:       decimal.Zero,
	}
	for _, reading := range in.Readings {
		if reading.StationID != in.StationID {
			continue
		}
		if _, ok := dayIndex[reading.ReadingDate]; !ok {
			continue
		}
		v.CalculatedSaleValue = v.CalculatedSaleValue.Add(reading.SaleValue)
	}
	for _, tx := range in.Transactions {
		if tx.StationID != in.StationID {
			continue
		}
		if _, ok := dayIndex[tx.TransactionDate]; !ok {
			continue
		}
		v.CashReceived = v.CashReceived.Add(tx.PaymentBreakdown.Cash)
		v.OnlineReceived = v.OnlineReceived.Add(tx.PaymentBreakdown.Online)
		v.CreditPending = v.CreditPending.Add(tx.PaymentBreakdown.Credit)
	}
	v.TotalAccounted = v.CashReceived.Add(v.OnlineReceived).Add(v.CreditPending)
	v.Difference = v.TotalAccounted.Sub(v.CalculatedSaleValue)
	v.Match = v.Difference.Abs().LessThanOrEqual(policy.MonetaryTolerance)
	return v
}

func settlementsReceived(in AggregateInput, dayIndex map[string]int) decimal.Decimal {
	stationCreditors := make(map[string]struct{}, len(in.Creditors))
	for _, c := range in.Creditors {
		if c.StationID == in.StationID {
			stationCreditors[c.ID] = struct{}{}
		}
	}
	total := decimal.Zero
	for _, entry := range in.CreditEntries {
		if entry.Kind != domain.CreditEntrySettlement {
			continue
		}
		if _, ok := stationCreditors[entry.CreditorID]; !ok {
			continue
		}
		if _, ok := dayIndex[entry.CreatedAt.UTC().Format(domain.DateLayout)]; !ok {
			continue
		}
		total = total.Sub(entry.Delta)
	}
	return total
}

type openDebit struct {
	remaining decimal.Decimal
	at        time.Time
}

// AgeReceivables buckets each creditor's outstanding balance as of the given
// day by the age of its oldest unsettled allocation. Settlements pay off the
// oldest allocations first.
func AgeReceivables(creditors []domain.Creditor, entries []domain.CreditEntry, asOf time.Time, policy Policy) domain.ReceivablesAging {
	asOf = dayStart(asOf)
	cutoff := asOf.AddDate(0, 0, 1)

	byCreditor := make(map[string][]domain.CreditEntry)
	for _, entry := range entries {
		if !entry.CreatedAt.Before(cutoff) {
			continue
		}
		byCreditor[entry.CreditorID] = append(byCreditor[entry.CreditorID], entry)
	}

	aging := domain.ReceivablesAging{
		Current:          decimal.Zero,
		Overdue:          decimal.Zero,
		Over30Days:       decimal.Zero,
		Over60Days:       decimal.Zero,
		TotalOutstanding: decimal.Zero,
		Creditors:        make([]domain.CreditorAging, 0),
	}

	ordered := make([]domain.Creditor, len(creditors))
	copy(ordered, creditors)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, creditor := range ordered {
		history := byCreditor[creditor.ID]
		sort.SliceStable(history, func(i, j int) bool {
			if history[i].CreatedAt.Equal(history[j].CreatedAt) {
				return history[i].ID < history[j].ID
			}
			return history[i].CreatedAt.Before(history[j].CreatedAt)
		})

		outstanding := Outstanding(history)
		if !outstanding.IsPositive() {
			continue
		}

		queue := make([]openDebit, 0, len(history))
		for _, entry := range history {
			if entry.Delta.IsPositive() {
				queue = append(queue, openDebit{remaining: entry.Delta, at: entry.CreatedAt})
				continue
			}
			payment := entry.Delta.Neg()
			for payment.IsPositive() && len(queue) > 0 {
				if queue[0].remaining.GreaterThan(payment) {
					queue[0].remaining = queue[0].remaining.Sub(payment)
					break
				}
				payment = payment.Sub(queue[0].remaining)
				queue = queue[1:]
			}
		}

		ageDays := 0
		if len(queue) > 0 {
			ageDays = int(asOf.Sub(dayStart(queue[0].at)).Hours() / 24)
		}

		bucket := domain.AgingCurrent
		switch {
		case ageDays <= policy.CurrentMaxDays:
			aging.Current = aging.Current.Add(outstanding)
		case ageDays <= policy.OverdueMaxDays:
			bucket = domain.AgingOverdue
			aging.Overdue = aging.Overdue.Add(outstanding)
		default:
			bucket = domain.AgingOver60Days
			aging.Over60Days = aging.Over60Days.Add(outstanding)
		}
		aging.TotalOutstanding = aging.TotalOutstanding.Add(outstanding)
		aging.Creditors = append(aging.Creditors, domain.CreditorAging{
			CreditorID:          creditor.ID,
			Name:                creditor.Name,
			CreditLimit:         creditor.CreditLimit,
			Outstanding:         outstanding,
			OldestUnsettledDays: ageDays,
			Bucket:              bucket,
			OverLimit:           outstanding.GreaterThan(creditor.CreditLimit),
		})
	}
	aging.Over30Days = aging.Overdue.Add(aging.Over60Days)
	return aging
}

// ParseRange validates a report date range.
func ParseRange(from string, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(domain.DateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be YYYY-MM-DD", domain.ErrInvalidInput)
	}
	end, err := time.Parse(domain.DateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be YYYY-MM-DD", domain.ErrInvalidInput)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range ends before it starts", domain.ErrInvalidInput)
	}
	if int(end.Sub(start).Hours()/24)+1 > MaxReportDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range exceeds %d days", domain.ErrInvalidInput, MaxReportDays)
	}
	return start, end, nil
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
