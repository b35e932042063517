package settlement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fuelsync/backend/internal/domain"
)

// Allocation is a validated payment split together with the credit ledger
// movements it implies.
type Allocation struct {
	Breakdown   domain.PaymentBreakdown
	Allocations []domain.CreditAllocation
	Entries     []domain.CreditEntry
}

// Allocate checks that the breakdown accounts for the sale value within the
// policy tolerance and that credit is allocated to creditors exactly.
func Allocate(policy Policy, saleValue decimal.Decimal, breakdown domain.PaymentBreakdown, allocations []domain.CreditAllocation) (Allocation, error) {
	if breakdown.Cash.IsNegative() || breakdown.Online.IsNegative() || breakdown.Credit.IsNegative() {
		return Allocation{}, fmt.Errorf("%w: payment components must not be negative", domain.ErrInvalidInput)
	}
	if err := CheckMoney("cash", breakdown.Cash); err != nil {
		return Allocation{}, err
	}
	if err := CheckMoney("online", breakdown.Online); err != nil {
		return Allocation{}, err
	}
	if err := CheckMoney("credit", breakdown.Credit); err != nil {
		return Allocation{}, err
	}

	total := breakdown.Total()
	if total.Sub(saleValue).Abs().GreaterThan(policy.MonetaryTolerance) {
		return Allocation{}, &domain.BreakdownMismatchError{Expected: saleValue, Actual: total}
	}

	seen := make(map[string]struct{}, len(allocations))
	normalized := make([]domain.CreditAllocation, 0, len(allocations))
	allocated := decimal.Zero
	for _, alloc := range allocations {
		creditorID := strings.TrimSpace(alloc.CreditorID)
		if creditorID == "" {
			return Allocation{}, fmt.Errorf("%w: credit allocation requires a creditor", domain.ErrInvalidInput)
		}
		if !alloc.Amount.IsPositive() {
			return Allocation{}, fmt.Errorf("%w: credit allocation for %s must be positive", domain.ErrInvalidInput, creditorID)
		}
		if err := CheckMoney("credit allocation for "+creditorID, alloc.Amount); err != nil {
			return Allocation{}, err
		}
		if _, dup := seen[creditorID]; dup {
			return Allocation{}, fmt.Errorf("%w: creditor %s allocated twice", domain.ErrInvalidInput, creditorID)
		}
		seen[creditorID] = struct{}{}
		allocated = allocated.Add(alloc.Amount)
		normalized = append(normalized, domain.CreditAllocation{CreditorID: creditorID, Amount: alloc.Amount})
	}
	if !allocated.Equal(breakdown.Credit) {
		return Allocation{}, &domain.UnallocatedCreditError{Credit: breakdown.Credit, Allocated: allocated}
	}

	entries := make([]domain.CreditEntry, 0, len(normalized))
	for _, alloc := range normalized {
		entries = append(entries, domain.CreditEntry{
			CreditorID: alloc.CreditorID,
			Delta:      alloc.Amount,
			Kind:       domain.CreditEntryAllocation,
		})
	}

	return Allocation{
		Breakdown:   breakdown,
		Allocations: normalized,
		Entries:     entries,
	}, nil
}

// CreditorBalance is a creditor's limit and outstanding after a posting.
type CreditorBalance struct {
	CreditorID  string
	CreditLimit decimal.Decimal
	Outstanding decimal.Decimal
}

// Outstanding folds ledger entries into a balance.
func Outstanding(entries []domain.CreditEntry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.Delta)
	}
	return total
}

// CheckCreditLimits reports every creditor whose outstanding exceeds its limit,
// ordered by creditor id.
func CheckCreditLimits(balances []CreditorBalance) []domain.CreditLimitWarning {
	warnings := make([]domain.CreditLimitWarning, 0)
	for _, b := range balances {
		if b.Outstanding.GreaterThan(b.CreditLimit) {
			warnings = append(warnings, domain.CreditLimitWarning{
				CreditorID:  b.CreditorID,
				CreditLimit: b.CreditLimit,
				Outstanding: b.Outstanding,
				Excess:      b.Outstanding.Sub(b.CreditLimit),
			})
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].CreditorID < warnings[j].CreditorID
	})
	return warnings
}
