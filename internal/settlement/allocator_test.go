package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelsync/backend/internal/domain"
)

func breakdown(t *testing.T, cash, online, credit string) domain.PaymentBreakdown {
	return domain.PaymentBreakdown{Cash: dec(t, cash), Online: dec(t, online), Credit: dec(t, credit)}
}

func TestAllocateAcceptsExactSplitWithCredit(t *testing.T) {
	alloc, err := Allocate(DefaultPolicy(), dec(t, "4775.00"), breakdown(t, "2775", "1000", "1000"), []domain.CreditAllocation{
		{CreditorID: " C1 ", Amount: dec(t, "1000")},
	})
	require.NoError(t, err)

	require.Len(t, alloc.Entries, 1)
	assert.Equal(t, "C1", alloc.Entries[0].CreditorID)
	assert.Equal(t, domain.CreditEntryAllocation, alloc.Entries[0].Kind)
	assert.True(t, alloc.Entries[0].Delta.Equal(dec(t, "1000")))
	assert.Equal(t, "C1", alloc.Allocations[0].CreditorID)
}

func TestAllocateToleratesOneCent(t *testing.T) {
	_, err := Allocate(DefaultPolicy(), dec(t, "100.00"), breakdown(t, "99.99", "0", "0"), nil)
	assert.NoError(t, err)

	_, err = Allocate(DefaultPolicy(), dec(t, "100.00"), breakdown(t, "100.01", "0", "0"), nil)
	assert.NoError(t, err)
}

func TestAllocateRejectsBreakdownOutsideTolerance(t *testing.T) {
	_, err := Allocate(DefaultPolicy(), dec(t, "4775.00"), breakdown(t, "2700", "1000", "1000"), []domain.CreditAllocation{
		{CreditorID: "C1", Amount: dec(t, "1000")},
	})
	require.ErrorIs(t, err, domain.ErrBreakdownMismatch)

	var mismatch *domain.BreakdownMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "4700.00", mismatch.Actual.StringFixed(2))
	assert.Equal(t, "4775.00", mismatch.Expected.StringFixed(2))
}

func TestAllocateRequiresExactCreditAllocation(t *testing.T) {
	_, err := Allocate(DefaultPolicy(), dec(t, "4775.00"), breakdown(t, "2775", "1000", "1000"), []domain.CreditAllocation{
		{CreditorID: "C1", Amount: dec(t, "999.99")},
	})
	require.ErrorIs(t, err, domain.ErrUnallocatedCredit)

	_, err = Allocate(DefaultPolicy(), dec(t, "4775.00"), breakdown(t, "2775", "1000", "1000"), nil)
	assert.ErrorIs(t, err, domain.ErrUnallocatedCredit)
}

func TestAllocateRejectsAllocationsWithoutCredit(t *testing.T) {
	_, err := Allocate(DefaultPolicy(), dec(t, "100"), breakdown(t, "100", "0", "0"), []domain.CreditAllocation{
		{CreditorID: "C1", Amount: dec(t, "10")},
	})
	assert.ErrorIs(t, err, domain.ErrUnallocatedCredit)
}

func TestAllocateValidatesAllocationShape(t *testing.T) {
	cases := map[string][]domain.CreditAllocation{
		"missing creditor": {{CreditorID: "", Amount: dec(t, "100")}},
		"zero amount":      {{CreditorID: "C1", Amount: decimal.Zero}, {CreditorID: "C2", Amount: dec(t, "100")}},
		"duplicate":        {{CreditorID: "C1", Amount: dec(t, "50")}, {CreditorID: "C1", Amount: dec(t, "50")}},
	}
	for name, allocations := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Allocate(DefaultPolicy(), dec(t, "100"), breakdown(t, "0", "0", "100"), allocations)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestAllocateRejectsNegativeComponents(t *testing.T) {
	_, err := Allocate(DefaultPolicy(), dec(t, "100"), breakdown(t, "110", "-10", "0"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAllocateUsesPolicyTolerance(t *testing.T) {
	policy := DefaultPolicy()
	policy.MonetaryTolerance = dec(t, "1")
	_, err := Allocate(policy, dec(t, "100"), breakdown(t, "99", "0", "0"), nil)
	assert.NoError(t, err)
}

func TestCheckCreditLimitsWarnsOnlyAboveLimit(t *testing.T) {
	warnings := CheckCreditLimits([]CreditorBalance{
		{CreditorID: "C2", CreditLimit: dec(t, "500"), Outstanding: dec(t, "750")},
		{CreditorID: "C1", CreditLimit: dec(t, "1000"), Outstanding: dec(t, "1000")},
		{CreditorID: "C0", CreditLimit: dec(t, "0"), Outstanding: dec(t, "0.01")},
	})
	require.Len(t, warnings, 2)
	assert.Equal(t, "C0", warnings[0].CreditorID)
	assert.Equal(t, "C2", warnings[1].CreditorID)
	assert.Equal(t, "250.00", warnings[1].Excess.StringFixed(2))
}

func TestOutstandingFoldsLedger(t *testing.T) {
	total := Outstanding([]domain.CreditEntry{
		{Delta: dec(t, "1000")},
		{Delta: dec(t, "250.50")},
		{Delta: dec(t, "-400")},
	})
	assert.Equal(t, "850.50", total.StringFixed(2))
}

func TestAllocateRejectsSubCentAmounts(t *testing.T) {
	_, err := Allocate(DefaultPolicy(), dec(t, "4775.00"), breakdown(t, "2774.995", "1000", "1000.005"), []domain.CreditAllocation{
		{CreditorID: "C1", Amount: dec(t, "1000.005")},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Allocate(DefaultPolicy(), dec(t, "4775.00"), breakdown(t, "2775", "1000", "1000"), []domain.CreditAllocation{
		{CreditorID: "C1", Amount: dec(t, "999.995")},
		{CreditorID: "C2", Amount: dec(t, "0.005")},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Allocate(DefaultPolicy(), dec(t, "4775.00"), breakdown(t, "2775.000", "1000.10", "999.90"), []domain.CreditAllocation{
		{CreditorID: "C1", Amount: dec(t, "999.90")},
	})
	assert.NoError(t, err)
}
