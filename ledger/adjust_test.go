package ledger_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/ledger"
	"github.com/warp/condition-engine/money"
)

// =============================================================================
// AUTO ADJUST TESTS
// =============================================================================

func TestAutoAdjustCents_SplitsMultiInstallmentCondition(t *testing.T) {
	// GIVEN: R$ 10.000,00 as 3 × R$ 3.333,34, two cents over
	committed := []condition.Condition{cash("a", 0, 3, "3333.34")}

	// WHEN
	plan, err := ledger.AutoAdjustCents(committed, -2, 1000000)
	require.NoError(t, err)

	// THEN: count 3 → 2 plus one installment of R$ 3.333,32
	assert.Equal(t, condition.ID("a"), plan.Target)
	require.Len(t, plan.Updates, 1)
	require.NotNil(t, plan.Updates[0].Patch.Count)
	assert.Equal(t, 2, *plan.Updates[0].Patch.Count)

	require.Len(t, plan.Creates, 1)
	created := plan.Creates[0]
	assert.Equal(t, 1, created.Count)
	assert.Equal(t, money.Cents(333332), created.UnitCents(0))
	assert.Equal(t, condition.SettlementCash, created.Settlement)
	assert.Equal(t, ledger.AdjustmentDescription, created.Description)
	assert.Equal(t, 1, created.Order)
	assert.True(t, created.IsDraft())

	after := plan.Apply(committed)
	assert.Zero(t, ledger.ComputeSnapshot(after, nil, nil, 1000000).Difference)
}

func TestAutoAdjustCents_SingleInstallmentUpdatesUnit(t *testing.T) {
	committed := []condition.Condition{cash("a", 0, 1, "9999.99")}

	plan, err := ledger.AutoAdjustCents(committed, 1, 1000000)
	require.NoError(t, err)

	assert.Empty(t, plan.Creates)
	require.Len(t, plan.Updates, 1)
	require.NotNil(t, plan.Updates[0].Patch.UnitValue)
	assert.Equal(t, "10000", plan.Updates[0].Patch.UnitValue.String())
	assert.Nil(t, plan.Updates[0].Patch.ValueKind)
}

func TestAutoAdjustCents_PicksLastCashConditionByOrder(t *testing.T) {
	committed := []condition.Condition{
		cash("late", 5, 1, "100"),
		vehicle("car", 9, "50000"),
		cash("early", 1, 1, "100"),
	}

	plan, err := ledger.AutoAdjustCents(committed, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, condition.ID("late"), plan.Target)
}

func TestAutoAdjustCents_EqualOrdersPreferLaterElement(t *testing.T) {
	committed := []condition.Condition{cash("first", 2, 1, "100"), cash("second", 2, 1, "100")}

	plan, err := ledger.AutoAdjustCents(committed, -1, 0)
	require.NoError(t, err)
	assert.Equal(t, condition.ID("second"), plan.Target)
}

func TestAutoAdjustCents_UnsetSettlementIsEligible(t *testing.T) {
	c := cash("a", 0, 1, "10")
	c.Settlement = condition.SettlementUnset

	plan, err := ledger.AutoAdjustCents([]condition.Condition{vehicle("v", 1, "100"), c}, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, condition.ID("a"), plan.Target)
}

func TestAutoAdjustCents_SkipsCandidateThatWouldGoNonPositive(t *testing.T) {
	committed := []condition.Condition{cash("big", 0, 1, "500"), cash("tiny", 1, 2, "0.50")}

	plan, err := ledger.AutoAdjustCents(committed, -60, 0)
	require.NoError(t, err)
	assert.Equal(t, condition.ID("big"), plan.Target)
}

func TestAutoAdjustCents_PercentageBecomesFixed(t *testing.T) {
	// 50% of R$ 20.000,01 rounds to R$ 10.000,01
	c := cash("pct", 1, 1, "50")
	c.ValueKind = condition.ValuePercentage
	committed := []condition.Condition{cash("fixed", 0, 1, "9999.99"), c}

	before := ledger.ComputeSnapshot(committed, nil, nil, 2000001)
	require.Equal(t, money.Cents(1), before.Difference)

	plan, err := ledger.AutoAdjustCents(committed, before.Difference, 2000001)
	require.NoError(t, err)
	assert.Equal(t, condition.ID("pct"), plan.Target)

	patch := plan.Updates[0].Patch
	require.NotNil(t, patch.ValueKind)
	assert.Equal(t, condition.ValueFixed, *patch.ValueKind)
	assert.Equal(t, "10000.02", patch.UnitValue.String())

	after := plan.Apply(committed)
	assert.Zero(t, ledger.ComputeSnapshot(after, nil, nil, 2000001).Difference)
}

func TestAutoAdjustCents_SplitOffKeepsSchedule(t *testing.T) {
	first := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	c := cash("a", 3, 4, "250")
	c.PaymentMethod = condition.MethodPix
	c.Correction = condition.Correction{Enabled: true, Index: "INCC", GracePeriodInstallments: 4}
	c.Due = condition.DuePolicy{FirstDueDate: &first, IntervalDays: 30}

	plan, err := ledger.AutoAdjustCents([]condition.Condition{c}, 7, 0)
	require.NoError(t, err)

	require.NotNil(t, plan.Updates[0].Patch.GracePeriod)
	assert.Equal(t, 3, *plan.Updates[0].Patch.GracePeriod)

	split := plan.Creates[0]
	assert.Equal(t, condition.MethodPix, split.PaymentMethod)
	assert.Equal(t, 1, split.Correction.GracePeriodInstallments)
	assert.Equal(t, "INCC", split.Correction.Index)
	require.NotNil(t, split.Due.FirstDueDate)
	assert.Equal(t, first.AddDate(0, 0, 90), *split.Due.FirstDueDate)
	assert.Equal(t, 4, split.Order)
	assert.NoError(t, split.Validate())
}

func TestAutoAdjustCents_SplitOffInheritsUnsetPaymentMethod(t *testing.T) {
	c := cash("a", 0, 3, "100")
	c.PaymentMethod = condition.MethodUnset

	plan, err := ledger.AutoAdjustCents([]condition.Condition{c}, 1, 0)
	require.NoError(t, err)

	require.Len(t, plan.Creates, 1)
	assert.Equal(t, condition.MethodUnset, plan.Creates[0].PaymentMethod)
	assert.NoError(t, plan.Creates[0].Validate())
}

func TestAutoAdjustCents_Errors(t *testing.T) {
	t.Run("outside window", func(t *testing.T) {
		_, err := ledger.AutoAdjustCents([]condition.Condition{cash("a", 0, 1, "10")}, 101, 0)
		assert.ErrorIs(t, err, ledger.ErrNotCentsDiscrepancy)

		var de *ledger.DiscrepancyError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, money.Cents(101), de.Difference)
	})

	t.Run("zero difference", func(t *testing.T) {
		_, err := ledger.AutoAdjustCents([]condition.Condition{cash("a", 0, 1, "10")}, 0, 0)
		assert.ErrorIs(t, err, ledger.ErrNotCentsDiscrepancy)
	})

	t.Run("only non-cash", func(t *testing.T) {
		_, err := ledger.AutoAdjustCents([]condition.Condition{vehicle("v", 0, "100")}, 1, 0)
		assert.ErrorIs(t, err, ledger.ErrNoAdjustableCondition)
	})

	t.Run("drafts are not eligible", func(t *testing.T) {
		_, err := ledger.AutoAdjustCents([]condition.Condition{cash("", 0, 1, "100")}, 1, 0)
		assert.ErrorIs(t, err, ledger.ErrNoAdjustableCondition)
	})

	t.Run("zero count not eligible", func(t *testing.T) {
		_, err := ledger.AutoAdjustCents([]condition.Condition{cash("a", 0, 0, "0")}, 1, 0)
		assert.ErrorIs(t, err, ledger.ErrNoAdjustableCondition)
	})
}

// Applying the plan always closes the gap.
func TestAutoAdjustCents_PlanReconciles(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		n := 1 + r.Intn(5)
		committed := make([]condition.Condition, 0, n+1)
		for i := 0; i < n; i++ {
			committed = append(committed, cash(string(rune('a'+i)), r.Intn(4), 1+r.Intn(24), randomUnit(r).String()))
		}
		if r.Intn(2) == 0 {
			committed = append(committed, vehicle("v", 10, "80000"))
		}

		configured := ledger.TotalOf(committed, 0)
		difference := money.Cents(1 + r.Int63n(100))
		if r.Intn(2) == 0 {
			difference = -difference
		}
		reference := configured.Add(difference)

		before := ledger.ComputeSnapshot(committed, nil, nil, reference)
		require.Equal(t, difference, before.Difference)

		plan, err := ledger.AutoAdjustCents(committed, before.Difference, reference)
		require.NoError(t, err, "iteration %d", iter)

		after := ledger.ComputeSnapshot(plan.Apply(committed), nil, nil, reference)
		require.Zero(t, after.Difference, "iteration %d", iter)
	}
}

func TestAdjustmentPlan_ApplyLeavesInputUntouched(t *testing.T) {
	committed := []condition.Condition{cash("a", 0, 3, "3333.34")}
	plan, err := ledger.AutoAdjustCents(committed, -2, 1000000)
	require.NoError(t, err)

	_ = plan.Apply(committed)
	assert.Equal(t, 3, committed[0].Count)
	assert.False(t, plan.IsEmpty())
}
