package condition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/money"
)

func TestSchedule_ExplicitDateAndCadence(t *testing.T) {
	first := date(2026, 1, 10)
	c := monthly(3, "1000.00")
	c.Due = condition.DuePolicy{FirstDueDate: &first, IntervalDays: 30}

	got := condition.Schedule(c, 0, nil)
	require.Len(t, got, 3)
	for i, inst := range got {
		assert.Equal(t, i+1, inst.Number)
		assert.Equal(t, money.Cents(100000), inst.Amount)
		require.NotNil(t, inst.DueDate)
	}
	assert.Equal(t, date(2026, 1, 10), *got[0].DueDate)
	assert.Equal(t, date(2026, 2, 9), *got[1].DueDate)
	assert.Equal(t, date(2026, 3, 11), *got[2].DueDate)
}

func TestSchedule_EventDate(t *testing.T) {
	keys := date(2027, 6, 1)
	c := monthly(2, "500")
	c.InstallmentType = condition.InstallmentIntermediate
	c.Due.Event = condition.EventKeysDelivery

	got := condition.Schedule(c, 0, condition.EventDates{condition.EventKeysDelivery: keys})
	require.Len(t, got, 2)
	assert.Equal(t, keys, *got[0].DueDate)
	assert.Equal(t, keys.AddDate(0, 0, 180), *got[1].DueDate)
}

func TestSchedule_UnresolvedEventLeavesDatesEmpty(t *testing.T) {
	c := monthly(2, "500")
	c.Due.Event = condition.EventFinancingApproval

	for _, inst := range condition.Schedule(c, 0, nil) {
		assert.Nil(t, inst.DueDate)
	}
}

func TestSchedule_CorrectionAfterGrace(t *testing.T) {
	c := monthly(4, "100")
	c.Correction = condition.Correction{Enabled: true, Index: "INCC", GracePeriodInstallments: 2}

	got := condition.Schedule(c, 0, nil)
	require.Len(t, got, 4)
	assert.False(t, got[0].Corrected)
	assert.False(t, got[1].Corrected)
	assert.True(t, got[2].Corrected)
	assert.True(t, got[3].Corrected)
}

func TestSchedule_TotalsMatchEffectiveTotal(t *testing.T) {
	c := monthly(1, "25")
	c.ValueKind = condition.ValuePercentage
	c.Count = 4
	reference := money.Cents(1234567)

	var sum money.Cents
	for _, inst := range condition.Schedule(c, reference, nil) {
		sum = sum.Add(inst.Amount)
	}
	assert.Equal(t, c.EffectiveTotalCents(reference), sum)
}

func TestSchedule_ZeroCount(t *testing.T) {
	assert.Empty(t, condition.Schedule(monthly(0, "0"), 0, nil))
}

func TestSchedule_CountOverMaximumExpandsToNothing(t *testing.T) {
	assert.Empty(t, condition.Schedule(monthly(1<<31, "1.00"), 0, nil))
	assert.Len(t, condition.Schedule(monthly(condition.MaxCount, "1.00"), 0, nil), condition.MaxCount)
}
