package store_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/condition/store"
)

func newCondition(order int) condition.Condition {
	return condition.Condition{
		InstallmentType: condition.InstallmentMonthly,
		Count:           2,
		UnitValue:       decimal.NewFromInt(100),
		Settlement:      condition.SettlementCash,
		Order:           order,
	}
}

func TestMemory_CreateAssignsIDAndListsInOrder(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	b, err := m.Create(ctx, "p1", newCondition(1))
	require.NoError(t, err)
	a, err := m.Create(ctx, "p1", newCondition(0))
	require.NoError(t, err)
	_, err = m.Create(ctx, "p2", newCondition(0))
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, condition.ParentID("p1"), a.ParentID)

	list, err := m.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestMemory_CreateRejectsDuplicateOrder(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	_, err := m.Create(ctx, "p1", newCondition(0))
	require.NoError(t, err)
	_, err = m.Create(ctx, "p1", newCondition(0))
	assert.ErrorIs(t, err, condition.ErrDuplicateOrder)
}

func TestMemory_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	c, err := m.Create(ctx, "p1", newCondition(0))
	require.NoError(t, err)

	count := 9
	updated, err := m.Update(ctx, c.ID, condition.Patch{Count: &count})
	require.NoError(t, err)
	assert.Equal(t, 9, updated.Count)
	assert.True(t, updated.UnitValue.Equal(decimal.NewFromInt(100)))

	require.NoError(t, m.Delete(ctx, c.ID))
	assert.ErrorIs(t, m.Delete(ctx, c.ID), condition.ErrConditionNotFound)

	_, err = m.Update(ctx, c.ID, condition.Patch{Count: &count})
	assert.ErrorIs(t, err, condition.ErrConditionNotFound)
}

func TestMemory_ReorderIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	a, _ := m.Create(ctx, "p1", newCondition(0))
	b, _ := m.Create(ctx, "p1", newCondition(1))
	c, _ := m.Create(ctx, "p1", newCondition(2))

	// Swapping only two of three into a collision leaves everything as it was.
	err := m.Reorder(ctx, "p1", []condition.Position{{ID: a.ID, Order: 2}})
	assert.ErrorIs(t, err, condition.ErrDuplicateOrder)

	list, _ := m.List(ctx, "p1")
	assert.Equal(t, []condition.ID{a.ID, b.ID, c.ID}, ids(list))

	err = m.Reorder(ctx, "p1", []condition.Position{
		{ID: c.ID, Order: 0}, {ID: a.ID, Order: 1}, {ID: b.ID, Order: 2},
	})
	require.NoError(t, err)

	list, _ = m.List(ctx, "p1")
	assert.Equal(t, []condition.ID{c.ID, a.ID, b.ID}, ids(list))
}

func TestMemory_ReorderUnknownID(t *testing.T) {
	m := store.NewMemory()
	err := m.Reorder(context.Background(), "p1", []condition.Position{{ID: "nope", Order: 0}})
	assert.ErrorIs(t, err, condition.ErrConditionNotFound)
}

func TestMemory_Parents(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	p, err := m.CreateParent(ctx, condition.Parent{Kind: condition.ParentContract, Name: "Apto 101", ReferenceTotal: 1000000})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, condition.StageDraft, p.Stage)

	require.NoError(t, m.SetReferenceTotal(ctx, p.ID, 2000000))
	require.NoError(t, m.SetStage(ctx, p.ID, condition.StageSentForSignature))

	got, err := m.GetParent(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2000000, got.ReferenceTotal)
	assert.Equal(t, condition.StageSentForSignature, got.Stage)

	// Creating over an existing ID leaves it untouched
	_, err = m.CreateParent(ctx, condition.Parent{ID: p.ID, Kind: condition.ParentTemplate, Name: "Outro", ReferenceTotal: 1})
	assert.ErrorIs(t, err, condition.ErrDuplicateParent)
	got, err = m.GetParent(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, condition.StageSentForSignature, got.Stage)
	assert.EqualValues(t, 2000000, got.ReferenceTotal)

	_, err = m.GetParent(ctx, "missing")
	assert.ErrorIs(t, err, condition.ErrParentNotFound)
	assert.ErrorIs(t, m.SetStage(ctx, "missing", condition.StageSigned), condition.ErrParentNotFound)
}

func ids(list []condition.Condition) []condition.ID {
	out := make([]condition.ID, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}
