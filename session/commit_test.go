package session_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/condition/store"
	"github.com/warp/condition-engine/ledger"
	"github.com/warp/condition-engine/money"
	"github.com/warp/condition-engine/session"
)

// =============================================================================
// COMMIT TESTS
// =============================================================================

func TestCommit_UpdatesThenCreates(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, 1000000, cashCondition(0, 5, "1000"), cashCondition(1, 5, "500"))
	second := idAt(t, s, 1)

	require.NoError(t, s.EditField(second, condition.FieldCount, 6))
	d := s.AddDraft()
	require.NoError(t, s.EditDraft(d, condition.FieldCount, 1))
	require.NoError(t, s.EditDraft(d, condition.FieldUnitValue, "2000"))

	require.NoError(t, s.Commit(ctx))

	assert.Equal(t, []string{"update", "create"}, rs.calls)
	assert.False(t, s.IsDirty())
	assert.True(t, s.Snapshot().IsValid())

	stored, err := rs.List(ctx, parent)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, 6, stored[1].Count)
	assert.Equal(t, 2, stored[2].Order)
	assert.Equal(t, money.Cents(200000), stored[2].EffectiveTotalCents(0))
	assert.Equal(t, stored, s.Committed())
}

func TestCommit_CleanSessionIsNoop(t *testing.T) {
	s, rs := newSession(t, 1000, cashCondition(0, 1, "10"))
	require.NoError(t, s.Commit(context.Background()))
	assert.Empty(t, rs.calls)
}

func TestCommit_ValidationBlocksAllCalls(t *testing.T) {
	s, rs := newSession(t, 1000, cashCondition(0, 1, "10"), cashCondition(1, 1, "10"))
	require.NoError(t, s.EditField(idAt(t, s, 0), condition.FieldCount, 2))
	require.NoError(t, s.EditField(idAt(t, s, 1), condition.FieldCount, -3))

	err := s.Commit(context.Background())

	var ve *condition.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, ve.HasField(condition.FieldCount))
	assert.Empty(t, rs.calls)
	assert.True(t, s.IsDirty())
}

func TestCommit_PartialFailureKeepsRemainderPending(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, 1000000,
		cashCondition(0, 1, "100"), cashCondition(1, 1, "100"), cashCondition(2, 1, "100"))
	a, b, c := idAt(t, s, 0), idAt(t, s, 1), idAt(t, s, 2)

	for _, id := range []condition.ID{a, b, c} {
		require.NoError(t, s.EditField(id, condition.FieldCount, 3))
	}
	s.AddDraft()

	// WHEN: the second update fails
	rs.failAt = 2
	err := s.Commit(ctx)

	// THEN: one applied, the failing item and everything after it still pending
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrPersistenceFailure)
	assert.ErrorIs(t, err, errGatewayDown)

	var ce *session.CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Applied)
	require.Len(t, ce.Results, 2)
	assert.NoError(t, ce.Results[0].Err)
	assert.Equal(t, a, ce.Results[0].ConditionID)

	failed := ce.Failed()
	require.NotNil(t, failed)
	assert.Equal(t, session.OpUpdate, failed.Op)
	assert.Equal(t, b, failed.ConditionID)

	_, pendingA := s.PendingEdit(a)
	_, pendingB := s.PendingEdit(b)
	_, pendingC := s.PendingEdit(c)
	assert.False(t, pendingA)
	assert.True(t, pendingB)
	assert.True(t, pendingC)
	assert.Len(t, s.Drafts(), 1)
	assert.Equal(t, 3, s.Committed()[0].Count)

	// WHEN: retried with the gateway back
	rs.failAt = 0
	rs.calls = nil
	require.NoError(t, s.Commit(ctx))

	// THEN: only the remainder is sent
	assert.Equal(t, []string{"update", "update", "create"}, rs.calls)
	assert.False(t, s.IsDirty())
}

func TestCommit_DraftFailureKeepsLaterDrafts(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, 1000000, cashCondition(0, 1, "100"))

	for _, unit := range []string{"1", "2", "3"} {
		d := s.AddDraft()
		require.NoError(t, s.EditDraft(d, condition.FieldCount, 1))
		require.NoError(t, s.EditDraft(d, condition.FieldUnitValue, unit))
	}

	rs.failAt = 2
	err := s.Commit(ctx)

	var ce *session.CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Applied)
	assert.Equal(t, session.OpCreate, ce.Failed().Op)
	assert.Equal(t, 1, ce.Failed().DraftIndex)

	drafts := s.Drafts()
	require.Len(t, drafts, 2)
	assert.Equal(t, "2", drafts[0].UnitValue.String())
	assert.Len(t, s.Committed(), 2)

	rs.failAt = 0
	require.NoError(t, s.Commit(ctx))

	stored, _ := rs.List(ctx, parent)
	require.Len(t, stored, 4)
	for i, c := range stored {
		assert.Equal(t, i, c.Order)
	}
}

// =============================================================================
// DELETE & REORDER TESTS
// =============================================================================

func TestDelete_IsImmediate(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, 1000, cashCondition(0, 1, "10"), cashCondition(1, 1, "5"))
	id := idAt(t, s, 0)
	require.NoError(t, s.EditField(id, condition.FieldCount, 4))

	require.NoError(t, s.Delete(ctx, id))

	assert.Equal(t, []string{"delete"}, rs.calls)
	assert.False(t, s.IsDirty(), "pending edit of the deleted condition is dropped")
	assert.Len(t, s.Committed(), 1)
	assert.Equal(t, money.Cents(500), s.Snapshot().ConfiguredTotal)

	assert.ErrorIs(t, s.Delete(ctx, id), session.ErrUnknownCondition)
}

func TestDelete_GatewayFailureKeepsCondition(t *testing.T) {
	s, rs := newSession(t, 1000, cashCondition(0, 1, "10"))
	rs.failAt = 1

	err := s.Delete(context.Background(), idAt(t, s, 0))
	assert.ErrorIs(t, err, errGatewayDown)
	assert.Len(t, s.Committed(), 1)
}

func TestReorder(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, 1000, cashCondition(0, 1, "1"), cashCondition(1, 1, "2"), cashCondition(2, 1, "3"))
	a, b, c := idAt(t, s, 0), idAt(t, s, 1), idAt(t, s, 2)

	require.NoError(t, s.Reorder(ctx, []condition.ID{c, a, b}))

	committed := s.Committed()
	assert.Equal(t, []condition.ID{c, a, b}, []condition.ID{committed[0].ID, committed[1].ID, committed[2].ID})
	stored, _ := rs.List(ctx, parent)
	assert.Equal(t, c, stored[0].ID)

	assert.ErrorIs(t, s.Reorder(ctx, []condition.ID{c, a}), session.ErrIncompleteOrder)
	assert.ErrorIs(t, s.Reorder(ctx, []condition.ID{c, c, a}), session.ErrIncompleteOrder)
	assert.ErrorIs(t, s.Reorder(ctx, []condition.ID{c, a, "x"}), session.ErrIncompleteOrder)
}

// =============================================================================
// APPLY ADJUSTMENT TESTS
// =============================================================================

func TestApplyAdjustment_ClosesCentsGap(t *testing.T) {
	ctx := context.Background()
	// R$ 10.000,00 as 3 × R$ 3.333,34
	s, rs := newSession(t, 1000000, cashCondition(0, 3, "3333.34"))
	require.Equal(t, money.Cents(-2), s.Snapshot().Difference)

	plan, err := s.AutoAdjust()
	require.NoError(t, err)
	require.NoError(t, s.ApplyAdjustment(ctx, plan))

	assert.Equal(t, []string{"create", "update"}, rs.calls)
	assert.True(t, s.Snapshot().IsValid())
	assert.True(t, s.CanAdvance())

	committed := s.Committed()
	require.Len(t, committed, 2)
	assert.Equal(t, 2, committed[0].Count)
	assert.Equal(t, ledger.AdjustmentDescription, committed[1].Description)
	assert.Equal(t, "3333.32", committed[1].UnitValue.String())
}

func TestApplyAdjustment_StalePlan(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, 1000000, cashCondition(0, 3, "3333.34"))
	plan, err := s.AutoAdjust()
	require.NoError(t, err)

	s.SetReference(1000001)

	assert.ErrorIs(t, s.ApplyAdjustment(ctx, plan), session.ErrStalePlan)
	assert.Empty(t, rs.calls)
}

func TestApplyAdjustment_FailureReloads(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, 1000000, cashCondition(0, 3, "3333.34"))
	plan, err := s.AutoAdjust()
	require.NoError(t, err)

	rs.failAt = 2
	err = s.ApplyAdjustment(ctx, plan)

	var ce *session.CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Applied)
	assert.Equal(t, session.OpUpdate, ce.Failed().Op)

	// The split-off installment landed; the source still has three.
	assert.Len(t, s.Committed(), 2)
	assert.Equal(t, money.Cents(-333334), s.Snapshot().Difference)
}

func TestApplyAdjustment_ReloadFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	rs := &recordingStore{Memory: store.NewMemory()}
	_, err := rs.Memory.Create(ctx, parent, cashCondition(0, 3, "3333.34"))
	require.NoError(t, err)

	var buf bytes.Buffer
	s, err := session.New(ctx, rs, parent, 1000000,
		session.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, err)
	plan, err := s.AutoAdjust()
	require.NoError(t, err)

	// WHEN: the first write fails and the store cannot be listed either
	rs.failAt = 1
	rs.listErr = errors.New("list unavailable")
	err = s.ApplyAdjustment(ctx, plan)

	// THEN: the commit error is returned and the reload failure is logged
	assert.ErrorIs(t, err, session.ErrPersistenceFailure)
	assert.Contains(t, buf.String(), "cents adjustment aborted")
	assert.Contains(t, buf.String(), "reload after failed adjustment")
	assert.Contains(t, buf.String(), "list unavailable")
}

func TestApplyAdjustment_NoAdjustableCondition(t *testing.T) {
	c := cashCondition(0, 1, "100")
	c.Settlement = condition.SettlementVehicle
	c.PaymentMethod = condition.MethodUnset
	c.Asset = &condition.Asset{Description: "moto"}
	s, _ := newSession(t, 10001, c)

	_, err := s.AutoAdjust()
	assert.ErrorIs(t, err, ledger.ErrNoAdjustableCondition)
	assert.True(t, session.IsClientError(err))
}

// =============================================================================
// STAGE GATE TESTS
// =============================================================================

func TestAdvance(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, 100000, cashCondition(0, 2, "500"))
	_, err := rs.CreateParent(ctx, condition.Parent{ID: parent, Kind: condition.ParentContract, Name: "Apto 3"})
	require.NoError(t, err)

	// GIVEN: a pending draft
	s.AddDraft()
	_, err = s.Advance(ctx, rs)
	assert.ErrorIs(t, err, session.ErrPendingChangesExist)
	s.Discard()

	// GIVEN: an unreconciled plan
	s.SetReference(100050)
	_, err = s.Advance(ctx, rs)
	assert.ErrorIs(t, err, session.ErrNotReconciled)
	s.SetReference(100000)

	// WHEN: clean and exact
	stage, err := s.Advance(ctx, rs)
	require.NoError(t, err)
	assert.Equal(t, condition.StageSentForSignature, stage)

	stage, err = s.Advance(ctx, rs)
	require.NoError(t, err)
	assert.Equal(t, condition.StageSigned, stage)

	_, err = s.Advance(ctx, rs)
	assert.ErrorIs(t, err, session.ErrFinalStage)
	assert.True(t, session.IsClientError(err))

	p, err := rs.GetParent(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, condition.StageSigned, p.Stage)
}
