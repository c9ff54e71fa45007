package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/condition-engine/ledger"
)

// =============================================================================
// AUTO ADJUST
// =============================================================================

// AutoAdjust plans the cents adjustment for the committed set. It refuses
// while edits or drafts are pending, since the snapshot would then include
// values the store has not seen.
func (s *Session) AutoAdjust() (ledger.AdjustmentPlan, error) {
	if s.IsDirty() {
		return ledger.AdjustmentPlan{}, ErrPendingChangesExist
	}
	return ledger.AutoAdjustCents(s.committed, s.snapshot.Difference, s.reference)
}

// ApplyAdjustment issues a plan produced by AutoAdjust: creations first,
// then updates, so a failure between the two leaves the plan's split-off
// installment in place rather than a shortened source condition.
//
// The plan must still match the current difference; otherwise
// ErrStalePlan is returned and nothing is sent. After the calls the
// committed set is reloaded from the store.
func (s *Session) ApplyAdjustment(ctx context.Context, plan ledger.AdjustmentPlan) error {
	if s.IsDirty() {
		return ErrPendingChangesExist
	}
	if plan.IsEmpty() {
		return nil
	}
	if plan.Difference != s.snapshot.Difference {
		return fmt.Errorf("plan for %d cents, current difference %d: %w",
			plan.Difference, s.snapshot.Difference, ErrStalePlan)
	}

	var results []ItemResult
	fail := func(r ItemResult) error {
		results = append(results, r)
		applied := len(results) - 1
		s.logger.Warn("cents adjustment aborted",
			slog.String("parent_id", string(s.parentID)),
			slog.String("op", string(r.Op)),
			slog.Int("applied", applied),
			slog.Any("error", r.Err),
		)
		if err := s.Reload(ctx); err != nil {
			s.logger.Error("reload after failed adjustment",
				slog.String("parent_id", string(s.parentID)),
				slog.Any("error", err),
			)
		}
		return &CommitError{Applied: applied, Results: results, Err: r.Err}
	}

	for i, c := range plan.Creates {
		c.ParentID = s.parentID
		created, err := s.store.Create(ctx, s.parentID, c)
		if err != nil {
			return fail(ItemResult{Op: OpCreate, DraftIndex: i,
				Err: fmt.Errorf("create adjustment: %w", err)})
		}
		results = append(results, ItemResult{Op: OpCreate, ConditionID: created.ID, DraftIndex: i})
	}
	for _, u := range plan.Updates {
		if _, err := s.store.Update(ctx, u.ID, u.Patch); err != nil {
			return fail(ItemResult{Op: OpUpdate, ConditionID: u.ID, DraftIndex: -1,
				Err: fmt.Errorf("update condition %s: %w", u.ID, err)})
		}
		results = append(results, ItemResult{Op: OpUpdate, ConditionID: u.ID, DraftIndex: -1})
	}

	s.logger.Info("cents adjustment applied",
		slog.String("parent_id", string(s.parentID)),
		slog.String("target", string(plan.Target)),
		slog.Int64("difference", int64(plan.Difference)),
	)
	return s.Reload(ctx)
}
