package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/warp/condition-engine/condition"
)

// =============================================================================
// COMMIT - Sequential batch persistence
// =============================================================================

// Commit persists pending edits, then drafts, one gateway call at a time.
//
// Validation runs first; any *condition.ValidationError aborts before a
// single call is made. Updates are issued in display order, each merging
// the edited fields over the stored record. Drafts are created with
// order = next free order + draft index.
//
// Each successful call moves its item out of the pending state. On the
// first failure Commit stops and returns a *CommitError; the failed item
// and everything after it stay pending, so calling Commit again retries
// exactly the remainder.
func (s *Session) Commit(ctx context.Context) error {
	if !s.IsDirty() {
		return nil
	}
	if err := s.Validate(); err != nil {
		return err
	}
	defer s.recompute()

	var results []ItemResult
	fail := func(r ItemResult) error {
		results = append(results, r)
		applied := len(results) - 1
		s.logger.Warn("commit aborted",
			slog.String("parent_id", string(s.parentID)),
			slog.String("op", string(r.Op)),
			slog.String("condition_id", string(r.ConditionID)),
			slog.Int("applied", applied),
			slog.Any("error", r.Err),
		)
		return &CommitError{Applied: applied, Results: results, Err: r.Err}
	}

	for _, id := range s.editOrder() {
		i := s.indexOf(id)
		original := s.committed[i]
		patch := condition.Changes(original, s.edits[id].Apply(original).Normalize())

		updated, err := s.store.Update(ctx, id, patch)
		if err != nil {
			return fail(ItemResult{Op: OpUpdate, ConditionID: id, DraftIndex: -1,
				Err: fmt.Errorf("update condition %s: %w", id, err)})
		}
		s.committed[i] = updated
		delete(s.edits, id)
		delete(s.explicitUnit, id)
		results = append(results, ItemResult{Op: OpUpdate, ConditionID: id, DraftIndex: -1})
	}

	base := condition.NextOrder(s.committed)
	issued := 0
	for len(s.drafts) > 0 {
		c := s.drafts[0].cond.Normalize()
		c.ParentID = s.parentID
		c.Order = base + issued

		created, err := s.store.Create(ctx, s.parentID, c)
		if err != nil {
			return fail(ItemResult{Op: OpCreate, DraftIndex: issued,
				Err: fmt.Errorf("create condition: %w", err)})
		}
		s.committed = append(s.committed, created)
		s.drafts = s.drafts[1:]
		results = append(results, ItemResult{Op: OpCreate, ConditionID: created.ID, DraftIndex: issued})
		issued++
	}
	s.drafts = nil
	s.sortCommitted()

	s.logger.Info("conditions committed",
		slog.String("parent_id", string(s.parentID)),
		slog.Int("operations", len(results)),
	)
	return nil
}

// editOrder returns the edited IDs in display order.
func (s *Session) editOrder() []condition.ID {
	ids := make([]condition.ID, 0, len(s.edits))
	for _, c := range s.committed {
		if _, ok := s.edits[c.ID]; ok {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Discard drops every pending edit and draft without touching the store.
func (s *Session) Discard() {
	s.edits = make(map[condition.ID]condition.Patch)
	s.explicitUnit = make(map[condition.ID]bool)
	s.drafts = nil
	s.recompute()
}

// =============================================================================
// IMMEDIATE OPERATIONS - Not staged
// =============================================================================

// Delete removes a committed condition right away, along with any pending
// edit for it. Confirmation is the caller's concern.
func (s *Session) Delete(ctx context.Context, id condition.ID) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrUnknownCondition)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete condition %s: %w", id, err)
	}

	s.committed = append(s.committed[:i], s.committed[i+1:]...)
	delete(s.edits, id)
	delete(s.explicitUnit, id)
	s.recompute()

	s.logger.Info("condition deleted",
		slog.String("parent_id", string(s.parentID)),
		slog.String("condition_id", string(id)),
	)
	return nil
}

// Reorder sets the display order of the committed conditions. ids must
// list every committed condition exactly once; the first gets order 0.
func (s *Session) Reorder(ctx context.Context, ids []condition.ID) error {
	if len(ids) != len(s.committed) {
		return ErrIncompleteOrder
	}
	positions := make([]condition.Position, len(ids))
	seen := make(map[condition.ID]bool, len(ids))
	for order, id := range ids {
		if seen[id] || s.indexOf(id) < 0 {
			return ErrIncompleteOrder
		}
		seen[id] = true
		positions[order] = condition.Position{ID: id, Order: order}
	}

	if err := s.store.Reorder(ctx, s.parentID, positions); err != nil {
		return fmt.Errorf("reorder conditions for %s: %w", s.parentID, err)
	}
	for _, p := range positions {
		s.committed[s.indexOf(p.ID)].Order = p.Order
	}
	s.sortCommitted()
	s.recompute()
	return nil
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		sort.SliceStable(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return errors.Join(errs...)
	}
}
