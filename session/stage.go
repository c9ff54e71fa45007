package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/condition-engine/condition"
)

// Advance moves the parent to its next lifecycle stage. The session must
// be clean and the plan must reconcile exactly; the stage itself lives in
// parents.
func (s *Session) Advance(ctx context.Context, parents condition.ParentStore) (condition.Stage, error) {
	if s.IsDirty() {
		return "", ErrPendingChangesExist
	}
	if !s.snapshot.IsValid() {
		return "", fmt.Errorf("difference of %s: %w", s.snapshot.Difference, ErrNotReconciled)
	}

	p, err := parents.GetParent(ctx, s.parentID)
	if err != nil {
		return "", fmt.Errorf("load parent %s: %w", s.parentID, err)
	}
	next, ok := p.Stage.Next()
	if !ok {
		return p.Stage, fmt.Errorf("parent %s is %s: %w", s.parentID, p.Stage, ErrFinalStage)
	}
	if err := parents.SetStage(ctx, s.parentID, next); err != nil {
		return p.Stage, fmt.Errorf("set stage of %s: %w", s.parentID, err)
	}

	s.logger.Info("parent advanced",
		slog.String("parent_id", string(s.parentID)),
		slog.String("from", string(p.Stage)),
		slog.String("to", string(next)),
	)
	return next, nil
}
