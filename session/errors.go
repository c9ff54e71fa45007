package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/ledger"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrPendingChangesExist is returned by operations that need a clean
	// session (auto-adjust) while edits or drafts are pending.
	ErrPendingChangesExist = errors.New("pending changes exist")

	// ErrPersistenceFailure is the sentinel behind every *CommitError.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrUnknownCondition is returned for an ID not in the committed set.
	ErrUnknownCondition = errors.New("unknown condition")

	// ErrDraftNotFound is returned for an out-of-range draft index.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrNotReconciled is returned when advancing a parent whose payment
	// plan does not add up to the reference total.
	ErrNotReconciled = errors.New("payment plan does not match reference total")

	// ErrStalePlan is returned when an adjustment plan was computed for a
	// difference that no longer holds.
	ErrStalePlan = errors.New("adjustment plan is stale")

	// ErrIncompleteOrder is returned when a reorder does not list every
	// committed condition exactly once.
	ErrIncompleteOrder = errors.New("reorder must list every condition once")

	// ErrFinalStage is returned when advancing a parent that is already
	// in its last stage.
	ErrFinalStage = errors.New("parent is in its final stage")
)

// =============================================================================
// COMMIT ERROR - Partial application report
// =============================================================================

// Operation is the kind of gateway call issued for one item.
type Operation string

const (
	OpUpdate Operation = "update"
	OpCreate Operation = "create"
)

// ItemResult reports the outcome of one gateway call.
type ItemResult struct {
	Op          Operation
	ConditionID condition.ID // for creates, the assigned ID on success
	DraftIndex  int          // position in the draft list when issued; -1 for updates
	Err         error
}

// CommitError is returned when a gateway call fails mid-batch. Applied
// items are already persisted and no longer pending; the failed item and
// everything after it remain pending so Commit can be retried.
type CommitError struct {
	Applied int
	Results []ItemResult
	Err     error
}

func (e *CommitError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "commit failed after %d applied operation(s)", e.Applied)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CommitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPersistenceFailure}
	}
	return []error{ErrPersistenceFailure, e.Err}
}

// Failed returns the result that stopped the batch, if any.
func (e *CommitError) Failed() *ItemResult {
	for i := range e.Results {
		if e.Results[i].Err != nil {
			return &e.Results[i]
		}
	}
	return nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input or a
// precondition the caller can fix.
func IsClientError(err error) bool {
	return condition.IsClientError(err) ||
		errors.Is(err, ErrPendingChangesExist) ||
		errors.Is(err, ErrNotReconciled) ||
		errors.Is(err, ErrStalePlan) ||
		errors.Is(err, ErrIncompleteOrder) ||
		errors.Is(err, ErrFinalStage) ||
		errors.Is(err, ledger.ErrNoAdjustableCondition) ||
		errors.Is(err, ledger.ErrNotCentsDiscrepancy)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return condition.IsNotFound(err) ||
		errors.Is(err, ErrUnknownCondition) ||
		errors.Is(err, ErrDraftNotFound)
}
