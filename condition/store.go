/*
store.go - Persistence gateway for conditions and their parents

PURPOSE:
  Defines the interface between the reconciliation engine and whatever
  backend holds contracts, templates and proposals. The engine only needs
  CRUD on condition records plus a reorder call; parents are read for
  their reference total and moved through lifecycle stages.

KEY INTERFACES:
  Store:       Condition CRUD + reorder (the persistence gateway)
  ParentStore: Parent records (reference total, stage)

CONTRACT:
  - Create assigns ID and CreatedAt and returns the stored record.
  - Update merges the set Patch fields over the stored record.
  - Order is unique per parent: Create and Reorder reject collisions
    with ErrDuplicateOrder.
  - Unknown IDs return ErrConditionNotFound / ErrParentNotFound.
  - List returns conditions sorted by Order.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - condition/store/memory.go: In-memory for testing

SEE ALSO:
  - session/session.go: The only writer of conditions
*/
package condition

import (
	"context"

	"github.com/warp/condition-engine/money"
)

// =============================================================================
// STORE - Persistence gateway for conditions
// =============================================================================

// Position sets the order of one condition.
type Position struct {
	ID    ID
	Order int
}

// Store persists conditions.
type Store interface {
	// List returns the conditions of a parent sorted by Order.
	List(ctx context.Context, parentID ParentID) ([]Condition, error)

	// Create persists a new condition and returns it with ID assigned.
	Create(ctx context.Context, parentID ParentID, c Condition) (Condition, error)

	// Update merges patch over the stored condition and returns the result.
	Update(ctx context.Context, id ID, patch Patch) (Condition, error)

	// Delete removes a condition.
	Delete(ctx context.Context, id ID) error

	// Reorder sets the order of several siblings at once.
	Reorder(ctx context.Context, parentID ParentID, positions []Position) error
}

// =============================================================================
// PARENT STORE
// =============================================================================

// ParentStore persists the contracts, templates and proposals that own
// payment plans.
type ParentStore interface {
	// CreateParent inserts p. Returns ErrDuplicateParent when p.ID is taken.
	CreateParent(ctx context.Context, p Parent) (Parent, error)
	GetParent(ctx context.Context, id ParentID) (Parent, error)
	ListParents(ctx context.Context) ([]Parent, error)
	SetReferenceTotal(ctx context.Context, id ParentID, total money.Cents) error
	SetStage(ctx context.Context, id ParentID, stage Stage) error
}
