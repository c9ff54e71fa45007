/*
Package session implements the payment-condition editor session.

PURPOSE:
  A Session stages edits to persisted conditions and new drafts before an
  explicit batch commit. It owns its working set and recomputes the ledger
  snapshot synchronously on every mutation, so readers never see a stale
  total.

STATE:
  committed:  conditions as loaded from the store (originals, untouched by edits)
  edits:      per-ID Patch holding only the fields that differ from the original
  drafts:     new conditions without an ID, in insertion order
  dirty:      len(edits) > 0 || len(drafts) > 0

LIFECYCLE PER CONDITION:
  Draft → Committed → CommittedWithPendingEdit → Committed → Deleted

  Deletion of a committed condition is immediate (not staged).

UNIT VALUE SUGGESTION:
  Editing the count of a condition whose original unit value is zero and
  whose unit value was never set explicitly fills in
  remaining / count (floored to the cent), where remaining is the
  reference total minus every other condition. Setting the unit value
  explicitly turns the suggestion off for that condition.

CONCURRENCY:
  A Session is not safe for concurrent use. One session owns a parent's
  condition list at a time; callers serialize access.

USAGE:
  s, err := session.New(ctx, store, parentID, reference)
  s.EditField(id, condition.FieldCount, 5)
  i := s.AddDraft()
  s.EditDraft(i, condition.FieldUnitValue, "1500.00")
  if err := s.Commit(ctx); err != nil { ... }

SEE ALSO:
  - commit.go: Commit, Discard, Delete, Reorder
  - adjust.go: AutoAdjust and ApplyAdjustment
  - ledger/snapshot.go: ComputeSnapshot
*/
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/ledger"
	"github.com/warp/condition-engine/money"
)

// =============================================================================
// SESSION
// =============================================================================

type draft struct {
	cond         condition.Condition
	explicitUnit bool
}

// Session holds the working set of one parent's payment plan.
type Session struct {
	store     condition.Store
	parentID  condition.ParentID
	reference money.Cents

	committed    []condition.Condition
	edits        map[condition.ID]condition.Patch
	explicitUnit map[condition.ID]bool
	drafts       []draft

	snapshot ledger.Snapshot
	notifier *ledger.Notifier
	logger   *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithListener registers a listener for deduplicated snapshot changes.
func WithListener(l ledger.Listener) Option {
	return func(s *Session) { s.notifier = ledger.NewNotifier(l) }
}

// New loads the parent's conditions from store and opens a session.
func New(ctx context.Context, store condition.Store, parentID condition.ParentID, reference money.Cents, opts ...Option) (*Session, error) {
	s := &Session{
		store:        store,
		parentID:     parentID,
		reference:    reference,
		edits:        make(map[condition.ID]condition.Patch),
		explicitUnit: make(map[condition.ID]bool),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	committed, err := store.List(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("load conditions for %s: %w", parentID, err)
	}
	s.committed = committed
	s.recompute()
	return s, nil
}

// Reload replaces the committed set with the store's current list, for
// when the list changed outside this session. Pending edits for
// conditions that disappeared are dropped.
func (s *Session) Reload(ctx context.Context) error {
	committed, err := s.store.List(ctx, s.parentID)
	if err != nil {
		return fmt.Errorf("reload conditions for %s: %w", s.parentID, err)
	}
	s.committed = committed

	present := make(map[condition.ID]bool, len(committed))
	for _, c := range committed {
		present[c.ID] = true
	}
	for id := range s.edits {
		if !present[id] {
			delete(s.edits, id)
			delete(s.explicitUnit, id)
		}
	}
	s.recompute()
	return nil
}

// SetReference changes the reference total (owned by the parent).
func (s *Session) SetReference(total money.Cents) {
	s.reference = total
	s.recompute()
}

// =============================================================================
// READS
// =============================================================================

func (s *Session) ParentID() condition.ParentID { return s.parentID }
func (s *Session) Reference() money.Cents { return s.reference }

// Snapshot returns the snapshot as of the last mutation.
func (s *Session) Snapshot() ledger.Snapshot { return s.snapshot }

// IsDirty reports whether edits or drafts are pending.
func (s *Session) IsDirty() bool {
	return len(s.edits) > 0 || len(s.drafts) > 0
}

// CanAdvance reports whether the parent may move to its next stage:
// nothing pending and the plan reconciles exactly.
func (s *Session) CanAdvance() bool {
	return !s.IsDirty() && s.snapshot.IsValid()
}

// Committed returns copies of the persisted originals in display order.
func (s *Session) Committed() []condition.Condition {
	out := make([]condition.Condition, len(s.committed))
	copy(out, s.committed)
	return out
}

// Conditions returns the committed conditions with pending edits applied.
func (s *Session) Conditions() []condition.Condition {
	out := make([]condition.Condition, len(s.committed))
	for i, c := range s.committed {
		out[i] = s.overlay(c)
	}
	return out
}

// Effective returns the committed condition id with its pending edit applied.
func (s *Session) Effective(id condition.ID) (condition.Condition, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return condition.Condition{}, false
	}
	return s.overlay(s.committed[i]), true
}

// PendingEdit returns the pending patch for id.
func (s *Session) PendingEdit(id condition.ID) (condition.Patch, bool) {
	p, ok := s.edits[id]
	return p, ok
}

// ModifiedFields lists the fields of id that differ from the original.
func (s *Session) ModifiedFields(id condition.ID) []condition.Field {
	return s.edits[id].Fields()
}

// IsModified reports whether field f of id has a pending change.
func (s *Session) IsModified(id condition.ID, f condition.Field) bool {
	p, ok := s.edits[id]
	return ok && p.Has(f)
}

// Drafts returns copies of the pending drafts.
func (s *Session) Drafts() []condition.Condition {
	return s.draftConditions()
}

// =============================================================================
// EDITS
// =============================================================================

// EditField stages one field change on a committed condition.
// See condition.PatchOf for the accepted value types.
func (s *Session) EditField(id condition.ID, field condition.Field, value any) error {
	p, err := condition.PatchOf(field, value)
	if err != nil {
		return err
	}
	return s.Edit(id, p)
}

// Edit merges patch into the pending edit of a committed condition.
// Fields equal to the original are dropped from the overlay.
func (s *Session) Edit(id condition.ID, patch condition.Patch) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("edit %s: %w", id, ErrUnknownCondition)
	}
	original := s.committed[i]

	if patch.Has(condition.FieldUnitValue) {
		s.explicitUnit[id] = true
	}
	merged := s.edits[id].Merge(patch)

	if patch.Has(condition.FieldCount) && !patch.Has(condition.FieldUnitValue) &&
		!s.explicitUnit[id] && original.UnitValue.IsZero() {
		others := s.snapshot.ConfiguredTotal.Sub(s.overlay(original).EffectiveTotalCents(s.reference))
		merged = s.suggestUnit(merged, merged.Apply(original), others)
	}

	merged = merged.Diff(original)
	if merged.IsEmpty() {
		delete(s.edits, id)
	} else {
		s.edits[id] = merged
	}
	s.recompute()
	return nil
}

// suggestUnit fills the unit value from the unallocated balance, or
// clears a previous suggestion when the count drops to zero.
func (s *Session) suggestUnit(p condition.Patch, edited condition.Condition, others money.Cents) condition.Patch {
	if edited.Kind() != condition.ValueFixed {
		return p
	}
	if edited.Count <= 0 {
		return p.Without(condition.FieldUnitValue)
	}
	remaining := s.reference.Sub(others)
	if !remaining.IsPositive() {
		return p
	}
	unit := money.FromCents(remaining.Div(edited.Count))
	p.UnitValue = &unit
	return p
}

// =============================================================================
// DRAFTS
// =============================================================================

// AddDraft appends a zero-valued draft and returns its index.
func (s *Session) AddDraft() int {
	s.drafts = append(s.drafts, draft{cond: condition.Condition{
		ParentID:        s.parentID,
		InstallmentType: condition.InstallmentMonthly,
		ValueKind:       condition.ValueFixed,
		Settlement:      condition.SettlementCash,
		PaymentMethod:   condition.MethodBankSlip,
		Due:             condition.DuePolicy{IntervalDays: condition.DefaultIntervalDays},
	}})
	s.recompute()
	return len(s.drafts) - 1
}

// EditDraft sets one field of a draft.
func (s *Session) EditDraft(index int, field condition.Field, value any) error {
	p, err := condition.PatchOf(field, value)
	if err != nil {
		return err
	}
	return s.EditDraftPatch(index, p)
}

// EditDraftPatch applies patch to a draft, with the same unit value
// suggestion as Edit.
func (s *Session) EditDraftPatch(index int, patch condition.Patch) error {
	if index < 0 || index >= len(s.drafts) {
		return fmt.Errorf("edit draft %d: %w", index, ErrDraftNotFound)
	}
	d := &s.drafts[index]

	if patch.Has(condition.FieldUnitValue) {
		d.explicitUnit = true
	}
	if patch.Has(condition.FieldCount) && !patch.Has(condition.FieldUnitValue) && !d.explicitUnit {
		others := s.snapshot.ConfiguredTotal.Sub(d.cond.EffectiveTotalCents(s.reference))
		patch = s.suggestUnit(patch, patch.Apply(d.cond), others)
		if !patch.Has(condition.FieldUnitValue) && patch.Apply(d.cond).Count <= 0 {
			zero := money.FromCents(0)
			patch.UnitValue = &zero
		}
	}

	d.cond = patch.Apply(d.cond)
	s.recompute()
	return nil
}

// RemoveDraft drops a draft by position. Later drafts shift down.
func (s *Session) RemoveDraft(index int) error {
	if index < 0 || index >= len(s.drafts) {
		return fmt.Errorf("remove draft %d: %w", index, ErrDraftNotFound)
	}
	s.drafts = append(s.drafts[:index], s.drafts[index+1:]...)
	s.recompute()
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks every edited condition and draft. Returns nil or the
// joined *condition.ValidationError values.
func (s *Session) Validate() error {
	var errs []error
	for _, c := range s.committed {
		if _, ok := s.edits[c.ID]; !ok {
			continue
		}
		if err := s.overlay(c).Normalize().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for i, d := range s.drafts {
		if err := d.cond.Normalize().Validate(); err != nil {
			if ve, ok := err.(*condition.ValidationError); ok {
				ve.DraftIndex = i
			}
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Session) overlay(c condition.Condition) condition.Condition {
	if p, ok := s.edits[c.ID]; ok {
		return p.Apply(c)
	}
	return c
}

func (s *Session) indexOf(id condition.ID) int {
	if id == "" {
		return -1
	}
	for i, c := range s.committed {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) draftConditions() []condition.Condition {
	out := make([]condition.Condition, len(s.drafts))
	for i, d := range s.drafts {
		out[i] = d.cond
	}
	return out
}

func (s *Session) sortCommitted() {
	sort.SliceStable(s.committed, func(i, j int) bool {
		return s.committed[i].Order < s.committed[j].Order
	})
}

// recompute runs after every mutation.
func (s *Session) recompute() {
	s.snapshot = ledger.ComputeSnapshot(s.committed, s.edits, s.draftConditions(), s.reference)
	s.notifier.Observe(s.snapshot)
}
