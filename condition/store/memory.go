// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/money"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements condition.Store and condition.ParentStore.
type Memory struct {
	mu         sync.RWMutex
	conditions map[condition.ID]condition.Condition
	parents    map[condition.ParentID]condition.Parent
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		conditions: make(map[condition.ID]condition.Condition),
		parents:    make(map[condition.ParentID]condition.Parent),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) List(_ context.Context, parentID condition.ParentID) ([]condition.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []condition.Condition
	for _, c := range m.conditions {
		if c.ParentID == parentID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) Create(_ context.Context, parentID condition.ParentID, c condition.Condition) (condition.Condition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.orderTakenLocked(parentID, c.Order, "") {
		return condition.Condition{}, condition.ErrDuplicateOrder
	}

	c.ID = condition.ID(uuid.NewString())
	c.ParentID = parentID
	c.CreatedAt = m.now()
	m.conditions[c.ID] = c
	return c, nil
}

func (m *Memory) Update(_ context.Context, id condition.ID, patch condition.Patch) (condition.Condition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conditions[id]
	if !ok {
		return condition.Condition{}, condition.ErrConditionNotFound
	}
	c = patch.Apply(c)
	m.conditions[id] = c
	return c, nil
}

func (m *Memory) Delete(_ context.Context, id condition.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conditions[id]; !ok {
		return condition.ErrConditionNotFound
	}
	delete(m.conditions, id)
	return nil
}

// Reorder applies all positions or none.
func (m *Memory) Reorder(_ context.Context, parentID condition.ParentID, positions []condition.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[condition.ID]int)
	for _, c := range m.conditions {
		if c.ParentID == parentID {
			next[c.ID] = c.Order
		}
	}
	for _, p := range positions {
		if _, ok := next[p.ID]; !ok {
			return condition.ErrConditionNotFound
		}
		next[p.ID] = p.Order
	}

	seen := make(map[int]bool, len(next))
	for _, order := range next {
		if seen[order] {
			return condition.ErrDuplicateOrder
		}
		seen[order] = true
	}

	for id, order := range next {
		c := m.conditions[id]
		c.Order = order
		m.conditions[id] = c
	}
	return nil
}

func (m *Memory) orderTakenLocked(parentID condition.ParentID, order int, except condition.ID) bool {
	for _, c := range m.conditions {
		if c.ParentID == parentID && c.Order == order && c.ID != except {
			return true
		}
	}
	return false
}

// =============================================================================
// PARENTS
// =============================================================================

// CreateParent inserts a new parent. An empty ID gets a new UUID.
func (m *Memory) CreateParent(_ context.Context, p condition.Parent) (condition.Parent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if p.ID == "" {
		p.ID = condition.ParentID(uuid.NewString())
	}
	if _, ok := m.parents[p.ID]; ok {
		return condition.Parent{}, fmt.Errorf("parent %s: %w", p.ID, condition.ErrDuplicateParent)
	}
	p.CreatedAt = now
	if p.Stage == "" {
		p.Stage = condition.StageDraft
	}
	p.UpdatedAt = now
	m.parents[p.ID] = p
	return p, nil
}

func (m *Memory) GetParent(_ context.Context, id condition.ParentID) (condition.Parent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.parents[id]
	if !ok {
		return condition.Parent{}, condition.ErrParentNotFound
	}
	return p, nil
}

func (m *Memory) ListParents(_ context.Context) ([]condition.Parent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]condition.Parent, 0, len(m.parents))
	for _, p := range m.parents {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SetReferenceTotal(_ context.Context, id condition.ParentID, total money.Cents) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.parents[id]
	if !ok {
		return condition.ErrParentNotFound
	}
	p.ReferenceTotal = total
	p.UpdatedAt = m.now()
	m.parents[id] = p
	return nil
}

func (m *Memory) SetStage(_ context.Context, id condition.ParentID, stage condition.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.parents[id]
	if !ok {
		return condition.ErrParentNotFound
	}
	p.Stage = stage
	p.UpdatedAt = m.now()
	m.parents[id] = p
	return nil
}

// Reset clears all conditions and parents.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conditions = make(map[condition.ID]condition.Condition)
	m.parents = make(map[condition.ParentID]condition.Parent)
	return nil
}
