/*
sessions.go - In-memory registry of editor sessions

PURPOSE:
  The HTTP API is stateless per request but an editor session is not: it
  holds staged edits and drafts between calls. Sessions keeps one
  session.Session per parent and serializes access to it.

LOCKING:
  Sessions.mu guards the map only. Each entry carries its own mutex, held
  for the whole callback, so requests for different parents never wait on
  each other.

EVICTION:
  SessionJanitor calls Evict periodically. Idle sessions are dropped even
  when dirty; staged edits are lost and logged.
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/session"
)

type openSession struct {
	mu       sync.Mutex
	s        *session.Session
	lastUsed time.Time // guarded by Sessions.mu
}

// Sessions is the registry of open editor sessions.
type Sessions struct {
	store   Backend
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	open map[condition.ParentID]*openSession
}

// NewSessions creates an empty registry over store.
func NewSessions(store Backend, metrics *Metrics, logger *slog.Logger) *Sessions {
	return &Sessions{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		open:    make(map[condition.ParentID]*openSession),
	}
}

// With runs fn with the session of parentID, opening it on first use. The
// parent's current reference total is pushed into the session every time.
func (r *Sessions) With(ctx context.Context, parentID condition.ParentID, fn func(*session.Session) error) error {
	p, err := r.store.GetParent(ctx, parentID)
	if err != nil {
		return err
	}

	entry, err := r.entry(ctx, p)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.s.SetReference(p.ReferenceTotal)
	return fn(entry.s)
}

func (r *Sessions) entry(ctx context.Context, p condition.Parent) (*openSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Touched under r.mu so Evict cannot drop the entry between here and
	// the caller locking it.
	if e, ok := r.open[p.ID]; ok {
		e.lastUsed = r.now()
		return e, nil
	}

	opts := []session.Option{session.WithLogger(r.logger)}
	if r.metrics != nil {
		opts = append(opts, session.WithListener(r.metrics.observe))
	}
	s, err := session.New(ctx, r.store, p.ID, p.ReferenceTotal, opts...)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	e := &openSession{s: s, lastUsed: r.now()}
	r.open[p.ID] = e
	r.gauge()
	return e, nil
}

// Drop forgets the session of parentID, if any.
func (r *Sessions) Drop(parentID condition.ParentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, parentID)
	r.gauge()
}

// DropAll forgets every session.
func (r *Sessions) DropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = make(map[condition.ParentID]*openSession)
	r.gauge()
}

// Evict drops sessions idle for longer than ttl and returns how many were
// dropped. Sessions busy with a request are skipped.
func (r *Sessions) Evict(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	evicted := 0
	for id, e := range r.open {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastUsed.Before(cutoff) {
			if e.s.IsDirty() {
				r.logger.Warn("evicting session with pending changes",
					slog.String("parent_id", string(id)),
					slog.Int("drafts", len(e.s.Drafts())),
				)
			}
			delete(r.open, id)
			evicted++
		}
		e.mu.Unlock()
	}
	r.gauge()
	return evicted
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

func (r *Sessions) gauge() {
	if r.metrics != nil {
		r.metrics.OpenSessions.Set(float64(len(r.open)))
	}
}
