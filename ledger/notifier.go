package ledger

// =============================================================================
// NOTIFIER - Deduplicated snapshot change notifications
// =============================================================================

// Listener receives snapshots that differ from the last one delivered.
type Listener func(Snapshot)

// Notifier forwards a snapshot to its listener only when the plan's
// validity or its difference changed since the last notification. The
// first observed snapshot is always forwarded.
//
// Not safe for concurrent use; it lives inside a single session.
type Notifier struct {
	listener  Listener
	last      Snapshot
	delivered bool
}

// NewNotifier wraps listener. A nil listener makes Observe a no-op.
func NewNotifier(listener Listener) *Notifier {
	return &Notifier{listener: listener}
}

// Observe reports s and returns true when the listener was called.
func (n *Notifier) Observe(s Snapshot) bool {
	if n == nil || n.listener == nil {
		return false
	}
	if n.delivered && n.last.IsValid() == s.IsValid() && n.last.Difference == s.Difference {
		return false
	}
	n.last = s
	n.delivered = true
	n.listener(s)
	return true
}

// Reset forgets the last delivered snapshot.
func (n *Notifier) Reset() {
	if n == nil {
		return
	}
	n.delivered = false
	n.last = Snapshot{}
}
