/*
Package ledger is the payment-condition reconciliation engine.

PURPOSE:
  Aggregates a working set of conditions (committed, committed with
  pending edits, and drafts) against the parent's reference total, and
  computes the cents-level adjustment that closes a small gap.

KEY INSIGHT:
  Configured totals are never stored. They are recomputed from the
  conditions on every change, in integer cents, by a pure function. Two
  calls with the same inputs produce the same Snapshot.

SNAPSHOT FIELDS:
  ReferenceTotal:    What the parent costs (read-only here)
  ConfiguredTotal:   Σ count × unit cents over all active conditions
  PercentConfigured: min(configured / reference × 100, 100); 0 if reference is 0
  Difference:        reference - configured (signed)

GATE:
  Difference == 0 is the only state in which the parent may advance to
  its next lifecycle stage (e.g. "sent for signature").

EXAMPLE:
  reference = R$ 10.000,00, one condition 3 × R$ 3.333,34
  configured = 1000002, difference = -2 → cents discrepancy

SEE ALSO:
  - adjust.go: AutoAdjustCents
  - notifier.go: Deduplicated change notifications
  - session/session.go: Holds the working set
*/
package ledger

import (
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/money"
)

// =============================================================================
// SNAPSHOT - Derived reconciliation state
// =============================================================================

// Snapshot is the derived reconciliation state of a payment plan.
type Snapshot struct {
	ReferenceTotal    money.Cents
	ConfiguredTotal   money.Cents
	PercentConfigured float64
	Difference        money.Cents
}

// IsValid reports whether the plan reconciles exactly.
func (s Snapshot) IsValid() bool {
	return s.Difference == 0
}

// IsCentsDiscrepancy reports whether the gap can be auto-adjusted.
func (s Snapshot) IsCentsDiscrepancy() bool {
	return IsCentsDiscrepancy(s.Difference)
}

// Remaining is the positive part of the difference: what is still
// unallocated. Zero when the plan is complete or overshoots.
func (s Snapshot) Remaining() money.Cents {
	if s.Difference > 0 {
		return s.Difference
	}
	return 0
}

// CentsWindow is the largest gap, in cents, that auto-adjust will close.
const CentsWindow money.Cents = money.PerUnit

// IsCentsDiscrepancy is true when 0 < |difference| <= one currency unit.
func IsCentsDiscrepancy(difference money.Cents) bool {
	abs := difference.Abs()
	return abs > 0 && abs <= CentsWindow
}

// =============================================================================
// COMPUTE
// =============================================================================

// ComputeSnapshot aggregates committed conditions (with any pending edit
// overlay applied) and drafts against the reference total. Pure.
func ComputeSnapshot(
	committed []condition.Condition,
	edits map[condition.ID]condition.Patch,
	drafts []condition.Condition,
	reference money.Cents,
) Snapshot {
	var configured money.Cents
	for _, c := range committed {
		if p, ok := edits[c.ID]; ok {
			c = p.Apply(c)
		}
		configured = configured.Add(c.EffectiveTotalCents(reference))
	}
	for _, d := range drafts {
		configured = configured.Add(d.EffectiveTotalCents(reference))
	}
	return NewSnapshot(configured, reference)
}

// NewSnapshot derives percentage and difference from the two totals.
func NewSnapshot(configured, reference money.Cents) Snapshot {
	return Snapshot{
		ReferenceTotal:    reference,
		ConfiguredTotal:   configured,
		PercentConfigured: percentOf(configured, reference),
		Difference:        reference.Sub(configured),
	}
}

func percentOf(configured, reference money.Cents) float64 {
	if reference <= 0 {
		return 0
	}
	pct := float64(configured) / float64(reference) * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// TotalOf sums the effective totals of a condition list.
func TotalOf(conditions []condition.Condition, reference money.Cents) money.Cents {
	var total money.Cents
	for _, c := range conditions {
		total = total.Add(c.EffectiveTotalCents(reference))
	}
	return total
}
