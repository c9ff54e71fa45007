package ledger

import (
	"sort"

	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/money"
)

// =============================================================================
// AUTO ADJUST - Close a cents discrepancy on the last cash condition
// =============================================================================

// AdjustmentDescription marks conditions created by AutoAdjustCents.
const AdjustmentDescription = "Ajuste de centavos"

// Update is one emitted change to an existing condition.
type Update struct {
	ID    condition.ID
	Patch condition.Patch
}

// AdjustmentPlan is the set of changes that brings the difference to zero.
type AdjustmentPlan struct {
	Difference money.Cents
	Target     condition.ID // condition absorbing the difference
	Updates    []Update
	Creates    []condition.Condition
}

// IsEmpty reports whether the plan changes nothing.
func (p AdjustmentPlan) IsEmpty() bool {
	return len(p.Updates) == 0 && len(p.Creates) == 0
}

// Apply returns committed with the plan's updates and creations applied.
// The input slice is not modified. Used to verify a plan before issuing it.
func (p AdjustmentPlan) Apply(committed []condition.Condition) []condition.Condition {
	out := make([]condition.Condition, 0, len(committed)+len(p.Creates))
	for _, c := range committed {
		for _, u := range p.Updates {
			if u.ID == c.ID {
				c = u.Patch.Apply(c)
			}
		}
		out = append(out, c)
	}
	return append(out, p.Creates...)
}

// AutoAdjustCents plans the change that absorbs difference into the last
// committed cash (or unset) condition in display order.
//
// ALGORITHM:
//  1. Pool: committed (non-draft) conditions with cash or unset settlement
//     and a positive count, visited from the highest Order down. Equal
//     orders keep slice order, so the later element is preferred.
//  2. A candidate whose installment would become zero or negative is skipped.
//  3. count == 1: update its unit value to unit cents + difference.
//  4. count > 1: decrement its count, and create a single-installment
//     cash condition worth unit cents + difference, placed after every
//     existing condition, inheriting payment method, correction and
//     cadence.
//
// Percentage-valued candidates are rewritten as fixed values, since the
// adjusted installment no longer corresponds to a clean percentage.
func AutoAdjustCents(committed []condition.Condition, difference, reference money.Cents) (AdjustmentPlan, error) {
	if !IsCentsDiscrepancy(difference) {
		return AdjustmentPlan{}, &DiscrepancyError{Difference: difference}
	}

	pool := candidatePool(committed)
	for i := len(pool) - 1; i >= 0; i-- {
		c := pool[i]
		adjusted := c.UnitCents(reference).Add(difference)
		if adjusted <= 0 {
			continue
		}
		plan := AdjustmentPlan{Difference: difference, Target: c.ID}
		if c.Count == 1 {
			plan.Updates = []Update{{ID: c.ID, Patch: unitPatch(c, adjusted)}}
			return plan, nil
		}
		plan.Updates = []Update{{ID: c.ID, Patch: decrementPatch(c)}}
		plan.Creates = []condition.Condition{splitOff(c, adjusted, condition.NextOrder(committed))}
		return plan, nil
	}
	return AdjustmentPlan{}, ErrNoAdjustableCondition
}

func candidatePool(committed []condition.Condition) []condition.Condition {
	var pool []condition.Condition
	for _, c := range committed {
		if c.IsDraft() || !c.Settlement.IsCash() || c.Count <= 0 {
			continue
		}
		pool = append(pool, c)
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Order < pool[j].Order })
	return pool
}

func unitPatch(c condition.Condition, unit money.Cents) condition.Patch {
	value := money.FromCents(unit)
	p := condition.Patch{UnitValue: &value}
	if c.Kind() != condition.ValueFixed {
		kind := condition.ValueFixed
		p.ValueKind = &kind
	}
	return p
}

func decrementPatch(c condition.Condition) condition.Patch {
	count := c.Count - 1
	p := condition.Patch{Count: &count}
	if c.Correction.GracePeriodInstallments > count {
		grace := count
		p.GracePeriod = &grace
	}
	return p
}

// splitOff builds the single adjusted installment taken from c. With an
// explicit schedule it falls on the date of c's last installment.
func splitOff(c condition.Condition, unit money.Cents, order int) condition.Condition {
	// The split-off installment is c's last one: exempt only if all of c was.
	correction := c.Correction
	correction.GracePeriodInstallments = 0
	if c.Correction.GracePeriodInstallments >= c.Count {
		correction.GracePeriodInstallments = 1
	}

	due := condition.DuePolicy{Event: c.Due.Event, IntervalDays: c.IntervalDays()}
	if c.UsesExplicitDate() && c.Due.FirstDueDate != nil {
		last := c.Due.FirstDueDate.AddDate(0, 0, (c.Count-1)*c.IntervalDays())
		due.FirstDueDate = &last
	}

	return condition.Condition{
		ParentID:        c.ParentID,
		InstallmentType: c.InstallmentType,
		Count:           1,
		UnitValue:       money.FromCents(unit),
		ValueKind:       condition.ValueFixed,
		Settlement:      condition.SettlementCash,
		PaymentMethod:   c.PaymentMethod,
		Correction:      correction,
		Due:             due,
		Description:     AdjustmentDescription,
		Order:           order,
	}
}
