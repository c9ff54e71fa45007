package condition

import (
	"time"

	"github.com/warp/condition-engine/money"
)

// =============================================================================
// SCHEDULE - Individual installments of a condition
// =============================================================================

// Installment is one payment produced by expanding a condition.
type Installment struct {
	Number    int // 1-based
	DueDate   *time.Time
	Amount    money.Cents
	Corrected bool // monetary correction applies
}

// EventDates maps contract milestones to the dates they happened or are
// scheduled. Missing events leave event-triggered due dates unresolved.
type EventDates map[TriggerEvent]time.Time

// Schedule expands c into its installments.
//
// The first due date is the event date when a non-custom event is set,
// otherwise FirstDueDate. Each following installment falls IntervalDays
// later. Installments after the grace period carry monetary correction
// when correction is enabled. Counts past MaxCount expand to nothing.
func Schedule(c Condition, reference money.Cents, events EventDates) []Installment {
	if c.Count <= 0 || c.Count > MaxCount {
		return nil
	}

	var first *time.Time
	if c.UsesExplicitDate() {
		first = c.Due.FirstDueDate
	} else if d, ok := events[c.Due.Event]; ok {
		first = &d
	}

	interval := c.IntervalDays()
	unit := c.UnitCents(reference)
	out := make([]Installment, c.Count)
	for i := range out {
		n := i + 1
		out[i] = Installment{
			Number:    n,
			Amount:    unit,
			Corrected: c.Correction.Enabled && n > c.Correction.GracePeriodInstallments,
		}
		if first != nil {
			due := first.AddDate(0, 0, i*interval)
			out[i].DueDate = &due
		}
	}
	return out
}
