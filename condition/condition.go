package condition

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/condition-engine/money"
)

// =============================================================================
// EFFECTIVE VALUES
// =============================================================================

// Kind returns the value kind, defaulting to fixed.
func (c Condition) Kind() ValueKind {
	if c.ValueKind == "" {
		return ValueFixed
	}
	return c.ValueKind
}

// UnitCents is the value of one installment in cents.
//
//	fixed:      ToCents(UnitValue)
//	percentage: ToCents(round2(reference × UnitValue / 100))
//
// Values past money.MaxAmount saturate.
func (c Condition) UnitCents(reference money.Cents) money.Cents {
	switch c.Kind() {
	case ValuePercentage:
		share := money.FromCents(reference).Mul(c.UnitValue).Shift(-2)
		return money.Bounded(share)
	default:
		return money.Bounded(c.UnitValue)
	}
}

// EffectiveTotalCents is Count × UnitCents. Negative counts contribute zero.
// The product is taken in decimal and saturates past money.MaxAmount, so an
// oversized condition always shows up as a difference.
func (c Condition) EffectiveTotalCents(reference money.Cents) money.Cents {
	if c.Count <= 0 {
		return 0
	}
	unit := c.UnitCents(reference).Decimal()
	return money.Bounded(unit.Mul(decimal.NewFromInt(int64(c.Count))))
}

// IntervalDays returns the cadence to use, falling back to the type default.
func (c Condition) IntervalDays() int {
	if c.Due.IntervalDays > 0 {
		return c.Due.IntervalDays
	}
	return c.InstallmentType.DefaultIntervalDays()
}

// UsesExplicitDate reports whether FirstDueDate drives the schedule.
// Any event other than custom takes precedence over an explicit date.
func (c Condition) UsesExplicitDate() bool {
	return c.Due.Event == EventNone || c.Due.Event == EventCustom
}

// =============================================================================
// NORMALIZATION & VALIDATION
// =============================================================================

// Normalize returns c with fields that do not apply cleared and
// defaults filled in:
//   - non-cash settlements drop PaymentMethod
//   - a non-custom event drops FirstDueDate
//   - zero IntervalDays takes the installment type's cadence
//   - empty ValueKind becomes fixed
func (c Condition) Normalize() Condition {
	if !c.Settlement.IsCash() {
		c.PaymentMethod = MethodUnset
	}
	if !c.UsesExplicitDate() {
		c.Due.FirstDueDate = nil
	}
	if c.Due.IntervalDays == 0 {
		c.Due.IntervalDays = c.InstallmentType.DefaultIntervalDays()
	}
	c.ValueKind = c.Kind()
	return c
}

// Upper bounds on what a single condition may describe.
const (
	MaxCount        = 600  // fifty years of monthly installments
	MaxIntervalDays = 3660 // ten years between installments
)

var maxPercent = decimal.NewFromInt(100)

// Validate checks the business rules a condition must satisfy before it is
// accepted into the committed set. Returns nil or a *ValidationError.
func (c Condition) Validate() error {
	var errs []FieldError
	add := func(f Field, code, msg string) {
		errs = append(errs, FieldError{Field: f, Code: code, Message: msg})
	}

	if !c.InstallmentType.Valid() {
		add(FieldInstallmentType, "invalid_value", "unknown installment type")
	}
	if c.Count < 0 {
		add(FieldCount, "negative", "count must not be negative")
	} else if c.Count > MaxCount {
		add(FieldCount, "out_of_range", fmt.Sprintf("count must not exceed %d", MaxCount))
	}
	if c.ValueKind != "" && !c.ValueKind.Valid() {
		add(FieldValueKind, "invalid_value", "unknown value kind")
	}

	switch {
	case c.UnitValue.IsNegative():
		add(FieldUnitValue, "negative", "unit value must not be negative")
	case c.Count > 0 && c.UnitValue.IsZero():
		add(FieldUnitValue, "required", "unit value is required when count is positive")
	case c.Kind() == ValuePercentage && c.UnitValue.GreaterThan(maxPercent):
		add(FieldUnitValue, "out_of_range", "percentage must not exceed 100")
	case c.Kind() == ValueFixed && !c.fixedTotalInRange():
		add(FieldUnitValue, "out_of_range", "total must not exceed "+money.FormatBRL(money.MaxAmount))
	}

	if !c.Settlement.Valid() {
		add(FieldSettlement, "invalid_value", "unknown settlement kind")
	} else if !c.Settlement.IsCash() && (c.Asset == nil || c.Asset.Description == "") {
		add(FieldAsset, "required", "asset description is required for non-cash settlement")
	}
	if c.Settlement.IsCash() && !c.PaymentMethod.Valid() {
		add(FieldPaymentMethod, "invalid_value", "unknown payment method")
	}

	if c.Correction.Enabled && c.Correction.Index == "" {
		add(FieldCorrectionIndex, "required", "correction index is required when correction is enabled")
	}
	if c.Correction.GracePeriodInstallments < 0 {
		add(FieldGracePeriod, "negative", "grace period must not be negative")
	} else if c.Count >= 0 && c.Correction.GracePeriodInstallments > c.Count {
		add(FieldGracePeriod, "out_of_range", "grace period exceeds installment count")
	}

	if !c.Due.Event.Valid() {
		add(FieldEvent, "invalid_value", "unknown trigger event")
	} else if c.Due.Event == EventCustom && c.Due.FirstDueDate == nil {
		add(FieldFirstDueDate, "required", "custom event requires a first due date")
	}
	if c.Due.IntervalDays < 0 {
		add(FieldIntervalDays, "negative", "interval days must not be negative")
	} else if c.Due.IntervalDays > MaxIntervalDays {
		add(FieldIntervalDays, "out_of_range", fmt.Sprintf("interval days must not exceed %d", MaxIntervalDays))
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{ConditionID: c.ID, Fields: errs}
}

// fixedTotalInRange checks Count × UnitValue exactly, before any rounding
// or saturation. A zero count still bounds the unit value itself.
func (c Condition) fixedTotalInRange() bool {
	n := int64(max(c.Count, 1))
	return money.Bounded(c.UnitValue.Mul(decimal.NewFromInt(n))).InRange()
}

// NextOrder is the order that places a new condition after all of
// conditions: 0 for an empty list, otherwise the highest order plus one.
func NextOrder(conditions []Condition) int {
	next := 0
	for i, c := range conditions {
		if i == 0 || c.Order+1 > next {
			next = c.Order + 1
		}
	}
	return next
}
