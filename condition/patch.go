package condition

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FIELD - Named editable attribute
// =============================================================================

// Field identifies one editable attribute of a Condition.
type Field string

const (
	FieldInstallmentType   Field = "installment_type"
	FieldCount             Field = "count"
	FieldUnitValue         Field = "unit_value"
	FieldValueKind         Field = "value_kind"
	FieldSettlement        Field = "settlement"
	FieldPaymentMethod     Field = "payment_method"
	FieldAsset             Field = "asset"
	FieldCorrectionEnabled Field = "correction_enabled"
	FieldCorrectionIndex   Field = "correction_index"
	FieldGracePeriod       Field = "grace_period_installments"
	FieldFirstDueDate      Field = "first_due_date"
	FieldEvent             Field = "event"
	FieldIntervalDays      Field = "interval_days"
	FieldDescription       Field = "description"
)

// Fields lists every editable field in display order.
var Fields = []Field{
	FieldInstallmentType,
	FieldCount,
	FieldUnitValue,
	FieldValueKind,
	FieldSettlement,
	FieldPaymentMethod,
	FieldAsset,
	FieldCorrectionEnabled,
	FieldCorrectionIndex,
	FieldGracePeriod,
	FieldFirstDueDate,
	FieldEvent,
	FieldIntervalDays,
	FieldDescription,
}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// =============================================================================
// PATCH - Partial condition (pending edit overlay)
// =============================================================================

// Patch is a partial Condition. A nil field is unedited.
//
// FirstDueDate pointing at the zero time clears the date, and Asset
// pointing at an empty Asset clears the asset.
type Patch struct {
	InstallmentType   *InstallmentType
	Count             *int
	UnitValue         *decimal.Decimal
	ValueKind         *ValueKind
	Settlement        *SettlementKind
	PaymentMethod     *PaymentMethod
	Asset             *Asset
	CorrectionEnabled *bool
	CorrectionIndex   *string
	GracePeriod       *int
	FirstDueDate      *time.Time
	Event             *TriggerEvent
	IntervalDays      *int
	Description       *string
}

// Apply overlays the set fields of p onto c. Unset fields keep c's values.
func (p Patch) Apply(c Condition) Condition {
	if p.InstallmentType != nil {
		c.InstallmentType = *p.InstallmentType
	}
	if p.Count != nil {
		c.Count = *p.Count
	}
	if p.UnitValue != nil {
		c.UnitValue = *p.UnitValue
	}
	if p.ValueKind != nil {
		c.ValueKind = *p.ValueKind
	}
	if p.Settlement != nil {
		c.Settlement = *p.Settlement
	}
	if p.PaymentMethod != nil {
		c.PaymentMethod = *p.PaymentMethod
	}
	if p.Asset != nil {
		if p.Asset.isEmpty() {
			c.Asset = nil
		} else {
			a := *p.Asset
			c.Asset = &a
		}
	}
	if p.CorrectionEnabled != nil {
		c.Correction.Enabled = *p.CorrectionEnabled
	}
	if p.CorrectionIndex != nil {
		c.Correction.Index = *p.CorrectionIndex
	}
	if p.GracePeriod != nil {
		c.Correction.GracePeriodInstallments = *p.GracePeriod
	}
	if p.FirstDueDate != nil {
		if p.FirstDueDate.IsZero() {
			c.Due.FirstDueDate = nil
		} else {
			d := *p.FirstDueDate
			c.Due.FirstDueDate = &d
		}
	}
	if p.Event != nil {
		c.Due.Event = *p.Event
	}
	if p.IntervalDays != nil {
		c.Due.IntervalDays = *p.IntervalDays
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	return c
}

// Has reports whether field f is set.
func (p Patch) Has(f Field) bool {
	switch f {
	case FieldInstallmentType:
		return p.InstallmentType != nil
	case FieldCount:
		return p.Count != nil
	case FieldUnitValue:
		return p.UnitValue != nil
	case FieldValueKind:
		return p.ValueKind != nil
	case FieldSettlement:
		return p.Settlement != nil
	case FieldPaymentMethod:
		return p.PaymentMethod != nil
	case FieldAsset:
		return p.Asset != nil
	case FieldCorrectionEnabled:
		return p.CorrectionEnabled != nil
	case FieldCorrectionIndex:
		return p.CorrectionIndex != nil
	case FieldGracePeriod:
		return p.GracePeriod != nil
	case FieldFirstDueDate:
		return p.FirstDueDate != nil
	case FieldEvent:
		return p.Event != nil
	case FieldIntervalDays:
		return p.IntervalDays != nil
	case FieldDescription:
		return p.Description != nil
	}
	return false
}

// Fields returns the set fields in display order.
func (p Patch) Fields() []Field {
	var out []Field
	for _, f := range Fields {
		if p.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// IsEmpty reports whether no field is set.
func (p Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Without returns a copy of p with field f unset.
func (p Patch) Without(f Field) Patch {
	switch f {
	case FieldInstallmentType:
		p.InstallmentType = nil
	case FieldCount:
		p.Count = nil
	case FieldUnitValue:
		p.UnitValue = nil
	case FieldValueKind:
		p.ValueKind = nil
	case FieldSettlement:
		p.Settlement = nil
	case FieldPaymentMethod:
		p.PaymentMethod = nil
	case FieldAsset:
		p.Asset = nil
	case FieldCorrectionEnabled:
		p.CorrectionEnabled = nil
	case FieldCorrectionIndex:
		p.CorrectionIndex = nil
	case FieldGracePeriod:
		p.GracePeriod = nil
	case FieldFirstDueDate:
		p.FirstDueDate = nil
	case FieldEvent:
		p.Event = nil
	case FieldIntervalDays:
		p.IntervalDays = nil
	case FieldDescription:
		p.Description = nil
	}
	return p
}

// Merge returns p with every field set in o overriding p's.
func (p Patch) Merge(o Patch) Patch {
	if o.InstallmentType != nil {
		p.InstallmentType = o.InstallmentType
	}
	if o.Count != nil {
		p.Count = o.Count
	}
	if o.UnitValue != nil {
		p.UnitValue = o.UnitValue
	}
	if o.ValueKind != nil {
		p.ValueKind = o.ValueKind
	}
	if o.Settlement != nil {
		p.Settlement = o.Settlement
	}
	if o.PaymentMethod != nil {
		p.PaymentMethod = o.PaymentMethod
	}
	if o.Asset != nil {
		p.Asset = o.Asset
	}
	if o.CorrectionEnabled != nil {
		p.CorrectionEnabled = o.CorrectionEnabled
	}
	if o.CorrectionIndex != nil {
		p.CorrectionIndex = o.CorrectionIndex
	}
	if o.GracePeriod != nil {
		p.GracePeriod = o.GracePeriod
	}
	if o.FirstDueDate != nil {
		p.FirstDueDate = o.FirstDueDate
	}
	if o.Event != nil {
		p.Event = o.Event
	}
	if o.IntervalDays != nil {
		p.IntervalDays = o.IntervalDays
	}
	if o.Description != nil {
		p.Description = o.Description
	}
	return p
}

// Diff drops every field of p whose value already equals original's.
// The result only records real changes.
func (p Patch) Diff(original Condition) Patch {
	edited := p.Apply(original)
	for _, f := range p.Fields() {
		if fieldEqual(f, original, edited) {
			p = p.Without(f)
		}
	}
	return p
}

func fieldEqual(f Field, a, b Condition) bool {
	switch f {
	case FieldInstallmentType:
		return a.InstallmentType == b.InstallmentType
	case FieldCount:
		return a.Count == b.Count
	case FieldUnitValue:
		return a.UnitValue.Equal(b.UnitValue)
	case FieldValueKind:
		return a.ValueKind == b.ValueKind
	case FieldSettlement:
		return a.Settlement == b.Settlement
	case FieldPaymentMethod:
		return a.PaymentMethod == b.PaymentMethod
	case FieldAsset:
		return a.Asset.Equal(b.Asset)
	case FieldCorrectionEnabled:
		return a.Correction.Enabled == b.Correction.Enabled
	case FieldCorrectionIndex:
		return a.Correction.Index == b.Correction.Index
	case FieldGracePeriod:
		return a.Correction.GracePeriodInstallments == b.Correction.GracePeriodInstallments
	case FieldFirstDueDate:
		return timePtrEqual(a.Due.FirstDueDate, b.Due.FirstDueDate)
	case FieldEvent:
		return a.Due.Event == b.Due.Event
	case FieldIntervalDays:
		return a.Due.IntervalDays == b.Due.IntervalDays
	case FieldDescription:
		return a.Description == b.Description
	}
	return false
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Equal compares two assets by value. Nil and empty are equal.
func (a *Asset) Equal(b *Asset) bool {
	if a.isEmpty() || b.isEmpty() {
		return a.isEmpty() && b.isEmpty()
	}
	if a.Description != b.Description {
		return false
	}
	if (a.Vehicle == nil) != (b.Vehicle == nil) || (a.Property == nil) != (b.Property == nil) {
		return false
	}
	if a.Vehicle != nil && *a.Vehicle != *b.Vehicle {
		return false
	}
	if a.Property != nil {
		pa, pb := a.Property, b.Property
		if pa.Address != pb.Address || pa.Registry != pb.Registry ||
			!pa.AreaSqm.Equal(pb.AreaSqm) || pa.AppraisalValue != pb.AppraisalValue {
			return false
		}
	}
	return true
}

func (a *Asset) isEmpty() bool {
	return a == nil || (a.Description == "" && a.Vehicle == nil && a.Property == nil)
}

// =============================================================================
// LOOSELY TYPED INPUT - Single-field edits from forms
// =============================================================================

// PatchOf builds a single-field patch from a form value. Accepted value
// types per field:
//
//	count, grace_period_installments, interval_days: int
//	unit_value: decimal.Decimal, string, float64, int
//	enum fields: the enum type or string
//	correction_enabled: bool
//	first_due_date: time.Time, *time.Time, string (YYYY-MM-DD), nil to clear
//	asset: Asset, *Asset, nil to clear
//	correction_index, description: string
func PatchOf(field Field, value any) (Patch, error) {
	var p Patch
	bad := func() (Patch, error) {
		return Patch{}, &FieldError{Field: field, Code: "invalid_type",
			Message: fmt.Sprintf("unsupported value %T", value)}
	}

	switch field {
	case FieldCount, FieldGracePeriod, FieldIntervalDays:
		n, ok := asInt(value)
		if !ok {
			return bad()
		}
		if field == FieldCount && n > MaxCount {
			return Patch{}, &FieldError{Field: field, Code: "out_of_range",
				Message: fmt.Sprintf("count must not exceed %d", MaxCount)}
		}
		switch field {
		case FieldCount:
			p.Count = &n
		case FieldGracePeriod:
			p.GracePeriod = &n
		default:
			p.IntervalDays = &n
		}
	case FieldUnitValue:
		d, err := asDecimal(value)
		if err != nil {
			return Patch{}, &FieldError{Field: field, Code: "invalid_value", Message: err.Error()}
		}
		p.UnitValue = &d
	case FieldInstallmentType:
		v, ok := asString[InstallmentType](value)
		if !ok || !v.Valid() {
			return Patch{}, enumError(field, value)
		}
		p.InstallmentType = &v
	case FieldValueKind:
		v, ok := asString[ValueKind](value)
		if !ok || !v.Valid() {
			return Patch{}, enumError(field, value)
		}
		p.ValueKind = &v
	case FieldSettlement:
		v, ok := asString[SettlementKind](value)
		if !ok || !v.Valid() {
			return Patch{}, enumError(field, value)
		}
		p.Settlement = &v
	case FieldPaymentMethod:
		v, ok := asString[PaymentMethod](value)
		if !ok || !v.Valid() {
			return Patch{}, enumError(field, value)
		}
		p.PaymentMethod = &v
	case FieldEvent:
		v, ok := asString[TriggerEvent](value)
		if !ok || !v.Valid() {
			return Patch{}, enumError(field, value)
		}
		p.Event = &v
	case FieldCorrectionEnabled:
		b, ok := value.(bool)
		if !ok {
			return bad()
		}
		p.CorrectionEnabled = &b
	case FieldCorrectionIndex, FieldDescription:
		s, ok := value.(string)
		if !ok {
			return bad()
		}
		if field == FieldCorrectionIndex {
			p.CorrectionIndex = &s
		} else {
			p.Description = &s
		}
	case FieldFirstDueDate:
		t, err := asDate(value)
		if err != nil {
			return Patch{}, &FieldError{Field: field, Code: "invalid_value", Message: err.Error()}
		}
		p.FirstDueDate = &t
	case FieldAsset:
		switch v := value.(type) {
		case nil:
			p.Asset = &Asset{}
		case Asset:
			p.Asset = &v
		case *Asset:
			if v == nil {
				p.Asset = &Asset{}
			} else {
				a := *v
				p.Asset = &a
			}
		default:
			return bad()
		}
	default:
		return Patch{}, &FieldError{Field: field, Code: "unknown_field", Message: "unknown field"}
	}
	return p, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n > math.MaxInt32 || n < math.MinInt32 || n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func asDecimal(v any) (decimal.Decimal, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case string:
		return decimal.NewFromString(d)
	case float64:
		return decimal.NewFromFloat(d), nil
	case int:
		return decimal.NewFromInt(int64(d)), nil
	case nil:
		return decimal.Zero, nil
	}
	return decimal.Zero, fmt.Errorf("unsupported value %T", v)
}

func asString[T ~string](v any) (T, bool) {
	switch s := v.(type) {
	case T:
		return s, true
	case string:
		return T(s), true
	}
	return "", false
}

func asDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return *t, nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		return time.Parse("2006-01-02", t)
	}
	return time.Time{}, fmt.Errorf("unsupported value %T", v)
}

func enumError(field Field, value any) error {
	return &FieldError{Field: field, Code: "invalid_value", Message: fmt.Sprintf("unknown value %v", value)}
}

// FullPatch sets every field of p from c. Nil assets and dates become
// clearing values, so FullPatch(c).Apply(x) equals c on every field.
func FullPatch(c Condition) Patch {
	it, count, unit, kind := c.InstallmentType, c.Count, c.UnitValue, c.ValueKind
	settlement, method := c.Settlement, c.PaymentMethod
	enabled, index, grace := c.Correction.Enabled, c.Correction.Index, c.Correction.GracePeriodInstallments
	event, interval, desc := c.Due.Event, c.Due.IntervalDays, c.Description

	asset := &Asset{}
	if c.Asset != nil {
		a := *c.Asset
		asset = &a
	}
	due := &time.Time{}
	if c.Due.FirstDueDate != nil {
		d := *c.Due.FirstDueDate
		due = &d
	}

	return Patch{
		InstallmentType:   &it,
		Count:             &count,
		UnitValue:         &unit,
		ValueKind:         &kind,
		Settlement:        &settlement,
		PaymentMethod:     &method,
		Asset:             asset,
		CorrectionEnabled: &enabled,
		CorrectionIndex:   &index,
		GracePeriod:       &grace,
		FirstDueDate:      due,
		Event:             &event,
		IntervalDays:      &interval,
		Description:       &desc,
	}
}

// Changes returns the patch that turns original into edited.
func Changes(original, edited Condition) Patch {
	return FullPatch(edited).Diff(original)
}
