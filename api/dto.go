/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (which has no JSON tags) from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY ON THE WIRE:
  Amounts go out twice: as integer cents (*_cents) for machines and as a
  BRL-formatted string for display. Amounts come in as decimal strings
  ("3333.34"), never as JSON numbers, so no float ever touches a value.

SEE ALSO:
  - handlers.go: Uses these types
  - money/format.go: FormatBRL
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/ledger"
	"github.com/warp/condition-engine/money"
)

const dateLayout = "2006-01-02"

// =============================================================================
// PARENTS
// =============================================================================

// ParentDTO represents a contract, template or proposal.
type ParentDTO struct {
	ID                  string `json:"id"`
	Kind                string `json:"kind"`
	Name                string `json:"name"`
	ReferenceTotal      string `json:"reference_total"`
	ReferenceTotalCents int64  `json:"reference_total_cents"`
	Stage               string `json:"stage"`
	CreatedAt           string `json:"created_at,omitempty"`
	UpdatedAt           string `json:"updated_at,omitempty"`
}

// CreateParentRequest creates a parent. ReferenceTotal is a decimal string.
type CreateParentRequest struct {
	ID             string `json:"id,omitempty"`
	Kind           string `json:"kind"`
	Name           string `json:"name"`
	ReferenceTotal string `json:"reference_total"`
}

// SetReferenceRequest changes a parent's reference total.
type SetReferenceRequest struct {
	ReferenceTotal string `json:"reference_total"`
}

// ParentDetailResponse is a parent with its reconciliation state.
type ParentDetailResponse struct {
	Parent     ParentDTO   `json:"parent"`
	Snapshot   SnapshotDTO `json:"snapshot"`
	Dirty      bool        `json:"dirty"`
	CanAdvance bool        `json:"can_advance"`
}

// AdvanceResponse reports the stage a parent moved to.
type AdvanceResponse struct {
	ParentID string `json:"parent_id"`
	Stage    string `json:"stage"`
}

func toParentDTO(p condition.Parent) ParentDTO {
	dto := ParentDTO{
		ID:                  string(p.ID),
		Kind:                string(p.Kind),
		Name:                p.Name,
		ReferenceTotal:      money.FormatBRL(p.ReferenceTotal),
		ReferenceTotalCents: int64(p.ReferenceTotal),
		Stage:               string(p.Stage),
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.Format(time.RFC3339)
	}
	if !p.UpdatedAt.IsZero() {
		dto.UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// SnapshotDTO is the ledger snapshot.
type SnapshotDTO struct {
	ReferenceTotal       string  `json:"reference_total"`
	ReferenceTotalCents  int64   `json:"reference_total_cents"`
	ConfiguredTotal      string  `json:"configured_total"`
	ConfiguredTotalCents int64   `json:"configured_total_cents"`
	Difference           string  `json:"difference"`
	DifferenceCents      int64   `json:"difference_cents"`
	Remaining            string  `json:"remaining"`
	RemainingCents       int64   `json:"remaining_cents"`
	PercentConfigured    float64 `json:"percent_configured"`
	IsValid              bool    `json:"is_valid"`
	IsCentsDiscrepancy   bool    `json:"is_cents_discrepancy"`
}

func toSnapshotDTO(s ledger.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		ReferenceTotal:       money.FormatBRL(s.ReferenceTotal),
		ReferenceTotalCents:  int64(s.ReferenceTotal),
		ConfiguredTotal:      money.FormatBRL(s.ConfiguredTotal),
		ConfiguredTotalCents: int64(s.ConfiguredTotal),
		Difference:           money.FormatBRL(s.Difference),
		DifferenceCents:      int64(s.Difference),
		Remaining:            money.FormatBRL(s.Remaining()),
		RemainingCents:       int64(s.Remaining()),
		PercentConfigured:    s.PercentConfigured,
		IsValid:              s.IsValid(),
		IsCentsDiscrepancy:   s.IsCentsDiscrepancy(),
	}
}

// =============================================================================
// CONDITIONS
// =============================================================================

// ConditionDTO represents one condition, committed or draft.
type ConditionDTO struct {
	ID               string        `json:"id,omitempty"`
	DraftIndex       *int          `json:"draft_index,omitempty"`
	InstallmentType  string        `json:"installment_type"`
	InstallmentLabel string        `json:"installment_label"`
	Count            int           `json:"count"`
	UnitValue        string        `json:"unit_value"`
	ValueKind        string        `json:"value_kind"`
	UnitCents        int64         `json:"unit_cents"`
	TotalCents       int64         `json:"total_cents"`
	Total            string        `json:"total"`
	Settlement       string        `json:"settlement,omitempty"`
	PaymentMethod    string        `json:"payment_method,omitempty"`
	Asset            *AssetDTO     `json:"asset,omitempty"`
	Correction       CorrectionDTO `json:"correction"`
	Due              DueDTO        `json:"due"`
	Description      string        `json:"description,omitempty"`
	Order            int           `json:"order"`
	ModifiedFields   []string      `json:"modified_fields,omitempty"`
}

// CorrectionDTO is the monetary-correction policy.
type CorrectionDTO struct {
	Enabled                 bool   `json:"enabled"`
	Index                   string `json:"index,omitempty"`
	GracePeriodInstallments int    `json:"grace_period_installments"`
}

// DueDTO is the due-date policy.
type DueDTO struct {
	FirstDueDate string `json:"first_due_date,omitempty"`
	Event        string `json:"event,omitempty"`
	IntervalDays int    `json:"interval_days"`
}

// AssetDTO describes a non-cash settlement.
type AssetDTO struct {
	Description string       `json:"description"`
	Vehicle     *VehicleDTO  `json:"vehicle,omitempty"`
	Property    *PropertyDTO `json:"property,omitempty"`
}

type VehicleDTO struct {
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         int    `json:"year,omitempty"`
	Plate        string `json:"plate,omitempty"`
	Color        string `json:"color,omitempty"`
	Registration string `json:"registration,omitempty"`
}

type PropertyDTO struct {
	Address        string `json:"address,omitempty"`
	Registry       string `json:"registry,omitempty"`
	AreaSqm        string `json:"area_sqm,omitempty"`
	AppraisalValue string `json:"appraisal_value,omitempty"`
}

// ConditionsResponse is the session's working set.
type ConditionsResponse struct {
	Conditions []ConditionDTO `json:"conditions"`
	Drafts     []ConditionDTO `json:"drafts"`
	Snapshot   SnapshotDTO    `json:"snapshot"`
	Dirty      bool           `json:"dirty"`
}

func toConditionDTO(c condition.Condition, reference money.Cents) ConditionDTO {
	total := c.EffectiveTotalCents(reference)
	dto := ConditionDTO{
		ID:               string(c.ID),
		InstallmentType:  string(c.InstallmentType),
		InstallmentLabel: c.InstallmentType.Label(),
		Count:            c.Count,
		UnitValue:        c.UnitValue.StringFixed(2),
		ValueKind:        string(c.Kind()),
		UnitCents:        int64(c.UnitCents(reference)),
		TotalCents:       int64(total),
		Total:            money.FormatBRL(total),
		Settlement:       string(c.Settlement),
		PaymentMethod:    string(c.PaymentMethod),
		Asset:            toAssetDTO(c.Asset),
		Correction: CorrectionDTO{
			Enabled:                 c.Correction.Enabled,
			Index:                   c.Correction.Index,
			GracePeriodInstallments: c.Correction.GracePeriodInstallments,
		},
		Due: DueDTO{
			Event:        string(c.Due.Event),
			IntervalDays: c.IntervalDays(),
		},
		Description: c.Description,
		Order:       c.Order,
	}
	if c.Due.FirstDueDate != nil {
		dto.Due.FirstDueDate = c.Due.FirstDueDate.Format(dateLayout)
	}
	return dto
}

func toAssetDTO(a *condition.Asset) *AssetDTO {
	if a == nil {
		return nil
	}
	dto := &AssetDTO{Description: a.Description}
	if v := a.Vehicle; v != nil {
		dto.Vehicle = &VehicleDTO{
			Make: v.Make, Model: v.Model, Year: v.Year,
			Plate: v.Plate, Color: v.Color, Registration: v.Registration,
		}
	}
	if p := a.Property; p != nil {
		dto.Property = &PropertyDTO{
			Address:        p.Address,
			Registry:       p.Registry,
			AreaSqm:        p.AreaSqm.String(),
			AppraisalValue: p.AppraisalValue.String(),
		}
	}
	return dto
}

func (a AssetDTO) toAsset() (condition.Asset, error) {
	asset := condition.Asset{Description: a.Description}
	if v := a.Vehicle; v != nil {
		asset.Vehicle = &condition.VehicleInfo{
			Make: v.Make, Model: v.Model, Year: v.Year,
			Plate: v.Plate, Color: v.Color, Registration: v.Registration,
		}
	}
	if p := a.Property; p != nil {
		info := &condition.PropertyInfo{Address: p.Address, Registry: p.Registry}
		if p.AreaSqm != "" {
			area, err := decimal.NewFromString(p.AreaSqm)
			if err != nil {
				return condition.Asset{}, fmt.Errorf("area_sqm: %w", err)
			}
			info.AreaSqm = area
		}
		if p.AppraisalValue != "" {
			value, err := decimal.NewFromString(p.AppraisalValue)
			if err != nil {
				return condition.Asset{}, fmt.Errorf("appraisal_value: %w", err)
			}
			info.AppraisalValue = money.ToCents(value)
		}
		asset.Property = info
	}
	return asset, nil
}

// =============================================================================
// SESSION REQUESTS
// =============================================================================

// EditRequest stages one field change on a committed condition.
type EditRequest struct {
	ConditionID string          `json:"condition_id"`
	Field       string          `json:"field"`
	Value       json.RawMessage `json:"value"`
}

// DraftEditRequest sets one field of a draft.
type DraftEditRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// DraftCreatedResponse returns the index of a new draft.
type DraftCreatedResponse struct {
	Index int `json:"index"`
}

// ReorderRequest lists every committed condition ID in the new order.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

// fieldValue decodes a raw JSON value into what condition.PatchOf accepts
// for field. unit_value must arrive as a JSON string.
func fieldValue(field condition.Field, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if field == condition.FieldAsset {
		var a AssetDTO
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return a.toAsset()
	}
	if field == condition.FieldUnitValue {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, errors.New("must be a decimal string such as \"3333.34\"")
		}
		return str, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// =============================================================================
// ADJUSTMENT
// =============================================================================

// AdjustmentDTO previews a cents adjustment.
type AdjustmentDTO struct {
	DifferenceCents int64              `json:"difference_cents"`
	Difference      string             `json:"difference"`
	Target          string             `json:"target"`
	Updates         []AdjustmentUpdate `json:"updates"`
	Creates         []ConditionDTO     `json:"creates"`
}

// AdjustmentUpdate is one changed condition, shown after the change.
type AdjustmentUpdate struct {
	ID     string       `json:"id"`
	Fields []string     `json:"fields"`
	After  ConditionDTO `json:"after"`
}

// ApplyAdjustmentRequest confirms a previewed adjustment. When set,
// DifferenceCents must equal the current difference.
type ApplyAdjustmentRequest struct {
	DifferenceCents *int64 `json:"difference_cents,omitempty"`
}

func toAdjustmentDTO(plan ledger.AdjustmentPlan, committed []condition.Condition, reference money.Cents) AdjustmentDTO {
	dto := AdjustmentDTO{
		DifferenceCents: int64(plan.Difference),
		Difference:      money.FormatBRL(plan.Difference),
		Target:          string(plan.Target),
		Updates:         []AdjustmentUpdate{},
		Creates:         []ConditionDTO{},
	}
	for _, u := range plan.Updates {
		for _, c := range committed {
			if c.ID != u.ID {
				continue
			}
			fields := make([]string, 0, len(u.Patch.Fields()))
			for _, f := range u.Patch.Fields() {
				fields = append(fields, string(f))
			}
			dto.Updates = append(dto.Updates, AdjustmentUpdate{
				ID:     string(c.ID),
				Fields: fields,
				After:  toConditionDTO(u.Patch.Apply(c), reference),
			})
		}
	}
	for _, c := range plan.Creates {
		dto.Creates = append(dto.Creates, toConditionDTO(c, reference))
	}
	return dto
}

// =============================================================================
// SCHEDULE
// =============================================================================

// InstallmentDTO is one expanded installment.
type InstallmentDTO struct {
	Number      int    `json:"number"`
	DueDate     string `json:"due_date,omitempty"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Corrected   bool   `json:"corrected"`
}

// ScheduleResponse is a condition's installment schedule.
type ScheduleResponse struct {
	ConditionID  string           `json:"condition_id"`
	Installments []InstallmentDTO `json:"installments"`
	TotalCents   int64            `json:"total_cents"`
}

func toScheduleResponse(id condition.ID, installments []condition.Installment) ScheduleResponse {
	resp := ScheduleResponse{ConditionID: string(id), Installments: make([]InstallmentDTO, len(installments))}
	var total money.Cents
	for i, inst := range installments {
		dto := InstallmentDTO{
			Number:      inst.Number,
			Amount:      money.FormatBRL(inst.Amount),
			AmountCents: int64(inst.Amount),
			Corrected:   inst.Corrected,
		}
		if inst.DueDate != nil {
			dto.DueDate = inst.DueDate.Format(dateLayout)
		}
		resp.Installments[i] = dto
		total = total.Add(inst.Amount)
	}
	resp.TotalCents = int64(total)
	return resp
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo payment plan.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest loads a demo payment plan.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Details string          `json:"details,omitempty"`
	Fields  []FieldErrorDTO `json:"fields,omitempty"`
	Applied *int            `json:"applied,omitempty"`
}

// FieldErrorDTO is one field-level validation problem.
type FieldErrorDTO struct {
	ConditionID string `json:"condition_id,omitempty"`
	DraftIndex  *int   `json:"draft_index,omitempty"`
	Field       string `json:"field"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}
