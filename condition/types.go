/*
Package condition models payment conditions ("condições de pagamento").

PURPOSE:
  A Condition is one row of a payment plan: a quantity of same-shaped
  installments attached to a contract, contract template, or proposal
  (the parent). The parent owns a reference total; the conditions must
  add up to it before the contract can be sent for signature.

KEY CONCEPTS IN THIS FILE (types.go):
  - Condition:       count × unit value, plus settlement, correction and due-date policy
  - ValueKind:       fixed currency or percentage of the reference total
  - SettlementKind:  cash, vehicle, property, or other asset in kind
  - InstallmentType: down payment, monthly, intermediate, ... (drives cadence and labels)
  - Parent:          the contract/template/proposal owning a reference total

DESIGN PRINCIPLES:
  1. Closed enumerations: every kind is a typed string with a fixed set of
     values and exhaustive switches at the branch points.
  2. Precision: UnitValue is a decimal.Decimal; totals are money.Cents.
  3. Drafts have no ID. The Store assigns one on Create.

USAGE:
  c := condition.Condition{
      InstallmentType: condition.InstallmentMonthly,
      Count:           36,
      UnitValue:       decimal.RequireFromString("2500.00"),
      ValueKind:       condition.ValueFixed,
      Settlement:      condition.SettlementCash,
      PaymentMethod:   condition.MethodBankSlip,
  }
  total := c.EffectiveTotalCents(reference)

SEE ALSO:
  - patch.go: Partial updates (pending edits)
  - condition.go: Validation and effective totals
  - store.go: Persistence gateway interface
*/
package condition

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condition-engine/money"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ID string
type ParentID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

// InstallmentType is the kind of installment group.
type InstallmentType string

const (
	InstallmentDownPayment  InstallmentType = "down_payment"
	InstallmentMonthly      InstallmentType = "monthly"
	InstallmentIntermediate InstallmentType = "intermediate"
	InstallmentAnnual       InstallmentType = "annual"
	InstallmentBalloon      InstallmentType = "balloon"
	InstallmentFinancing    InstallmentType = "financing"
	InstallmentOther        InstallmentType = "other"
)

// InstallmentTypes lists every installment type in display order.
var InstallmentTypes = []InstallmentType{
	InstallmentDownPayment,
	InstallmentMonthly,
	InstallmentIntermediate,
	InstallmentAnnual,
	InstallmentBalloon,
	InstallmentFinancing,
	InstallmentOther,
}

// Valid reports whether t is a known installment type.
func (t InstallmentType) Valid() bool {
	switch t {
	case InstallmentDownPayment, InstallmentMonthly, InstallmentIntermediate,
		InstallmentAnnual, InstallmentBalloon, InstallmentFinancing, InstallmentOther:
		return true
	}
	return false
}

// Label is the pt-BR display label.
func (t InstallmentType) Label() string {
	switch t {
	case InstallmentDownPayment:
		return "Entrada"
	case InstallmentMonthly:
		return "Mensais"
	case InstallmentIntermediate:
		return "Intermediárias"
	case InstallmentAnnual:
		return "Anuais"
	case InstallmentBalloon:
		return "Parcela única"
	case InstallmentFinancing:
		return "Financiamento"
	default:
		return "Outros"
	}
}

// DefaultIntervalDays is the cadence between successive installments.
func (t InstallmentType) DefaultIntervalDays() int {
	switch t {
	case InstallmentIntermediate:
		return 180
	case InstallmentAnnual:
		return 365
	default:
		return DefaultIntervalDays
	}
}

// DefaultIntervalDays applies when neither the condition nor its type sets one.
const DefaultIntervalDays = 30

// ValueKind says how UnitValue is interpreted.
type ValueKind string

const (
	ValueFixed      ValueKind = "fixed"      // UnitValue is currency
	ValuePercentage ValueKind = "percentage" // UnitValue is a percent of the reference total
)

func (k ValueKind) Valid() bool {
	return k == ValueFixed || k == ValuePercentage
}

// SettlementKind says how the condition is paid off.
// The zero value (unset) is treated as cash.
type SettlementKind string

const (
	SettlementUnset      SettlementKind = ""
	SettlementCash       SettlementKind = "cash"
	SettlementVehicle    SettlementKind = "vehicle"
	SettlementProperty   SettlementKind = "property"
	SettlementOtherAsset SettlementKind = "other_asset"
)

func (k SettlementKind) Valid() bool {
	switch k {
	case SettlementUnset, SettlementCash, SettlementVehicle, SettlementProperty, SettlementOtherAsset:
		return true
	}
	return false
}

// IsCash reports whether the settlement is cash or unset.
func (k SettlementKind) IsCash() bool {
	return k == SettlementCash || k == SettlementUnset
}

// PaymentMethod applies only to cash settlements.
type PaymentMethod string

const (
	MethodUnset    PaymentMethod = ""
	MethodBankSlip PaymentMethod = "bank_slip"
	MethodTransfer PaymentMethod = "transfer"
	MethodPix      PaymentMethod = "pix"
	MethodCard     PaymentMethod = "card"
	MethodCheck    PaymentMethod = "check"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodUnset, MethodBankSlip, MethodTransfer, MethodPix, MethodCard, MethodCheck:
		return true
	}
	return false
}

// TriggerEvent names a contract milestone that sets the first due date.
type TriggerEvent string

const (
	EventNone              TriggerEvent = ""
	EventContractSigning   TriggerEvent = "contract_signing"
	EventKeysDelivery      TriggerEvent = "keys_delivery"
	EventFinancingApproval TriggerEvent = "financing_approval"
	EventCustom            TriggerEvent = "custom" // use FirstDueDate
)

func (e TriggerEvent) Valid() bool {
	switch e {
	case EventNone, EventContractSigning, EventKeysDelivery, EventFinancingApproval, EventCustom:
		return true
	}
	return false
}

// =============================================================================
// CONDITION
// =============================================================================

// Condition is one installment group of a payment plan.
type Condition struct {
	ID       ID
	ParentID ParentID

	InstallmentType InstallmentType
	Count           int
	UnitValue       decimal.Decimal
	ValueKind       ValueKind

	Settlement    SettlementKind
	PaymentMethod PaymentMethod
	Asset         *Asset

	Correction Correction
	Due        DuePolicy

	Description string
	Order       int
	CreatedAt   time.Time
}

// IsDraft reports whether the condition has not been persisted yet.
func (c Condition) IsDraft() bool {
	return c.ID == ""
}

// Correction is the monetary-correction policy.
type Correction struct {
	Enabled bool
	Index   string // e.g. "INCC", "IGP-M", "IPCA"

	// Installments exempt from correction, counted from the first.
	GracePeriodInstallments int
}

// DuePolicy decides when installments fall due.
// A non-custom Event takes precedence over FirstDueDate.
type DuePolicy struct {
	FirstDueDate *time.Time
	Event        TriggerEvent
	IntervalDays int
}

// Asset describes a non-cash settlement.
type Asset struct {
	Description string
	Vehicle     *VehicleInfo
	Property    *PropertyInfo
}

type VehicleInfo struct {
	Make         string
	Model        string
	Year         int
	Plate        string
	Color        string
	Registration string // RENAVAM
}

type PropertyInfo struct {
	Address        string
	Registry       string // matrícula
	AreaSqm        decimal.Decimal
	AppraisalValue money.Cents
}

// =============================================================================
// PARENT - Contract, template, or proposal owning the reference total
// =============================================================================

type ParentKind string

const (
	ParentContract ParentKind = "contract"
	ParentTemplate ParentKind = "template"
	ParentProposal ParentKind = "proposal"
)

func (k ParentKind) Valid() bool {
	return k == ParentContract || k == ParentTemplate || k == ParentProposal
}

// Stage is the parent's lifecycle stage.
type Stage string

const (
	StageDraft            Stage = "draft"
	StageSentForSignature Stage = "sent_for_signature"
	StageSigned           Stage = "signed"
)

// Next returns the stage that follows s, and false when s is terminal.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageDraft, "":
		return StageSentForSignature, true
	case StageSentForSignature:
		return StageSigned, true
	default:
		return s, false
	}
}

// Parent owns the reference total a payment plan reconciles to.
type Parent struct {
	ID             ParentID
	Kind           ParentKind
	Name           string
	ReferenceTotal money.Cents
	Stage          Stage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
