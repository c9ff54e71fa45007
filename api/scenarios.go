/*
scenarios.go - Demo payment plans for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	payment plans. Each scenario creates one parent and its conditions to
	demonstrate a specific behavior of the engine.

AVAILABLE SCENARIOS:

	cents-discrepancy:        R$ 10.000,00 as 3 × R$ 3.333,34 (-R$ 0,02 gap)
	percentage-down-payment:  20% down payment plus fixed monthly and financing
	vehicle-trade-in:         Car as part payment plus monthly installments
	empty-plan:               Template with a reference total and no conditions

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Drop every open editor session
 3. Create the parent
 4. Create its conditions in order

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "cents-discrepancy"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: error mapping shared with these handlers
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/ledger"
	"github.com/warp/condition-engine/money"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	parent     condition.Parent
	conditions func() []condition.Condition
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "cents-discrepancy",
			Name:        "Cents Discrepancy",
			Description: "R$ 10.000,00 split in 3 monthly installments of R$ 3.333,34, two cents over",
		},
		parent: condition.Parent{
			ID:             "contract-aurora-302",
			Kind:           condition.ParentContract,
			Name:           "Apto 302 - Ed. Aurora",
			ReferenceTotal: 1000000,
		},
		conditions: func() []condition.Condition {
			return []condition.Condition{
				cashCondition(condition.InstallmentMonthly, 3, "3333.34", condition.MethodBankSlip),
			}
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "percentage-down-payment",
			Name:        "Percentage Down Payment",
			Description: "20% down payment, 36 monthly installments, balance financed on approval",
		},
		parent: condition.Parent{
			ID:             "proposal-jardim-12",
			Kind:           condition.ParentProposal,
			Name:           "Casa 12 - Jardim Botânico",
			ReferenceTotal: 45000000,
		},
		conditions: func() []condition.Condition {
			down := cashCondition(condition.InstallmentDownPayment, 1, "20", condition.MethodPix)
			down.ValueKind = condition.ValuePercentage
			down.Due.Event = condition.EventContractSigning

			monthly := cashCondition(condition.InstallmentMonthly, 36, "5000", condition.MethodBankSlip)
			monthly.Correction = condition.Correction{Enabled: true, Index: "INCC", GracePeriodInstallments: 12}

			financing := cashCondition(condition.InstallmentFinancing, 1, "180000", condition.MethodTransfer)
			financing.Due.Event = condition.EventFinancingApproval

			return []condition.Condition{down, monthly, financing}
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "vehicle-trade-in",
			Name:        "Vehicle Trade-In",
			Description: "A car accepted as part payment, the rest in 10 monthly installments",
		},
		parent: condition.Parent{
			ID:             "contract-vila-nova-8",
			Kind:           condition.ParentContract,
			Name:           "Sala 8 - Centro Vila Nova",
			ReferenceTotal: 8000000,
		},
		conditions: func() []condition.Condition {
			car := condition.Condition{
				InstallmentType: condition.InstallmentDownPayment,
				Count:           1,
				UnitValue:       decimal.RequireFromString("25000"),
				ValueKind:       condition.ValueFixed,
				Settlement:      condition.SettlementVehicle,
				Asset: &condition.Asset{
					Description: "Honda Civic EXL 2021",
					Vehicle: &condition.VehicleInfo{
						Make: "Honda", Model: "Civic EXL", Year: 2021,
						Plate: "BRA2E19", Color: "prata",
					},
				},
				Due: condition.DuePolicy{Event: condition.EventKeysDelivery},
			}
			monthly := cashCondition(condition.InstallmentMonthly, 10, "5500", condition.MethodBankSlip)
			return []condition.Condition{car, monthly}
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "empty-plan",
			Name:        "Empty Plan",
			Description: "Template with a reference total of R$ 120.000,00 and no conditions yet",
		},
		parent: condition.Parent{
			ID:             "template-padrao-60",
			Kind:           condition.ParentTemplate,
			Name:           "Padrão 60x",
			ReferenceTotal: 12000000,
		},
		conditions: func() []condition.Condition { return nil },
	},
}

func cashCondition(t condition.InstallmentType, count int, unit string, method condition.PaymentMethod) condition.Condition {
	first := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	return condition.Condition{
		InstallmentType: t,
		Count:           count,
		UnitValue:       decimal.RequireFromString(unit),
		ValueKind:       condition.ValueFixed,
		Settlement:      condition.SettlementCash,
		PaymentMethod:   method,
		Due:             condition.DuePolicy{FirstDueDate: &first},
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.ScenarioDTO)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		h.fail(w, "Unknown scenario", fmt.Errorf("%w: scenario %q", errBadRequest, req.ScenarioID))
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.fail(w, "Failed to reset store", err)
		return
	}
	if err := h.loadScenario(ctx, s); err != nil {
		h.fail(w, fmt.Sprintf("Failed to load scenario %s", s.ID), err)
		return
	}

	// Track the loaded scenario
	h.currentScenario = s.ID
	h.logger.Info("scenario loaded",
		slog.String("scenario", s.ID),
		slog.String("parent_id", string(s.parent.ID)),
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "loaded",
		"scenario":  s.ID,
		"parent_id": string(s.parent.ID),
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.fail(w, "Failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reset clears the store and every session. Callers hold scenarioMu.
func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Sessions.DropAll()
	h.currentScenario = ""
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) error {
	p, err := h.Store.CreateParent(ctx, s.parent)
	if err != nil {
		return fmt.Errorf("create parent: %w", err)
	}

	for i, c := range s.conditions() {
		c.ParentID = p.ID
		c.Order = i
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		if _, err := h.Store.Create(ctx, p.ID, c); err != nil {
			return fmt.Errorf("create condition %d: %w", i, err)
		}
	}
	return nil
}

// scenarioTotal is the configured total a scenario seeds.
func scenarioTotal(s scenario) money.Cents {
	return ledger.TotalOf(s.conditions(), s.parent.ReferenceTotal)
}
