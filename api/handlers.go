/*
handlers.go - HTTP API handlers for the payment-condition engine

PURPOSE:
  Exposes parents, their payment plans and the editor session via REST.
  Handles HTTP request/response and JSON serialization, and delegates to
  the session package for every state change.

ENDPOINTS:
  Parents:
    POST   /api/parents                                 Create parent
    GET    /api/parents                                 List parents
    GET    /api/parents/{id}                            Parent + snapshot
    PUT    /api/parents/{id}/reference                  Change reference total
    POST   /api/parents/{id}/advance                    Stage gate

  Conditions (immediate):
    GET    /api/parents/{id}/conditions                 Effective conditions + drafts
    PUT    /api/parents/{id}/conditions/order           Reorder
    DELETE /api/parents/{id}/conditions/{cid}           Delete
    GET    /api/parents/{id}/conditions/{cid}/schedule  Installment schedule
    GET    /api/parents/{id}/snapshot                   Ledger snapshot

  Session (staged):
    POST   /api/parents/{id}/session/edits              Stage a field edit
    POST   /api/parents/{id}/session/drafts             Add draft
    PATCH  /api/parents/{id}/session/drafts/{index}     Edit draft
    DELETE /api/parents/{id}/session/drafts/{index}     Remove draft
    POST   /api/parents/{id}/session/commit             Commit
    POST   /api/parents/{id}/session/discard            Discard

  Adjustment:
    GET    /api/parents/{id}/adjustment                 Preview cents adjustment
    POST   /api/parents/{id}/adjustment                 Apply cents adjustment

ERROR HANDLING:
  Errors are returned as ErrorResponse with a status from statusFor:
  - 400: Validation errors, invalid input, incomplete reorder
  - 404: Parent, condition or draft not found
  - 409: Pending changes, not reconciled, duplicate order, stale plan
  - 422: No adjustable condition, not a cents discrepancy
  - 502: Persistence failure mid-commit (with applied count)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - sessions.go: Session registry
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/ledger"
	"github.com/warp/condition-engine/money"
	"github.com/warp/condition-engine/session"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the persistence the API needs.
type Backend interface {
	condition.Store
	condition.ParentStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Backend
	Sessions *Sessions
	Metrics  *Metrics
	logger   *slog.Logger

	// Track currently loaded scenario. scenarioMu also serializes
	// reset-and-load so two loads cannot interleave.
	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store Backend, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:    store,
		Sessions: NewSessions(store, metrics, logger),
		Metrics:  metrics,
		logger:   logger,
	}
}

func parentID(r *http.Request) condition.ParentID {
	return condition.ParentID(chi.URLParam(r, "id"))
}

func (h *Handler) withSession(r *http.Request, fn func(*session.Session) error) error {
	return h.Sessions.With(r.Context(), parentID(r), fn)
}

// =============================================================================
// PARENT HANDLERS
// =============================================================================

// CreateParent creates a contract, template or proposal.
func (h *Handler) CreateParent(w http.ResponseWriter, r *http.Request) {
	var req CreateParentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}

	kind := condition.ParentKind(req.Kind)
	var problems []string
	if !kind.Valid() {
		problems = append(problems, fmt.Sprintf("kind %q must be contract, template or proposal", req.Kind))
	}
	if strings.TrimSpace(req.Name) == "" {
		problems = append(problems, "name is required")
	}
	reference, err := parseAmount(req.ReferenceTotal)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		h.fail(w, "Invalid parent", fmt.Errorf("%w: %s", errBadRequest, strings.Join(problems, "; ")))
		return
	}

	p, err := h.Store.CreateParent(r.Context(), condition.Parent{
		ID:             condition.ParentID(req.ID),
		Kind:           kind,
		Name:           req.Name,
		ReferenceTotal: reference,
	})
	if err != nil {
		h.fail(w, "Failed to create parent", err)
		return
	}
	writeJSON(w, http.StatusCreated, toParentDTO(p))
}

// ListParents returns all parents.
func (h *Handler) ListParents(w http.ResponseWriter, r *http.Request) {
	parents, err := h.Store.ListParents(r.Context())
	if err != nil {
		h.fail(w, "Failed to list parents", err)
		return
	}

	dtos := make([]ParentDTO, len(parents))
	for i, p := range parents {
		dtos[i] = toParentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetParent returns a parent with its session's reconciliation state.
func (h *Handler) GetParent(w http.ResponseWriter, r *http.Request) {
	var resp ParentDetailResponse
	err := h.withSession(r, func(s *session.Session) error {
		p, err := h.Store.GetParent(r.Context(), s.ParentID())
		if err != nil {
			return err
		}
		resp = ParentDetailResponse{
			Parent:     toParentDTO(p),
			Snapshot:   toSnapshotDTO(s.Snapshot()),
			Dirty:      s.IsDirty(),
			CanAdvance: s.CanAdvance(),
		}
		return nil
	})
	if err != nil {
		h.fail(w, "Failed to get parent", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetReference changes the reference total. The open session, if any,
// picks it up on its next use.
func (h *Handler) SetReference(w http.ResponseWriter, r *http.Request) {
	var req SetReferenceRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	total, err := parseAmount(req.ReferenceTotal)
	if err != nil {
		h.fail(w, "Invalid reference total", err)
		return
	}
	if err := h.Store.SetReferenceTotal(r.Context(), parentID(r), total); err != nil {
		h.fail(w, "Failed to set reference total", err)
		return
	}
	h.writeSnapshot(w, r)
}

// Advance moves the parent to its next stage when the plan reconciles.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var stage condition.Stage
	err := h.withSession(r, func(s *session.Session) error {
		var err error
		stage, err = s.Advance(r.Context(), h.Store)
		return err
	})
	h.Metrics.advance(err)
	if err != nil {
		h.fail(w, "Cannot advance", err)
		return
	}
	writeJSON(w, http.StatusOK, AdvanceResponse{ParentID: string(parentID(r)), Stage: string(stage)})
}

// =============================================================================
// CONDITION HANDLERS
// =============================================================================

// ListConditions returns the effective conditions and drafts.
func (h *Handler) ListConditions(w http.ResponseWriter, r *http.Request) {
	h.respondConditions(w, r, http.StatusOK, nil)
}

// ReorderConditions sets the order of every committed condition.
func (h *Handler) ReorderConditions(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	ids := make([]condition.ID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = condition.ID(id)
	}
	h.respondConditions(w, r, http.StatusOK, func(s *session.Session) error {
		return s.Reorder(r.Context(), ids)
	})
}

// DeleteCondition deletes a committed condition immediately.
func (h *Handler) DeleteCondition(w http.ResponseWriter, r *http.Request) {
	id := condition.ID(chi.URLParam(r, "cid"))
	h.respondConditions(w, r, http.StatusOK, func(s *session.Session) error {
		return s.Delete(r.Context(), id)
	})
}

// GetSchedule expands a condition into installments. Trigger-event dates
// come from query parameters named after the event, e.g.
// ?contract_signing=2026-03-01.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := condition.ID(chi.URLParam(r, "cid"))

	events := condition.EventDates{}
	for _, e := range []condition.TriggerEvent{
		condition.EventContractSigning,
		condition.EventKeysDelivery,
		condition.EventFinancingApproval,
	} {
		raw := r.URL.Query().Get(string(e))
		if raw == "" {
			continue
		}
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			h.fail(w, "Invalid event date", fmt.Errorf("%w: %s: %v", errBadRequest, e, err))
			return
		}
		events[e] = d
	}

	var resp ScheduleResponse
	err := h.withSession(r, func(s *session.Session) error {
		c, ok := s.Effective(id)
		if !ok {
			return fmt.Errorf("condition %s: %w", id, session.ErrUnknownCondition)
		}
		resp = toScheduleResponse(id, condition.Schedule(c, s.Reference(), events))
		return nil
	})
	if err != nil {
		h.fail(w, "Failed to build schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSnapshot returns the ledger snapshot.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, r)
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap ledger.Snapshot
	err := h.withSession(r, func(s *session.Session) error {
		snap = s.Snapshot()
		return nil
	})
	if err != nil {
		h.fail(w, "Failed to get snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// EditCondition stages one field edit on a committed condition.
func (h *Handler) EditCondition(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	field, value, err := parseField(req.Field, req.Value)
	if err != nil {
		h.fail(w, "Invalid edit", err)
		return
	}
	h.respondConditions(w, r, http.StatusOK, func(s *session.Session) error {
		return s.EditField(condition.ID(req.ConditionID), field, value)
	})
}

// AddDraft appends an empty draft.
func (h *Handler) AddDraft(w http.ResponseWriter, r *http.Request) {
	var index int
	err := h.withSession(r, func(s *session.Session) error {
		index = s.AddDraft()
		return nil
	})
	if err != nil {
		h.fail(w, "Failed to add draft", err)
		return
	}
	writeJSON(w, http.StatusCreated, DraftCreatedResponse{Index: index})
}

// EditDraft sets one field of a draft.
func (h *Handler) EditDraft(w http.ResponseWriter, r *http.Request) {
	index, err := draftIndex(r)
	if err != nil {
		h.fail(w, "Invalid draft index", err)
		return
	}
	var req DraftEditRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	field, value, err := parseField(req.Field, req.Value)
	if err != nil {
		h.fail(w, "Invalid edit", err)
		return
	}
	h.respondConditions(w, r, http.StatusOK, func(s *session.Session) error {
		return s.EditDraft(index, field, value)
	})
}

// RemoveDraft drops a draft.
func (h *Handler) RemoveDraft(w http.ResponseWriter, r *http.Request) {
	index, err := draftIndex(r)
	if err != nil {
		h.fail(w, "Invalid draft index", err)
		return
	}
	h.respondConditions(w, r, http.StatusOK, func(s *session.Session) error {
		return s.RemoveDraft(index)
	})
}

// Commit persists every pending edit and draft.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	h.respondConditions(w, r, http.StatusOK, func(s *session.Session) error {
		err := s.Commit(r.Context())
		h.Metrics.commit(err)
		return err
	})
}

// Discard drops every pending edit and draft.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	h.respondConditions(w, r, http.StatusOK, func(s *session.Session) error {
		s.Discard()
		return nil
	})
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// PreviewAdjustment returns the plan that would close a cents gap.
func (h *Handler) PreviewAdjustment(w http.ResponseWriter, r *http.Request) {
	var dto AdjustmentDTO
	err := h.withSession(r, func(s *session.Session) error {
		plan, err := s.AutoAdjust()
		if err != nil {
			return err
		}
		dto = toAdjustmentDTO(plan, s.Committed(), s.Reference())
		return nil
	})
	if err != nil {
		h.fail(w, "Cannot adjust", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// ApplyAdjustment recomputes the plan and applies it. A body with
// difference_cents guards against applying a plan the client never saw.
func (h *Handler) ApplyAdjustment(w http.ResponseWriter, r *http.Request) {
	var req ApplyAdjustmentRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, "Invalid request body", err)
		return
	}
	h.respondConditions(w, r, http.StatusOK, func(s *session.Session) error {
		plan, err := s.AutoAdjust()
		if err == nil && req.DifferenceCents != nil && money.Cents(*req.DifferenceCents) != plan.Difference {
			err = fmt.Errorf("previewed %d cents, current difference %d: %w",
				*req.DifferenceCents, plan.Difference, session.ErrStalePlan)
		}
		if err == nil {
			err = s.ApplyAdjustment(r.Context(), plan)
		}
		h.Metrics.adjustment(err)
		return err
	})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// respondConditions runs fn (if any) on the session and writes the
// resulting working set.
func (h *Handler) respondConditions(w http.ResponseWriter, r *http.Request, status int, fn func(*session.Session) error) {
	var resp ConditionsResponse
	err := h.withSession(r, func(s *session.Session) error {
		if fn != nil {
			if err := fn(s); err != nil {
				return err
			}
		}
		resp = toConditionsResponse(s)
		return nil
	})
	if err != nil {
		h.fail(w, "Request failed", err)
		return
	}
	writeJSON(w, status, resp)
}

func toConditionsResponse(s *session.Session) ConditionsResponse {
	reference := s.Reference()
	resp := ConditionsResponse{
		Conditions: []ConditionDTO{},
		Drafts:     []ConditionDTO{},
		Snapshot:   toSnapshotDTO(s.Snapshot()),
		Dirty:      s.IsDirty(),
	}
	for _, c := range s.Conditions() {
		dto := toConditionDTO(c, reference)
		for _, f := range s.ModifiedFields(c.ID) {
			dto.ModifiedFields = append(dto.ModifiedFields, string(f))
		}
		resp.Conditions = append(resp.Conditions, dto)
	}
	for i, d := range s.Drafts() {
		dto := toConditionDTO(d, reference)
		index := i
		dto.DraftIndex = &index
		resp.Drafts = append(resp.Drafts, dto)
	}
	return resp
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func parseField(name string, raw json.RawMessage) (condition.Field, any, error) {
	field := condition.Field(name)
	if !field.Valid() {
		return "", nil, fmt.Errorf("%w: unknown field %q", errBadRequest, name)
	}
	value, err := fieldValue(field, raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return field, value, nil
}

// parseAmount reads a non-negative amount, either decimal ("450000.00") or
// BRL formatted ("R$ 450.000,00"); empty means zero.
func parseAmount(s string) (money.Cents, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	var c money.Cents
	if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
		c = money.Bounded(d)
	} else if c, err = money.ParseBRL(s); err != nil {
		return 0, fmt.Errorf("%w: reference_total %q is not a decimal or BRL amount", errBadRequest, s)
	}
	switch {
	case c.IsNegative():
		return 0, fmt.Errorf("%w: reference_total must not be negative", errBadRequest)
	case !c.InRange():
		return 0, fmt.Errorf("%w: reference_total must not exceed %s", errBadRequest, money.FormatBRL(money.MaxAmount))
	}
	return c, nil
}

func draftIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, fmt.Errorf("%w: draft index %q", errBadRequest, chi.URLParam(r, "index"))
	}
	return i, nil
}

// statusFor maps domain errors to HTTP status codes. Persistence failures
// are checked first: a CommitError also wraps the gateway's own error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrPersistenceFailure):
		return http.StatusBadGateway
	case errors.Is(err, errBadRequest),
		errors.Is(err, condition.ErrInvalidCondition),
		errors.Is(err, session.ErrIncompleteOrder):
		return http.StatusBadRequest
	case session.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, session.ErrPendingChangesExist),
		errors.Is(err, session.ErrNotReconciled),
		errors.Is(err, condition.ErrDuplicateOrder),
		errors.Is(err, condition.ErrDuplicateParent),
		errors.Is(err, session.ErrStalePlan),
		errors.Is(err, session.ErrFinalStage):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrNoAdjustableCondition),
		errors.Is(err, ledger.ErrNotCentsDiscrepancy):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status, adding field problems and the
// applied count when err carries them.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: message, Details: err.Error(), Fields: fieldErrors(err)}

	attrs := []any{slog.Int("status", status), slog.Any("error", err)}
	var ce *session.CommitError
	if errors.As(err, &ce) {
		applied := ce.Applied
		resp.Applied = &applied
		if failed := ce.Failed(); failed != nil {
			attrs = append(attrs, slog.String("failed_op", string(failed.Op)), slog.Int("applied", applied))
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, attrs...)
	}
	writeJSON(w, status, resp)
}

// fieldErrors flattens every ValidationError and FieldError in err's tree.
func fieldErrors(err error) []FieldErrorDTO {
	var out []FieldErrorDTO
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
			return
		case *condition.ValidationError:
			for _, f := range e.Fields {
				dto := FieldErrorDTO{
					ConditionID: string(e.ConditionID),
					Field:       string(f.Field),
					Code:        f.Code,
					Message:     f.Message,
				}
				if e.ConditionID == "" {
					index := e.DraftIndex
					dto.DraftIndex = &index
				}
				out = append(out, dto)
			}
			return
		case *condition.FieldError:
			out = append(out, FieldErrorDTO{Field: string(e.Field), Code: e.Code, Message: e.Message})
			return
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
