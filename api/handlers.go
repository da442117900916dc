/*
handlers.go - HTTP API handlers for the capacity engine

PURPOSE:
  Exposes capacity governance and admission control via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to
  capacity.Service and the schedule package.

ENDPOINTS:
  Admission:
    POST   /api/capacity/validate         Speculative capacity check (rate limited)
    POST   /api/capacity/analyze          Activity-based FTE estimate

  Governance:
    GET    /api/governance                Current snapshot
    PUT    /api/governance/team           Restaff roles (expected_version CAS)
    PUT    /api/governance/quotas         Replace quotas (expected_version CAS)
    GET    /api/governance/alert          Weekly shortage / warning alert

  Commitments:
    GET    /api/commitments               List
    POST   /api/commitments               Admit and store
    GET    /api/commitments/{id}          Details
    PUT    /api/commitments/{id}          Re-admit and store
    POST   /api/commitments/{id}/lock     Freeze FTE and dates
    POST   /api/commitments/{id}/unlock   Release
    GET    /api/commitments/{id}/buckets  Quarter/month projection

  Roadmap and roles:
    GET    /api/roadmap                   ?year&scheme&quarter&type
    GET    /api/roles                     Role catalog
    POST   /api/roles                     Add role
    PUT    /api/roles/{id}                Replace role

REQUEST FLOW:
  1. Decode JSON and run validator tags
  2. Convert documents with factory.DocumentFactory
  3. Call capacity.Service (pure engine behind it)
  4. Serialize response DTO
  5. Map errors to status codes

ERROR HANDLING:
  - 400: Invalid window, portfolio, role or other input
  - 404: Commitment or role not found
  - 409: Stale expected_version, locked commitment, duplicate role
  - 422: Admission rejected on create/update (body carries the decision)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Governance writes log the X-User-Role and X-Actor
  headers; enforcing who may write is left to the fronting gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/capacity-engine/capacity"
	"github.com/warp/capacity-engine/factory"
	"github.com/warp/capacity-engine/schedule"
)

const (
	headerActor = "X-Actor"
	headerRole  = "X-User-Role"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *capacity.Service
	Factory *factory.DocumentFactory
	Log     logrus.FieldLogger

	validate *validator.Validate

	// Scenarios by id and the one currently loaded
	mu              sync.RWMutex
	scenarios       map[string]*factory.Scenario
	currentScenario string
}

// NewHandler creates a new handler around the service.
func NewHandler(svc *capacity.Service, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{
		Service:  svc,
		Factory:  factory.NewDocumentFactory(),
		Log:      logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	h.AddScenarios(BuiltinScenarios()...)
	return h
}

func (h *Handler) logger(r *http.Request) logrus.FieldLogger {
	return h.Log.WithField("request_id", middleware.GetReqID(r.Context()))
}

// =============================================================================
// ADMISSION
// =============================================================================

// ValidateCapacity runs a speculative admission check. Nothing is stored.
func (h *Handler) ValidateCapacity(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	proposal, err := h.Factory.Proposal(req)
	if err != nil {
		h.writeServiceError(w, r, "Invalid proposal", err)
		return
	}

	res, err := h.Service.Validate(r.Context(), proposal)
	if err != nil {
		h.writeServiceError(w, r, "Capacity check failed", err)
		return
	}
	recordDecision(proposal.Portfolio, res, "speculative")
	writeJSON(w, http.StatusOK, ToValidationResultDTO(res))
}

// AnalyzeActivities estimates required FTE from activity tags.
func (h *Handler) AnalyzeActivities(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	cfg, err := h.Service.Config(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to load governance", err)
		return
	}

	proposed := capacity.RoleTotalsFromFloats(normalizeKeys(req.RoleFTE))
	analysis := capacity.AnalyzeResourceAllocation(req.Activities, proposed, req.DurationWeeks, cfg.ActiveRoles())
	writeJSON(w, http.StatusOK, toAnalysisDTO(analysis))
}

// =============================================================================
// GOVERNANCE
// =============================================================================

// GetGovernance returns the current snapshot.
func (h *Handler) GetGovernance(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.Config(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to load governance", err)
		return
	}
	configVersion.Set(float64(cfg.Version))
	writeJSON(w, http.StatusOK, toGovernanceDTO(cfg))
}

// UpdateTeam restaffs roles.
func (h *Handler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	var req UpdateTeamRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	team := make(map[capacity.Role]capacity.TeamInput, len(req.Team))
	for k, td := range req.Team {
		team[capacity.NormalizeRole(k)] = capacity.TeamInput{TeamSize: td.TeamSize, Efficiency: td.Efficiency}
	}

	actor := actorOf(r, req.UpdatedBy)
	cfg, notices, err := h.Service.UpdateTeam(r.Context(), team, actor, req.ExpectedVersion)
	if err != nil {
		if errors.Is(err, capacity.ErrConcurrentModification) {
			writeConflicts.WithLabelValues("governance").Inc()
		}
		h.writeServiceError(w, r, "Failed to update team", err)
		return
	}

	h.logger(r).WithFields(logrus.Fields{
		"actor":   actor,
		"role":    r.Header.Get(headerRole),
		"version": cfg.Version,
		"roles":   len(team),
	}).Info("governance team updated")
	configVersion.Set(float64(cfg.Version))
	writeJSON(w, http.StatusOK, GovernanceUpdateResponse{Governance: toGovernanceDTO(cfg), Notices: errorStrings(notices)})
}

// UpdateQuotas replaces both portfolio quotas.
func (h *Handler) UpdateQuotas(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuotasRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	actor := actorOf(r, req.UpdatedBy)
	cfg, notices, err := h.Service.UpdateQuotas(r.Context(), req.Client, req.Internal, actor, req.ExpectedVersion)
	if err != nil {
		if errors.Is(err, capacity.ErrConcurrentModification) {
			writeConflicts.WithLabelValues("governance").Inc()
		}
		h.writeServiceError(w, r, "Failed to update quotas", err)
		return
	}

	entry := h.logger(r).WithFields(logrus.Fields{
		"actor":    actor,
		"role":     r.Header.Get(headerRole),
		"version":  cfg.Version,
		"client":   req.Client,
		"internal": req.Internal,
	})
	if warn := cfg.QuotaWarning(); warn != "" {
		entry.Warn(warn)
	} else {
		entry.Info("governance quotas updated")
	}
	configVersion.Set(float64(cfg.Version))
	writeJSON(w, http.StatusOK, GovernanceUpdateResponse{Governance: toGovernanceDTO(cfg), Notices: errorStrings(notices)})
}

// GetAlert builds the governance alert over all commitments.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.Service.Alert(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to build alert", err)
		return
	}
	recordAlert(alert)
	writeJSON(w, http.StatusOK, toAlertDTO(alert))
}

// =============================================================================
// COMMITMENTS
// =============================================================================

// ListCommitments returns all commitments.
func (h *Handler) ListCommitments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.Commitments(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to list commitments", err)
		return
	}
	dtos := make([]CommitmentDTO, len(list))
	for i, c := range list {
		dtos[i] = toCommitmentDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCommitment returns one commitment.
func (h *Handler) GetCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Commitment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get commitment", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTO(*c))
}

// CreateCommitment admits and stores a commitment.
func (h *Handler) CreateCommitment(w http.ResponseWriter, r *http.Request) {
	var doc factory.CommitmentDoc
	if err := h.decode(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	c, notices, err := h.Factory.Commitment(doc)
	if err != nil {
		h.writeServiceError(w, r, "Invalid commitment", err)
		return
	}

	created, res, err := h.Service.Create(r.Context(), c)
	recordDecision(c.Portfolio, res, "commit")
	if err != nil {
		h.writeServiceError(w, r, "Commitment not admitted", err)
		return
	}
	h.logger(r).WithFields(logrus.Fields{
		"commitment": created.ID,
		"portfolio":  created.Portfolio,
	}).Info("commitment admitted")
	writeJSON(w, http.StatusCreated, CommitmentWriteResponse{
		Commitment: toCommitmentDTO(*created),
		Validation: ToValidationResultDTO(res),
		Notices:    errorStrings(notices),
	})
}

// UpdateCommitment re-admits and stores an edited commitment.
func (h *Handler) UpdateCommitment(w http.ResponseWriter, r *http.Request) {
	var doc factory.CommitmentDoc
	if err := h.decode(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	doc.ID = chi.URLParam(r, "id")
	c, notices, err := h.Factory.Commitment(doc)
	if err != nil {
		h.writeServiceError(w, r, "Invalid commitment", err)
		return
	}

	updated, res, err := h.Service.Update(r.Context(), c)
	recordDecision(c.Portfolio, res, "commit")
	if err != nil {
		if errors.Is(err, capacity.ErrConcurrentModification) {
			writeConflicts.WithLabelValues("commitment").Inc()
		}
		h.writeServiceError(w, r, "Commitment not updated", err)
		return
	}
	writeJSON(w, http.StatusOK, CommitmentWriteResponse{
		Commitment: toCommitmentDTO(*updated),
		Validation: ToValidationResultDTO(res),
		Notices:    errorStrings(notices),
	})
}

// LockCommitment freezes FTE and dates.
func (h *Handler) LockCommitment(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

// UnlockCommitment releases a lock.
func (h *Handler) UnlockCommitment(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *Handler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	c, err := h.Service.SetLocked(r.Context(), chi.URLParam(r, "id"), locked)
	if err != nil {
		h.writeServiceError(w, r, "Failed to change lock", err)
		return
	}
	h.logger(r).WithFields(logrus.Fields{"commitment": c.ID, "locked": locked}).Info("commitment lock changed")
	writeJSON(w, http.StatusOK, toCommitmentDTO(*c))
}

// GetBuckets projects one commitment's activities into quarters or months.
func (h *Handler) GetBuckets(w http.ResponseWriter, r *http.Request) {
	scheme, err := schedule.ParseScheme(r.URL.Query().Get("scheme"))
	if err != nil {
		h.writeServiceError(w, r, "Invalid scheme", err)
		return
	}
	c, err := h.Service.Commitment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get commitment", err)
		return
	}
	slices := schedule.ProjectIntoBuckets(*c, scheme)
	writeJSON(w, http.StatusOK, BucketsResponse{
		CommitmentID: c.ID,
		Scheme:       string(scheme),
		Slices:       ToBucketSliceDTOs(slices),
		TotalWeeks:   schedule.TotalWeeks(slices).InexactFloat64(),
	})
}

// =============================================================================
// ROADMAP
// =============================================================================

// GetRoadmap returns the roadmap view for a year.
func (h *Handler) GetRoadmap(w http.ResponseWriter, r *http.Request) {
	q, err := h.roadmapQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid roadmap query", err)
		return
	}
	cfg, commitments, err := h.Service.Snapshot(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to load roadmap", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoadmapDTO(schedule.BuildRoadmap(commitments, &cfg, q)))
}

func (h *Handler) roadmapQuery(r *http.Request) (schedule.Query, error) {
	params := r.URL.Query()
	q := schedule.Query{Year: h.Service.Now().Year()}
	if y := params.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year < 1 {
			return q, fmt.Errorf("invalid year %q", y)
		}
		q.Year = year
	}

	var err error
	if q.Scheme, err = schedule.ParseScheme(params.Get("scheme")); err != nil {
		return q, err
	}
	if q.Quarter, err = schedule.ParseQuarter(params.Get("quarter")); err != nil {
		return q, err
	}
	switch t := strings.ToLower(params.Get("type")); t {
	case "", "all":
	case "client", "internal", "rnd":
		q.ProjectType = t
	default:
		return q, fmt.Errorf("invalid type %q (expected client|internal|rnd)", t)
	}
	return q, nil
}

// =============================================================================
// ROLES
// =============================================================================

// ListRoles returns the role catalog.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.Service.Roles(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to list roles", err)
		return
	}
	dtos := make([]RoleDTO, len(catalog))
	for i, d := range catalog {
		dtos[i] = toRoleDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRole adds a catalog role.
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var doc factory.RoleDoc
	if err := h.decode(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	def := h.Factory.Role(doc)
	if err := h.Service.AddRole(r.Context(), def); err != nil {
		h.writeServiceError(w, r, "Failed to add role", err)
		return
	}
	h.logger(r).WithField("role", def.Abbreviation).Info("role added")
	writeJSON(w, http.StatusCreated, toRoleDTO(def))
}

// UpdateRole replaces a catalog role.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	// The URL names the role; a body abbreviation is ignored.
	var doc factory.RoleDoc
	doc.Abbreviation = chi.URLParam(r, "id")
	if err := h.decode(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	doc.Abbreviation = chi.URLParam(r, "id")
	def := h.Factory.Role(doc)
	if err := h.Service.UpdateRole(r.Context(), def); err != nil {
		h.writeServiceError(w, r, "Failed to update role", err)
		return
	}
	h.logger(r).WithFields(logrus.Fields{"role": def.Abbreviation, "active": def.Active}).Info("role updated")
	writeJSON(w, http.StatusOK, toRoleDTO(def))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return h.validate.Struct(dst)
}

// writeServiceError maps engine errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var rejected *capacity.AdmissionError
	switch {
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:      message,
			Details:    err.Error(),
			Validation: ToValidationResultDTO(rejected.Result),
		})
	case capacity.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case capacity.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case capacity.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.logger(r).WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
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

func actorOf(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return r.Header.Get(headerActor)
}

func normalizeKeys(m map[string]float64) map[capacity.Role]float64 {
	out := make(map[capacity.Role]float64, len(m))
	for k, v := range m {
		out[capacity.NormalizeRole(k)] = v
	}
	return out
}
