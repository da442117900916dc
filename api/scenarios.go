/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with a role
	catalog, a governance config and a set of commitments. Each scenario
	is a YAML document parsed by factory.DocumentFactory.

AVAILABLE SCENARIOS (embedded from scenarios/*.yaml):

	balanced-roadmap:  Client and internal work inside quota, one R&D prototype
	client-crunch:     Frontend near its client quota; one project rejected
	custom-roles:      QA added, AI retired, quotas summing above 1.0

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Sync the role catalog (add, update, deactivate)
 3. Publish team and quotas
 4. Submit each commitment through admission; rejections are reported

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "client-crunch"}

ADDING NEW SCENARIOS:
 1. Drop a YAML file into scenarios/ (or SCENARIO_DIR at runtime)
 2. Give it a unique id

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - factory/documents.go: ScenarioDoc
  - handlers.go: Other handlers
*/
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/warp/capacity-engine/capacity"
	"github.com/warp/capacity-engine/factory"
)

//go:embed scenarios/*.yaml
var builtinScenarios embed.FS

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ReadScenarios parses every *.yaml file at the root of fsys.
func ReadScenarios(fsys fs.FS) ([]*factory.Scenario, error) {
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	f := factory.NewDocumentFactory()
	out := make([]*factory.Scenario, 0, len(files))
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		sc, _, err := f.ParseScenario(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// BuiltinScenarios returns the embedded demo scenarios.
func BuiltinScenarios() []*factory.Scenario {
	sub, err := fs.Sub(builtinScenarios, "scenarios")
	if err != nil {
		panic(err)
	}
	list, err := ReadScenarios(sub)
	if err != nil {
		panic(fmt.Sprintf("embedded scenarios: %v", err))
	}
	return list
}

// =============================================================================
// LOADING
// =============================================================================

// RejectedCommitment is a scenario commitment that failed admission.
type RejectedCommitment struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// ScenarioLoadResult summarizes a scenario load.
type ScenarioLoadResult struct {
	Scenario ScenarioDTO          `json:"scenario"`
	Admitted int                  `json:"admitted"`
	Rejected []RejectedCommitment `json:"rejected"`
	Notices  []string             `json:"notices,omitempty"`
}

// LoadScenario resets the store and replays a scenario through the service.
func LoadScenario(ctx context.Context, svc *capacity.Service, sc *factory.Scenario) (*ScenarioLoadResult, error) {
	if err := svc.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	if err := syncCatalog(ctx, svc, sc.Catalog); err != nil {
		return nil, err
	}

	res := &ScenarioLoadResult{
		Scenario: ScenarioDTO{ID: sc.ID, Name: sc.Name, Description: sc.Description},
		Rejected: []RejectedCommitment{},
	}
	_, notices, err := svc.UpdateTeam(ctx, sc.Team, "scenario:"+sc.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}
	res.Notices = append(res.Notices, errorStrings(notices)...)
	if sc.Quotas != nil {
		_, notices, err := svc.UpdateQuotas(ctx, sc.Quotas.Client, sc.Quotas.Internal, "scenario:"+sc.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("quotas: %w", err)
		}
		res.Notices = append(res.Notices, errorStrings(notices)...)
	}

	for _, c := range sc.Commitments {
		_, _, err := svc.Create(ctx, c)
		var rejected *capacity.AdmissionError
		switch {
		case err == nil:
			res.Admitted++
		case errors.As(err, &rejected):
			res.Rejected = append(res.Rejected, RejectedCommitment{Title: c.Title, Reason: rejected.Result.Reason})
		default:
			return nil, fmt.Errorf("commitment %q: %w", c.Title, err)
		}
	}
	return res, nil
}

// syncCatalog makes the stored catalog match the scenario's: new roles are
// added, listed ones replaced, and unlisted ones deactivated.
func syncCatalog(ctx context.Context, svc *capacity.Service, catalog capacity.RoleCatalog) error {
	existing, err := svc.Roles(ctx)
	if err != nil {
		return err
	}
	for _, d := range catalog {
		if _, ok := existing.Lookup(d.Abbreviation); ok {
			err = svc.UpdateRole(ctx, d)
		} else {
			err = svc.AddRole(ctx, d)
		}
		if err != nil {
			return fmt.Errorf("role %s: %w", d.Abbreviation, err)
		}
	}
	for _, d := range existing {
		if _, ok := catalog.Lookup(d.Abbreviation); !ok && d.Active {
			d.Active = false
			if err := svc.UpdateRole(ctx, d); err != nil {
				return fmt.Errorf("role %s: %w", d.Abbreviation, err)
			}
		}
	}
	return nil
}

// =============================================================================
// HANDLERS
// =============================================================================

// AddScenarios registers scenarios, replacing any with the same id.
func (h *Handler) AddScenarios(list ...*factory.Scenario) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.scenarios == nil {
		h.scenarios = make(map[string]*factory.Scenario)
	}
	for _, sc := range list {
		h.scenarios[sc.ID] = sc
	}
}

// Scenarios returns the registered scenarios ordered by id.
func (h *Handler) Scenarios() []*factory.Scenario {
	h.mu.RLock()
	list := make([]*factory.Scenario, 0, len(h.scenarios))
	for _, sc := range h.scenarios {
		list = append(list, sc)
	}
	h.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// SetCurrentScenario records which scenario was loaded last.
func (h *Handler) SetCurrentScenario(id string) {
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
}

func (h *Handler) scenario(id string) (*factory.Scenario, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sc, ok := h.scenarios[id]
	return sc, ok
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list := h.Scenarios()
	dtos := make([]ScenarioDTO, len(list))
	for i, sc := range list {
		dtos[i] = ScenarioDTO{ID: sc.ID, Name: sc.Name, Description: sc.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	sc, ok := h.scenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: sc.ID, Name: sc.Name, Description: sc.Description})
}

// LoadScenario loads a scenario by id.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	sc, ok := h.scenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	res, err := LoadScenario(r.Context(), h.Service, sc)
	if err != nil {
		h.writeServiceError(w, r, "Failed to load scenario", err)
		return
	}

	h.SetCurrentScenario(sc.ID)

	h.logger(r).WithFields(logrus.Fields{
		"scenario": sc.ID,
		"admitted": res.Admitted,
		"rejected": len(res.Rejected),
	}).Info("scenario loaded")
	writeJSON(w, http.StatusOK, res)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Reset(r.Context()); err != nil {
		h.writeServiceError(w, r, "Failed to reset database", err)
		return
	}

	h.SetCurrentScenario("")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
