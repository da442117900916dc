/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's decimal-based model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Admission:    ValidateRequest (factory.ProposalDoc), ValidationResultDTO
  Analysis:     AnalyzeRequest, AnalysisDTO
  Governance:   GovernanceDTO, UpdateTeamRequest, UpdateQuotasRequest
  Alert:        AlertDTO, RoleAlertDTO
  Commitments:  CommitmentDTO, CommitmentWriteResponse
  Roadmap:      RoadmapDTO, RoadmapItemDTO, BucketSliceDTO
  Roles:        RoleDTO (requests use factory.RoleDoc)
  Scenarios:    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request bodies carry go-playground/validator tags, checked in decode().
  Semantic checks (portfolio names, date order, role membership) stay in the
  engine so the CLI and HTTP paths agree.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/documents.go: Shared document types
*/
package api

import (
	"time"

	"github.com/warp/capacity-engine/capacity"
	"github.com/warp/capacity-engine/factory"
	"github.com/warp/capacity-engine/schedule"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	// Validation is set when an admission rejection caused the error.
	Validation *ValidationResultDTO `json:"validation,omitempty"`
}

// =============================================================================
// ADMISSION
// =============================================================================

// ValidateRequest is a speculative capacity check.
type ValidateRequest = factory.ProposalDoc

// WindowDTO is an inclusive date range.
type WindowDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ValidationResultDTO is the admission decision.
type ValidationResultDTO struct {
	Status        string                      `json:"status"`
	BreachRoles   []string                    `json:"breach_roles"`
	Utilization   map[string]capacity.Percent `json:"utilization_percentage"`
	Reason        string                      `json:"reason"`
	Window        WindowDTO                   `json:"window"`
	Usage         map[string]float64          `json:"usage"`
	Capacity      map[string]float64          `json:"capacity"`
	Unscheduled   int                         `json:"unscheduled_items"`
	InputWarnings []string                    `json:"input_warnings,omitempty"`
}

func toWindowDTO(w capacity.Window) WindowDTO {
	return WindowDTO{Start: w.Start.Format(capacity.DateLayout), End: w.End.Format(capacity.DateLayout)}
}

// ToValidationResultDTO converts a decision for the wire. Nil stays nil.
func ToValidationResultDTO(res *capacity.ValidationResult) *ValidationResultDTO {
	if res == nil {
		return nil
	}
	dto := &ValidationResultDTO{
		Status:        string(res.Status),
		BreachRoles:   roleStrings(res.BreachRoles),
		Utilization:   make(map[string]capacity.Percent, len(res.Utilization)),
		Reason:        res.Reason,
		Window:        toWindowDTO(res.Window),
		Usage:         floatsByRole(res.Usage),
		Capacity:      floatsByRole(res.Capacity),
		Unscheduled:   res.Existing.Unscheduled,
		InputWarnings: res.InputWarnings,
	}
	for r, p := range res.Utilization {
		dto.Utilization[string(r)] = p
	}
	return dto
}

// =============================================================================
// ACTIVITY ANALYSIS
// =============================================================================

// AnalyzeRequest asks for an activity-based FTE estimate.
type AnalyzeRequest struct {
	Activities    []string           `json:"activities" validate:"required,min=1"`
	RoleFTE       map[string]float64 `json:"role_fte"`
	DurationWeeks int                `json:"duration_weeks" validate:"gte=0"`
}

// RoleGapDTO compares proposed and estimated FTE for one role.
type RoleGapDTO struct {
	Role           string  `json:"role"`
	Activities     int     `json:"activities"`
	ProposedFTE    float64 `json:"proposed_fte"`
	RequiredFTE    float64 `json:"required_fte"`
	GapFTE         float64 `json:"gap_fte"`
	EstimatedWeeks int     `json:"estimated_weeks"`
	Severity       string  `json:"severity"`
}

// AnalysisDTO is the activity analysis result.
type AnalysisDTO struct {
	ValidationID    string         `json:"validation_id"`
	TotalActivities int            `json:"total_activities"`
	ByRole          map[string]int `json:"by_role"`
	ByComplexity    map[string]int `json:"by_complexity"`
	Gaps            []RoleGapDTO   `json:"gaps"`
	Message         string         `json:"message"`
	Confidence      float64        `json:"confidence"`
}

func toAnalysisDTO(a capacity.ResourceAnalysis) AnalysisDTO {
	dto := AnalysisDTO{
		ValidationID:    a.ValidationID,
		TotalActivities: a.TotalActivities,
		ByRole:          make(map[string]int, len(a.ByRole)),
		ByComplexity:    make(map[string]int, len(a.ByComplexity)),
		Gaps:            make([]RoleGapDTO, 0, len(a.Gaps)),
		Message:         a.Message,
		Confidence:      a.Confidence.InexactFloat64(),
	}
	for r, n := range a.ByRole {
		dto.ByRole[string(r)] = n
	}
	for c, n := range a.ByComplexity {
		dto.ByComplexity[string(c)] = n
	}
	for _, g := range a.Gaps {
		dto.Gaps = append(dto.Gaps, RoleGapDTO{
			Role:           string(g.Role),
			Activities:     g.Activities,
			ProposedFTE:    g.ProposedFTE.InexactFloat64(),
			RequiredFTE:    g.RequiredFTE.InexactFloat64(),
			GapFTE:         g.Gap.InexactFloat64(),
			EstimatedWeeks: g.EstimatedWeeks,
			Severity:       string(g.Severity),
		})
	}
	return dto
}

// =============================================================================
// GOVERNANCE
// =============================================================================

// TeamDTO is one role's staffing and derived weekly capacity.
type TeamDTO struct {
	TeamSize       int                `json:"team_size"`
	Efficiency     float64            `json:"efficiency"`
	WeeklyCapacity map[string]float64 `json:"weekly_capacity"`
}

// GovernanceDTO is a published governance snapshot.
type GovernanceDTO struct {
	Version        int64              `json:"version"`
	Roles          []string           `json:"roles"`
	Team           map[string]TeamDTO `json:"team"`
	Quotas         factory.QuotaDoc   `json:"quotas"`
	QuotaWarning   string             `json:"quota_warning,omitempty"`
	TeamUpdatedBy  string             `json:"team_updated_by,omitempty"`
	QuotaUpdatedBy string             `json:"quota_updated_by,omitempty"`
	UpdatedAt      string             `json:"updated_at,omitempty"`
}

func toGovernanceDTO(cfg capacity.GovernanceConfig) GovernanceDTO {
	dto := GovernanceDTO{
		Version: cfg.Version,
		Roles:   roleStrings(cfg.ActiveRoles()),
		Team:    make(map[string]TeamDTO, len(cfg.Roles)),
		Quotas: factory.QuotaDoc{
			Client:   cfg.Quota(capacity.PortfolioClient).InexactFloat64(),
			Internal: cfg.Quota(capacity.PortfolioInternal).InexactFloat64(),
		},
		QuotaWarning:   cfg.QuotaWarning(),
		TeamUpdatedBy:  cfg.TeamUpdatedBy,
		QuotaUpdatedBy: cfg.QuotaUpdatedBy,
	}
	if !cfg.UpdatedAt.IsZero() {
		dto.UpdatedAt = cfg.UpdatedAt.Format(time.RFC3339)
	}
	for r, rc := range cfg.Roles {
		weekly := make(map[string]float64, len(capacity.Portfolios))
		for _, p := range capacity.Portfolios {
			weekly[string(p)] = capacity.WeeklyCapacity(cfg, r, p).InexactFloat64()
		}
		dto.Team[string(r)] = TeamDTO{
			TeamSize:       rc.TeamSize,
			Efficiency:     rc.Efficiency.InexactFloat64(),
			WeeklyCapacity: weekly,
		}
	}
	return dto
}

// UpdateTeamRequest restaffs one or more roles.
type UpdateTeamRequest struct {
	Team            map[string]factory.TeamDoc `json:"team" validate:"required,min=1"`
	ExpectedVersion int64                      `json:"expected_version" validate:"gte=0"`
	UpdatedBy       string                     `json:"updated_by"`
}

// UpdateQuotasRequest replaces both portfolio quotas.
type UpdateQuotasRequest struct {
	Client          float64 `json:"client"`
	Internal        float64 `json:"internal"`
	ExpectedVersion int64   `json:"expected_version" validate:"gte=0"`
	UpdatedBy       string  `json:"updated_by"`
}

// GovernanceUpdateResponse carries the new snapshot and clamp notices.
type GovernanceUpdateResponse struct {
	Governance GovernanceDTO `json:"governance"`
	Notices    []string      `json:"notices,omitempty"`
}

// =============================================================================
// ALERT
// =============================================================================

// RoleAlertDTO is the worst week found for one role.
type RoleAlertDTO struct {
	Role             string            `json:"role"`
	Status           string            `json:"status"`
	Portfolio        string            `json:"portfolio,omitempty"`
	PeakWeek         string            `json:"peak_week,omitempty"`
	PeakDemandFTE    float64           `json:"peak_demand_fte"`
	CapacityFTE      float64           `json:"capacity_fte"`
	RequiredExtraFTE float64           `json:"required_extra_fte"`
	PeakUtilization  *capacity.Percent `json:"peak_utilization,omitempty"`
}

// AlertDTO is the governance alert.
type AlertDTO struct {
	Status                 string         `json:"status"`
	Message                string         `json:"message"`
	ShortageRoles          []string       `json:"shortage_roles"`
	WarningRoles           []string       `json:"warning_roles"`
	UnscheduledDemandItems int            `json:"unscheduled_demand_items"`
	Roles                  []RoleAlertDTO `json:"roles"`
}

func toAlertDTO(a capacity.GovernanceAlert) AlertDTO {
	dto := AlertDTO{
		Status:                 string(a.Status),
		Message:                a.Message,
		ShortageRoles:          roleStrings(a.ShortageRoles),
		WarningRoles:           roleStrings(a.WarningRoles),
		UnscheduledDemandItems: a.UnscheduledDemandItems,
		Roles:                  make([]RoleAlertDTO, 0, len(a.RoleAlerts)),
	}
	for _, ra := range a.RoleAlerts {
		dto.Roles = append(dto.Roles, RoleAlertDTO{
			Role:             string(ra.Role),
			Status:           string(ra.Status),
			Portfolio:        string(ra.Portfolio),
			PeakWeek:         ra.PeakWeek,
			PeakDemandFTE:    ra.PeakDemandFTE.InexactFloat64(),
			CapacityFTE:      ra.CapacityFTE.InexactFloat64(),
			RequiredExtraFTE: ra.RequiredExtraFTE.InexactFloat64(),
			PeakUtilization:  ra.PeakUtilization,
		})
	}
	return dto
}

// =============================================================================
// COMMITMENTS
// =============================================================================

// CommitmentDTO is a stored commitment.
type CommitmentDTO struct {
	factory.CommitmentDoc
	ProjectType   string `json:"project_type"`
	Scheduled     bool   `json:"scheduled"`
	DurationWeeks int    `json:"duration_weeks"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func toCommitmentDTO(c capacity.Commitment) CommitmentDTO {
	dto := CommitmentDTO{
		CommitmentDoc: factory.CommitmentDocFrom(c),
		ProjectType:   c.ProjectType(),
		Scheduled:     c.Scheduled(),
		DurationWeeks: c.DurationWeeks(),
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	if !c.UpdatedAt.IsZero() {
		dto.UpdatedAt = c.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// CommitmentWriteResponse is returned by create and update.
type CommitmentWriteResponse struct {
	Commitment CommitmentDTO        `json:"commitment"`
	Validation *ValidationResultDTO `json:"validation,omitempty"`
	Notices    []string             `json:"notices,omitempty"`
}

// =============================================================================
// ROADMAP
// =============================================================================

// BucketSliceDTO is one activity's share of a commitment's duration.
type BucketSliceDTO struct {
	Activity       string  `json:"activity"`
	Bucket         string  `json:"bucket"`
	EstimatedWeeks float64 `json:"estimated_weeks"`
}

// BucketsResponse is the projection of one commitment.
type BucketsResponse struct {
	CommitmentID string           `json:"commitment_id"`
	Scheme       string           `json:"scheme"`
	Slices       []BucketSliceDTO `json:"slices"`
	TotalWeeks   float64          `json:"total_weeks"`
}

// ToBucketSliceDTOs converts projection slices for the wire.
func ToBucketSliceDTOs(slices []schedule.BucketSlice) []BucketSliceDTO {
	out := make([]BucketSliceDTO, len(slices))
	for i, s := range slices {
		out[i] = BucketSliceDTO{Activity: s.Activity, Bucket: s.Bucket, EstimatedWeeks: s.EstimatedWeeks.InexactFloat64()}
	}
	return out
}

// BarDTO is a Gantt bar in percent of its axis.
type BarDTO struct {
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// RoadmapItemDTO is one commitment on the roadmap.
type RoadmapItemDTO struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Portfolio   string           `json:"portfolio"`
	ProjectType string           `json:"project_type"`
	Weeks       int              `json:"weeks"`
	Resources   int              `json:"resources"`
	Effort      float64          `json:"effort"`
	Marks       [12]string       `json:"months"`
	YearBar     *BarDTO          `json:"year_bar,omitempty"`
	Slices      []BucketSliceDTO `json:"slices"`
}

// QuarterGroupDTO lists the items touching one quarter.
type QuarterGroupDTO struct {
	Quarter string            `json:"quarter"`
	Axis    WindowDTO         `json:"axis"`
	Items   []string          `json:"items"`
	Bars    map[string]BarDTO `json:"bars"`
}

// TypeGroupDTO lists the items of one project type.
type TypeGroupDTO struct {
	Label string   `json:"label"`
	Items []string `json:"items"`
}

// RoadmapDTO is the roadmap view.
type RoadmapDTO struct {
	Year     int                `json:"year"`
	Scheme   string             `json:"scheme"`
	Quarter  string             `json:"quarter,omitempty"`
	Items    []RoadmapItemDTO   `json:"items"`
	Quarters []QuarterGroupDTO  `json:"quarters"`
	Types    []TypeGroupDTO     `json:"types"`
	Metrics  RoadmapMetricsDTO  `json:"metrics"`
	Insights RoadmapInsightsDTO `json:"insights"`
}

// RoadmapMetricsDTO summarizes the visible items.
type RoadmapMetricsDTO struct {
	Items      int     `json:"items"`
	Activities int     `json:"activities"`
	Effort     float64 `json:"effort"`
	Resources  int     `json:"resources"`
}

// RoadmapInsightsDTO compares annual demand with annual capacity.
type RoadmapInsightsDTO struct {
	Context     string                      `json:"context"`
	Demand      map[string]float64          `json:"demand"`
	Capacity    map[string]float64          `json:"capacity"`
	Utilization map[string]capacity.Percent `json:"utilization_percentage"`
}

func toRoadmapDTO(rm schedule.Roadmap) RoadmapDTO {
	dto := RoadmapDTO{
		Year:     rm.Query.Year,
		Scheme:   string(rm.Query.Scheme),
		Items:    make([]RoadmapItemDTO, 0, len(rm.Items)),
		Quarters: make([]QuarterGroupDTO, 0, len(rm.Quarters)),
		Types:    make([]TypeGroupDTO, 0, len(rm.Types)),
		Metrics: RoadmapMetricsDTO{
			Items:      rm.Metrics.Items,
			Activities: rm.Metrics.Activities,
			Effort:     rm.Metrics.Effort.InexactFloat64(),
			Resources:  rm.Metrics.Resources,
		},
		Insights: RoadmapInsightsDTO{
			Context:     rm.Insights.Context,
			Demand:      floatsByRole(rm.Insights.Demand),
			Capacity:    floatsByRole(rm.Insights.Capacity),
			Utilization: make(map[string]capacity.Percent, len(rm.Insights.Utilization)),
		},
	}
	if rm.Query.Quarter != 0 {
		dto.Quarter = rm.Query.Quarter.String()
	}
	for r, p := range rm.Insights.Utilization {
		dto.Insights.Utilization[string(r)] = p
	}
	for _, it := range rm.Items {
		item := RoadmapItemDTO{
			ID:          it.Commitment.ID,
			Title:       it.Commitment.Title,
			Portfolio:   string(it.Commitment.Portfolio),
			ProjectType: it.ProjectType,
			Weeks:       it.Weeks,
			Resources:   it.Resources,
			Effort:      it.Effort.InexactFloat64(),
			Marks:       it.Marks,
			Slices:      ToBucketSliceDTOs(it.Slices),
		}
		if it.YearBar != nil {
			item.YearBar = &BarDTO{Left: it.YearBar.Left, Width: it.YearBar.Width}
		}
		dto.Items = append(dto.Items, item)
	}
	for _, qg := range rm.Quarters {
		g := QuarterGroupDTO{
			Quarter: qg.Quarter.String(),
			Axis:    toWindowDTO(qg.Axis),
			Items:   itemIDs(qg.Items),
			Bars:    make(map[string]BarDTO, len(qg.Bars)),
		}
		for id, b := range qg.Bars {
			g.Bars[id] = BarDTO{Left: b.Left, Width: b.Width}
		}
		dto.Quarters = append(dto.Quarters, g)
	}
	for _, tg := range rm.Types {
		dto.Types = append(dto.Types, TypeGroupDTO{Label: tg.Label, Items: itemIDs(tg.Items)})
	}
	return dto
}

func itemIDs(items []schedule.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.Commitment.ID
	}
	return ids
}

// =============================================================================
// ROLES
// =============================================================================

// RoleDTO is a catalog role.
type RoleDTO struct {
	Abbreviation      string  `json:"abbreviation"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	Category          string  `json:"category"`
	DefaultEfficiency float64 `json:"default_efficiency"`
	Active            bool    `json:"active"`
	DisplayOrder      int     `json:"display_order"`
	Color             string  `json:"color,omitempty"`
}

func toRoleDTO(d capacity.RoleDefinition) RoleDTO {
	return RoleDTO{
		Abbreviation:      string(d.Abbreviation),
		Name:              d.Name,
		Description:       d.Description,
		Category:          d.Category,
		DefaultEfficiency: d.DefaultEfficiency.InexactFloat64(),
		Active:            d.Active,
		DisplayOrder:      d.DisplayOrder,
		Color:             d.Color,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// HELPERS
// =============================================================================

func roleStrings(roles []capacity.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func floatsByRole(t capacity.RoleTotals) map[string]float64 {
	out := make(map[string]float64, len(t))
	for r, v := range t {
		out[string(r)] = v.InexactFloat64()
	}
	return out
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
