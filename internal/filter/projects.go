package filter

import (
	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
	"obrawatch/internal/severity"
)

// ProjectFilters are AND-combined. Empty slices, empty strings and nil
// pointers match everything.
type ProjectFilters struct {
	Severities        []string `json:"severities,omitempty"`
	Phases            []string `json:"phases,omitempty"`
	States            []string `json:"states,omitempty"`
	Departments       []string `json:"departments,omitempty"`
	Districts         []string `json:"districts,omitempty"`
	StrategicProjects []string `json:"strategic_projects,omitempty"`
	InterventionTypes []string `json:"intervention_types,omitempty"`

	BudgetMin   *float64 `json:"budget_min,omitempty"`
	BudgetMax   *float64 `json:"budget_max,omitempty"`
	ProgressMin *float64 `json:"progress_min,omitempty"`
	ProgressMax *float64 `json:"progress_max,omitempty"`

	Search string `json:"search,omitempty"`

	HasAlerts         *bool `json:"has_alerts,omitempty"`
	OnlyWithAlerts    *bool `json:"only_with_alerts,omitempty"`
	OnlyWithoutAlerts *bool `json:"only_without_alerts,omitempty"`
	Delivered         *bool `json:"delivered,omitempty"`
	Overdue           *bool `json:"overdue,omitempty"`
	RequiresAttention *bool `json:"requires_attention,omitempty"`
}

// Projects keeps the projects matching every set filter, in input order.
func Projects(projects []model.UnifiedProject, f ProjectFilters) []model.UnifiedProject {
	out := make([]model.UnifiedProject, 0, len(projects))
	for _, p := range projects {
		if MatchProject(p, f) {
			out = append(out, p)
		}
	}
	return out
}

func MatchProject(p model.UnifiedProject, f ProjectFilters) bool {
	if len(f.Severities) > 0 && !inBuckets(severity.BucketOf(valueOf(p.AlertSeverity)), f.Severities) {
		return false
	}
	if !inSet(f.Phases, p.CurrentPhase) ||
		!inSet(f.States, p.WorkState) ||
		!inSet(f.Departments, p.Department) ||
		!inSet(f.Districts, p.District) ||
		!inSet(f.StrategicProjects, p.StrategicProject) ||
		!inSet(f.InterventionTypes, p.InterventionType) {
		return false
	}

	budget := Budget(p)
	if f.BudgetMin != nil && budget < *f.BudgetMin {
		return false
	}
	if f.BudgetMax != nil && budget > *f.BudgetMax {
		return false
	}
	if f.ProgressMin != nil && p.TotalProgress < *f.ProgressMin {
		return false
	}
	if f.ProgressMax != nil && p.TotalProgress > *f.ProgressMax {
		return false
	}

	if f.Search != "" && !anyContains(f.Search,
		p.WorkName, p.Department, p.District, p.StrategicProject,
		p.AlertDescription, p.InterventionType) {
		return false
	}

	if f.HasAlerts != nil && p.HasAlerts != *f.HasAlerts {
		return false
	}
	if isTrue(f.OnlyWithAlerts) && !p.HasAlerts {
		return false
	}
	if isTrue(f.OnlyWithoutAlerts) && p.HasAlerts {
		return false
	}
	if f.Delivered != nil && p.Delivered != *f.Delivered {
		return false
	}
	if f.Overdue != nil && p.IsOverdue != *f.Overdue {
		return false
	}
	if f.RequiresAttention != nil && p.RequiresAttention != *f.RequiresAttention {
		return false
	}
	return true
}

// Budget is the updated total cost, or the original cost when no update exists.
func Budget(p model.UnifiedProject) float64 {
	if p.UpdatedTotalCost != 0 {
		return p.UpdatedTotalCost
	}
	return p.TotalCost
}

func inSet(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	folded := normalize.Fold(value)
	for _, s := range set {
		if normalize.Fold(s) == folded {
			return true
		}
	}
	return false
}

// inBuckets compares severities by canonical bucket, so a filter of "alta"
// also matches "CRÍTICA".
func inBuckets(b severity.Bucket, set []string) bool {
	if b == severity.BucketNone {
		return false
	}
	for _, s := range set {
		if severity.BucketOf(s) == b {
			return true
		}
	}
	return false
}

func anyContains(needle string, haystacks ...string) bool {
	for _, h := range haystacks {
		if normalize.ContainsFold(h, needle) {
			return true
		}
	}
	return false
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
