package filter

import (
	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
	"obrawatch/internal/severity"
)

type AlertFilters struct {
	Search            string   `json:"search,omitempty"`
	Departments       []string `json:"departments,omitempty"`
	Severities        []string `json:"severities,omitempty"`
	Impacts           []string `json:"impacts,omitempty"`
	Districts         []string `json:"districts,omitempty"`
	StrategicProjects []string `json:"strategic_projects,omitempty"`
	WorkID            string   `json:"work_id,omitempty"`
}

// Alerts applies every filter. Without an explicit severity filter only the
// critical and moderate buckets are kept.
func Alerts(alerts []model.MappedAlert, f AlertFilters) []model.MappedAlert {
	out := make([]model.MappedAlert, 0, len(alerts))
	for _, a := range alerts {
		if !matchAlert(a, f) {
			continue
		}
		b := severity.BucketOfAlert(a)
		if len(f.Severities) == 0 {
			if b != severity.BucketCritical && b != severity.BucketModerate {
				continue
			}
		} else if !inBuckets(b, f.Severities) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// AlertStats backs the summary cards. Severity filters never apply to it so
// the totals stay put while the user switches severity views.
type AlertStats struct {
	Total        int `json:"total"`
	Critical     int `json:"critical"`
	Moderate     int `json:"moderate"`
	Light        int `json:"light"`
	Unclassified int `json:"unclassified"`
	Works        int `json:"works"`
	Departments  int `json:"departments"`
}

func Stats(alerts []model.MappedAlert, f AlertFilters) AlertStats {
	var s AlertStats
	works := map[string]struct{}{}
	departments := map[string]struct{}{}
	for _, a := range alerts {
		if !matchAlert(a, f) {
			continue
		}
		s.Total++
		switch severity.BucketOfAlert(a) {
		case severity.BucketCritical:
			s.Critical++
		case severity.BucketModerate:
			s.Moderate++
		case severity.BucketLight:
			s.Light++
		default:
			s.Unclassified++
		}
		if a.WorkID != "" {
			works[a.WorkID] = struct{}{}
		}
		if a.Department != "" {
			departments[normalize.Fold(a.Department)] = struct{}{}
		}
	}
	s.Works = len(works)
	s.Departments = len(departments)
	return s
}

// matchAlert checks every predicate except severity.
func matchAlert(a model.MappedAlert, f AlertFilters) bool {
	if f.WorkID != "" && a.WorkID != f.WorkID {
		return false
	}
	if !inSet(f.Departments, a.Department) ||
		!inSet(f.Impacts, a.RiskImpact) ||
		!inSet(f.Districts, a.District) ||
		!inSet(f.StrategicProjects, a.StrategicProject) {
		return false
	}
	if f.Search != "" && !anyContains(f.Search,
		a.WorkName, a.Description, a.Department, a.District,
		a.StrategicProject, a.WorkID, a.RiskImpact) {
		return false
	}
	return true
}
