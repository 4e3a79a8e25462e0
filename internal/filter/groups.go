package filter

import (
	"cmp"
	"slices"
	"strings"

	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
)

const Unassigned = "Sin asignar"

type GroupStats struct {
	Name        string  `json:"name"`
	Projects    int     `json:"projects"`
	Alerts      int     `json:"alerts"`
	Critical    int     `json:"critical"`
	Attention   int     `json:"attention"`
	Overdue     int     `json:"overdue"`
	Budget      float64 `json:"budget"`
	AvgProgress float64 `json:"avg_progress"`
}

func GroupByDepartment(projects []model.UnifiedProject) []GroupStats {
	return groupBy(projects, func(p model.UnifiedProject) string { return p.Department })
}

func GroupByStrategicProject(projects []model.UnifiedProject) []GroupStats {
	return groupBy(projects, func(p model.UnifiedProject) string { return p.StrategicProject })
}

// groupBy aggregates per key ignoring case and accents. The first spelling
// seen names the group. Largest groups come first, ties by name.
func groupBy(projects []model.UnifiedProject, key func(model.UnifiedProject) string) []GroupStats {
	index := map[string]int{}
	var groups []GroupStats
	progress := []float64{}
	for _, p := range projects {
		name := strings.TrimSpace(key(p))
		if name == "" {
			name = Unassigned
		}
		folded := normalize.Fold(name)
		i, ok := index[folded]
		if !ok {
			i = len(groups)
			index[folded] = i
			groups = append(groups, GroupStats{Name: name})
			progress = append(progress, 0)
		}
		g := &groups[i]
		g.Projects++
		g.Alerts += p.TotalAlerts
		g.Critical += p.CriticalAlertCount
		if p.RequiresAttention {
			g.Attention++
		}
		if p.IsOverdue {
			g.Overdue++
		}
		g.Budget += Budget(p)
		progress[i] += p.TotalProgress
	}
	for i := range groups {
		groups[i].AvgProgress = progress[i] / float64(groups[i].Projects)
	}
	slices.SortStableFunc(groups, func(a, b GroupStats) int {
		if c := cmp.Compare(b.Projects, a.Projects); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return groups
}
