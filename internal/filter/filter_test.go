package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"obrawatch/internal/model"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }
func floatPtr(f float64) *float64 { return &f }

func sampleProjects() []model.UnifiedProject {
	return []model.UnifiedProject{
		{
			WorkID: "1", WorkName: "Puente La Iguaná", Department: "Infraestructura", District: "Robledo",
			StrategicProject: "Parques del Río", CurrentPhase: "EJECUCIÓN", WorkState: "En ejecución",
			UpdatedTotalCost: 2_000_000_000, TotalProgress: 40, HasAlerts: true, TotalAlerts: 2,
			CriticalAlertCount: 1, AlertSeverity: strPtr("Crítica"), RequiresAttention: true,
		},
		{
			WorkID: "2", WorkName: "Colegio San Javier", Department: "Educación", District: "San Javier",
			StrategicProject: "Escuelas de calidad", CurrentPhase: "DISEÑOS", WorkState: "En ejecución",
			TotalCost: 800_000_000, TotalProgress: 5, HasAlerts: true, TotalAlerts: 1,
			AlertSeverity: strPtr("media"), AlertDescription: "Licencia pendiente", RequiresAttention: true,
		},
		{
			WorkID: "3", WorkName: "Centro de salud Belén", Department: "Salud", District: "Belén",
			CurrentPhase: "ENTREGA FINAL", WorkState: "Terminada", UpdatedTotalCost: 500_000_000,
			TotalProgress: 100, Delivered: true,
		},
		{
			WorkID: "4", WorkName: "Vía Santa Elena", Department: "infraestructura", District: "Santa Elena",
			StrategicProject: "Parques del Río", WorkState: "Suspendida", UpdatedTotalCost: 1_200_000_000,
			TotalProgress: 60, IsOverdue: true, RequiresAttention: true,
		},
	}
}

func ids(ps []model.UnifiedProject) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.WorkID)
	}
	return out
}

func TestProjectsEmptyFilterIsIdentity(t *testing.T) {
	in := sampleProjects()
	if diff := cmp.Diff(in, Projects(in, ProjectFilters{})); diff != "" {
		t.Fatalf("empty filter changed input (-want +got):\n%s", diff)
	}
}

func TestProjectsPredicates(t *testing.T) {
	in := sampleProjects()
	cases := []struct {
		name string
		f    ProjectFilters
		want []string
	}{
		{"severity bucket", ProjectFilters{Severities: []string{"alta"}}, []string{"1"}},
		{"department folded", ProjectFilters{Departments: []string{"INFRAESTRUCTURA"}}, []string{"1", "4"}},
		{"phase", ProjectFilters{Phases: []string{"diseños"}}, []string{"2"}},
		{"state and strategic", ProjectFilters{States: []string{"Suspendida"}, StrategicProjects: []string{"Parques del Rio"}}, []string{"4"}},
		{"budget range inclusive", ProjectFilters{BudgetMin: floatPtr(800_000_000), BudgetMax: floatPtr(1_200_000_000)}, []string{"2", "4"}},
		{"progress range", ProjectFilters{ProgressMin: floatPtr(50)}, []string{"3", "4"}},
		{"search alert description", ProjectFilters{Search: "licencia"}, []string{"2"}},
		{"search accents", ProjectFilters{Search: "belen"}, []string{"3"}},
		{"only without alerts", ProjectFilters{OnlyWithoutAlerts: boolPtr(true)}, []string{"3", "4"}},
		{"has alerts false", ProjectFilters{HasAlerts: boolPtr(false)}, []string{"3", "4"}},
		{"only with alerts unset when false", ProjectFilters{OnlyWithAlerts: boolPtr(false)}, []string{"1", "2", "3", "4"}},
		{"delivered", ProjectFilters{Delivered: boolPtr(true)}, []string{"3"}},
		{"overdue", ProjectFilters{Overdue: boolPtr(true)}, []string{"4"}},
		{"attention false", ProjectFilters{RequiresAttention: boolPtr(false)}, []string{"3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, ids(Projects(in, tc.f))); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func sampleAlerts() []model.MappedAlert {
	return []model.MappedAlert{
		{ID: "a", WorkID: "1", Department: "Infraestructura", Severity: strPtr("CRÍTICA"), RiskImpact: "Tiempo", Description: "Retraso vigas"},
		{ID: "b", WorkID: "1", Department: "Infraestructura", Severity: strPtr("leve"), RiskImpact: "Social"},
		{ID: "c", WorkID: "2", Department: "Educación", Severity: strPtr("Moderada"), RiskImpact: "Costo"},
		{ID: "d", WorkID: "3", Department: "Salud", Severity: strPtr("baja"), RiskImpact: "Tiempo"},
		{ID: "e", WorkID: "3", Department: "Salud"},
	}
}

func alertIDs(as []model.MappedAlert) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.ID)
	}
	return out
}

func TestAlertsDefaultViewHidesLight(t *testing.T) {
	got := alertIDs(Alerts(sampleAlerts(), AlertFilters{}))
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestAlertsExplicitSeverity(t *testing.T) {
	got := alertIDs(Alerts(sampleAlerts(), AlertFilters{Severities: []string{"leve"}}))
	assert.Equal(t, []string{"b", "d"}, got)
}

func TestAlertsOtherPredicates(t *testing.T) {
	in := sampleAlerts()
	assert.Equal(t, []string{"a"}, alertIDs(Alerts(in, AlertFilters{Impacts: []string{"tiempo"}})))
	assert.Equal(t, []string{"c"}, alertIDs(Alerts(in, AlertFilters{Departments: []string{"educacion"}})))
	assert.Equal(t, []string{"a"}, alertIDs(Alerts(in, AlertFilters{Search: "VIGAS"})))
	assert.Empty(t, Alerts(in, AlertFilters{WorkID: "3"}))
	assert.Equal(t, []string{"d"}, alertIDs(Alerts(in, AlertFilters{WorkID: "3", Severities: []string{"low"}})))
}

func TestStatsIgnoreSeverityFilter(t *testing.T) {
	in := sampleAlerts()
	want := AlertStats{Total: 5, Critical: 1, Moderate: 1, Light: 2, Unclassified: 1, Works: 3, Departments: 3}
	assert.Equal(t, want, Stats(in, AlertFilters{}))
	assert.Equal(t, want, Stats(in, AlertFilters{Severities: []string{"crítica"}}))

	infra := Stats(in, AlertFilters{Departments: []string{"Infraestructura"}})
	assert.Equal(t, AlertStats{Total: 2, Critical: 1, Light: 1, Works: 1, Departments: 1}, infra)
}

func TestGroupByDepartment(t *testing.T) {
	got := GroupByDepartment(sampleProjects())
	want := []GroupStats{
		{Name: "Infraestructura", Projects: 2, Alerts: 2, Critical: 1, Attention: 2, Overdue: 1, Budget: 3_200_000_000, AvgProgress: 50},
		{Name: "Educación", Projects: 1, Alerts: 1, Attention: 1, Budget: 800_000_000, AvgProgress: 5},
		{Name: "Salud", Projects: 1, Budget: 500_000_000, AvgProgress: 100},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupByStrategicProjectUnassigned(t *testing.T) {
	got := GroupByStrategicProject(sampleProjects())
	names := make([]string, 0, len(got))
	for _, g := range got {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"Parques del Río", "Escuelas de calidad", Unassigned}, names)
}
