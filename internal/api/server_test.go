package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obrawatch/internal/config"
	"obrawatch/internal/engine"
	"obrawatch/internal/history"
	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
	"obrawatch/internal/publish"
	"obrawatch/internal/severity"
	"obrawatch/internal/telemetry"
	"obrawatch/internal/unified"
)

type fakeBackend struct {
	result     unified.Result
	err        error
	changes    history.Changes
	thresholds model.SeverityThresholds
	refreshErr error
	resets     int
	feed       *publish.Feed
}

func (f *fakeBackend) Projects(context.Context) (unified.Result, error) { return f.result, f.err }
func (f *fakeBackend) Changes(context.Context) (history.Changes, error) { return f.changes, nil }
func (f *fakeBackend) Thresholds() model.SeverityThresholds { return f.thresholds }
func (f *fakeBackend) SetThresholds(th model.SeverityThresholds) { f.thresholds = th }
func (f *fakeBackend) Started() time.Time { return time.Now().Add(-time.Hour) }
func (f *fakeBackend) Feed() *publish.Feed { return f.feed }

func (f *fakeBackend) Distribution(alerts []model.MappedAlert) severity.Distribution {
	return severity.AnalyzeDistribution(alerts, f.thresholds)
}

func (f *fakeBackend) ForceRefresh(context.Context) (engine.State, error) {
	if f.refreshErr != nil {
		return engine.State{}, f.refreshErr
	}
	return engine.State{Projects: len(f.result.Projects), RefreshedAt: time.Now()}, nil
}

func (f *fakeBackend) Reset(context.Context) error {
	f.resets++
	return nil
}

func (f *fakeBackend) State() (engine.State, bool) {
	return engine.State{Projects: len(f.result.Projects), RefreshedAt: time.Now()}, true
}

func newBackend() *fakeBackend {
	alerts := normalize.MapAlerts([]model.RawRecord{
		{"id": "A1", "ID OBRA": "1", "GRAVEDAD": "Alta", "DEPENDENCIA": "Secretaría de Salud"},
		{"id": "A2", "ID OBRA": "1", "GRAVEDAD": "Leve", "DEPENDENCIA": "Secretaría de Salud"},
		{"id": "A3", "ID OBRA": "2", "GRAVEDAD": "Media", "DEPENDENCIA": "INDER"},
	})
	works := []model.RawRecord{
		{"id": "1", "NOMBRE": "Hospital", "DEPENDENCIA": "Secretaría de Salud", "PORCENTAJE EJECUCIÓN FINANCIERA": 40.0},
		{"id": "2", "NOMBRE": "Cancha", "DEPENDENCIA": "INDER", "PORCENTAJE EJECUCIÓN FINANCIERA": 80.0},
		{"id": "3", "NOMBRE": "Parque", "DEPENDENCIA": "INDER", "PORCENTAJE EJECUCIÓN FINANCIERA": 5.0},
	}
	projects, orphaned := unified.Join(alerts, works, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC))
	feed := publish.NewFeed(10)
	feed.Add(publish.Event{ID: "e1", Kind: publish.KindAttention, WorkID: "1", OccurredAt: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)})
	return &fakeBackend{
		result:     unified.Result{Projects: projects, Orphaned: orphaned, Alerts: alerts},
		thresholds: config.DefaultThresholds(),
		feed:       feed,
		changes: history.Changes{Budget: []model.ChangeRecord{{
			WorkID: "1", FieldChanged: "costo_total", OldValue: "1000000000", NewValue: "1600000000",
			Kind: model.ChangeBudget, Magnitude: 6e8, ChangedAt: time.Now().Add(-48 * time.Hour),
		}}, Records: 1},
	}
}

func newTestServer(b Backend) http.Handler {
	return NewServer(config.NewStaticManager(nil), b, telemetry.New(), nil, "test").Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndStatus(t *testing.T) {
	h := newTestServer(newBackend())
	rec, body := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", body["version"])
	cache := body["cache"].(map[string]any)
	assert.Equal(t, "memory", cache["backend"])
	assert.NotNil(t, body["last_refresh"])

	rec, _ = do(t, h, http.MethodPost, "/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProjectsWithFilters(t *testing.T) {
	h := newTestServer(newBackend())
	rec, body := do(t, h, http.MethodGet, "/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["count"])

	_, body = do(t, h, http.MethodGet, "/projects?department=inder&progress_min=50", "")
	assert.EqualValues(t, 1, body["count"])

	_, body = do(t, h, http.MethodGet, "/projects?requires_attention=true", "")
	assert.EqualValues(t, 2, body["count"])

	rec, _ = do(t, h, http.MethodGet, "/projects?budget_min=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectDetail(t *testing.T) {
	h := newTestServer(newBackend())
	rec, body := do(t, h, http.MethodGet, "/projects/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["alerts"], 2)

	rec, _ = do(t, h, http.MethodGet, "/projects/404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertsDefaultViewAndStats(t *testing.T) {
	h := newTestServer(newBackend())
	_, body := do(t, h, http.MethodGet, "/alerts", "")
	assert.EqualValues(t, 2, body["count"])
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 3, stats["total"])

	_, body = do(t, h, http.MethodGet, "/alerts?severity=leve,alta", "")
	assert.EqualValues(t, 2, body["count"])
}

func TestGroupsAndDistribution(t *testing.T) {
	h := newTestServer(newBackend())
	_, body := do(t, h, http.MethodGet, "/groups/department", "")
	assert.EqualValues(t, 2, body["count"])
	groups := body["groups"].([]any)
	assert.Equal(t, "INDER", groups[0].(map[string]any)["name"])

	_, body = do(t, h, http.MethodGet, "/severity/distribution", "")
	dist := body["distribution"].(map[string]any)
	assert.EqualValues(t, 3, dist["total"])
	assert.EqualValues(t, 1, dist["critical"])
}

func TestChangesAndFeed(t *testing.T) {
	h := newTestServer(newBackend())
	_, body := do(t, h, http.MethodGet, "/changes", "")
	budget := body["budget"].([]any)
	require.Len(t, budget, 1)
	assert.Contains(t, budget[0].(map[string]any)["summary"], "$1,600,000,000")

	_, body = do(t, h, http.MethodGet, "/feed?limit=5", "")
	assert.EqualValues(t, 1, body["count"])

	rec, _ := do(t, h, http.MethodGet, "/feed?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThresholdsUpdate(t *testing.T) {
	b := newBackend()
	h := newTestServer(b)
	rec, _ := do(t, h, http.MethodPost, "/config/thresholds", `{"critical":{"gravedad":[" Media ",""]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"media"}, b.thresholds.Critical.Gravedad)

	rec, _ = do(t, h, http.MethodPost, "/config/thresholds", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/config/thresholds", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, body := do(t, h, http.MethodGet, "/config/thresholds", "")
	th := body["thresholds"].(map[string]any)["critical"].(map[string]any)
	assert.Equal(t, []any{"media"}, th["gravedad"])
}

func TestThresholdsUpdatePersistsToConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obrawatch.yaml")
	require.NoError(t, config.Save(path, config.DefaultConfig()))
	mgr, err := config.NewManager(path)
	require.NoError(t, err)

	b := newBackend()
	h := NewServer(mgr, b, telemetry.New(), nil, "test").Handler()
	rec, _ := do(t, h, http.MethodPost, "/config/thresholds", `{"critical":{"gravedad":["Media"]},"warning":{"gravedad":["leve"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"media"}, b.thresholds.Critical.Gravedad)
	assert.Equal(t, []string{"media"}, mgr.Get().Severity.Critical.Gravedad)

	stored, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"media"}, stored.Severity.Critical.Gravedad)
	assert.Equal(t, []string{"leve"}, stored.Severity.Warning.Gravedad)
}

func TestThresholdsUpdateFailsWhenConfigCannotBeWritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obrawatch.yaml")
	require.NoError(t, config.Save(path, config.DefaultConfig()))
	mgr, err := config.NewManager(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	b := newBackend()
	h := NewServer(mgr, b, telemetry.New(), nil, "test").Handler()
	rec, _ := do(t, h, http.MethodPost, "/config/thresholds", `{"critical":{"gravedad":["media"]}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, config.DefaultThresholds(), b.thresholds)
}

func TestAdminEndpoints(t *testing.T) {
	b := newBackend()
	h := newTestServer(b)
	rec, _ := do(t, h, http.MethodPost, "/admin/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	b.refreshErr = engine.ErrCooldown
	rec, _ = do(t, h, http.MethodPost, "/admin/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	b.refreshErr = errors.New("upstream down")
	rec, _ = do(t, h, http.MethodPost, "/admin/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/admin/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, b.resets)

	rec, _ = do(t, h, http.MethodGet, "/admin/reset", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUpstreamFailure(t *testing.T) {
	b := newBackend()
	b.err = errors.New("both sources down")
	rec, body := do(t, newTestServer(b), http.MethodGet, "/projects", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "both sources down", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := do(t, newTestServer(newBackend()), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
