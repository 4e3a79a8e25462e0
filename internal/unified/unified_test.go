package unified

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAlerts struct {
	raws  []model.RawRecord
	err   error
	calls atomic.Int32
}

func (f *fakeAlerts) FetchAlerts(context.Context) ([]model.RawRecord, error) {
	f.calls.Add(1)
	return f.raws, f.err
}

type fakeWorks struct {
	raws  []model.RawRecord
	err   error
	calls atomic.Int32
}

func (f *fakeWorks) GetWorks(context.Context) ([]model.RawRecord, error) {
	f.calls.Add(1)
	return f.raws, f.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var t0 = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func TestJoinExampleScenario(t *testing.T) {
	alerts := &fakeAlerts{raws: []model.RawRecord{
		{"id": "1", "ID OBRA": "100", "GRAVEDAD": "alta"},
		{"id": "2", "ID OBRA": "100", "GRAVEDAD": "media"},
	}}
	works := &fakeWorks{raws: []model.RawRecord{{"id": "100", "NOMBRE": "Bridge"}}}
	svc := NewService(alerts, works, Options{Now: (&clock{t: t0}).now})

	res, err := svc.Get(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, res.Projects, 1)
	p := res.Projects[0]
	assert.Equal(t, "100", p.WorkID)
	assert.Equal(t, "Bridge", p.WorkName)
	assert.Equal(t, 2, p.TotalAlerts)
	assert.Equal(t, 1, p.CriticalAlertCount)
	assert.Equal(t, 1, p.ModerateAlertCount)
	assert.Equal(t, 0, p.LightAlertCount)
	assert.Equal(t, "1", p.AlertID)
	assert.Empty(t, res.Orphaned)
}

func TestMixedSpellingsCountAsCritical(t *testing.T) {
	alerts := normalize.MapAlerts([]model.RawRecord{
		{"id": "1", "ID OBRA": "7", "GRAVEDAD": "CRÍTICA"},
		{"id": "2", "ID OBRA": "7", "GRAVEDAD": "Alta "},
	})
	p := CreateUnifiedProject(model.RawRecord{"id": "7"}, alerts, t0)
	assert.Equal(t, 2, p.CriticalAlertCount)
	assert.True(t, p.RequiresAttention)
}

func TestJoinOrderingAndOrphans(t *testing.T) {
	alerts := normalize.MapAlerts([]model.RawRecord{
		{"id": "a1", "ID OBRA": "300"},
		{"id": "a2", "ID OBRA": "999"},
		{"id": "a3", "ID OBRA": "100"},
		{"id": "a4", "ID OBRA": "300"},
	})
	works := []model.RawRecord{
		{"id": "100"}, {"id": "200"}, {"id": "300"}, {"id": "200"},
	}
	projects, orphaned := Join(alerts, works, t0)

	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.WorkID)
	}
	if diff := cmp.Diff([]string{"300", "100", "200"}, ids); diff != "" {
		t.Fatalf("project order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, projects[0].TotalAlerts)
	assert.Equal(t, "a1", projects[0].AlertID)
	assert.False(t, projects[2].HasAlerts)
	assert.Equal(t, 0, projects[2].TotalAlerts)

	require.Len(t, orphaned, 1)
	assert.Equal(t, "999", orphaned[0].WorkID)
	assert.Equal(t, "a2", orphaned[0].Alerts[0].ID)
}

func TestJoinKeepsAlertsWithoutWorkIDOrphaned(t *testing.T) {
	alerts := normalize.MapAlerts([]model.RawRecord{
		{"id": "a1", "GRAVEDAD": "alta"},
		{"id": "a2", "ID OBRA": "100"},
	})
	works := []model.RawRecord{{"NOMBRE": "Sin id"}, {"id": "100"}}
	projects, orphaned := Join(alerts, works, t0)

	require.Len(t, projects, 1)
	assert.Equal(t, "100", projects[0].WorkID)
	assert.Equal(t, 1, projects[0].TotalAlerts)
	require.Len(t, orphaned, 1)
	assert.Equal(t, "", orphaned[0].WorkID)
	assert.Equal(t, "a1", orphaned[0].Alerts[0].ID)
}

func TestCreateUnifiedProjectDerivedFields(t *testing.T) {
	work := model.RawRecord{
		"id":                              "55",
		"NOMBRE":                          "Colegio",
		"COSTO TOTAL ACTUALIZADO":         "$ 1.500.000.000",
		"PRESUPUESTO EJECUTADO":           400000000.0,
		"PORCENTAJE EJECUCIÓN FINANCIERA": "35",
		"FECHA ESTIMADA DE ENTREGA":       "2025-09-21",
		"¿OBRA ENTREGADA?":                "No",
		"% DISEÑOS":                       100.0,
		"OBSERVACIONES":                   "sin novedad",
	}
	p := CreateUnifiedProject(work, nil, t0)

	assert.Equal(t, 1_100_000_000.0, p.AvailableBudget)
	assert.Equal(t, 35.0, p.TotalProgress)
	require.NotNil(t, p.DaysRemaining)
	assert.Equal(t, -10, *p.DaysRemaining)
	assert.True(t, p.IsOverdue)
	assert.True(t, p.RequiresAttention)
	assert.False(t, p.Delivered)
	assert.Equal(t, model.RawRecord{"OBSERVACIONES": "sin novedad"}, p.Extra)
	require.Len(t, p.Phases, 1)
	assert.Equal(t, "DISEÑOS", p.Phases[0].Name)
}

func TestCreateUnifiedProjectWithoutDeliveryDate(t *testing.T) {
	p := CreateUnifiedProject(model.RawRecord{"id": "1", "PORCENTAJE EJECUCIÓN FINANCIERA": 80.0}, nil, t0)
	assert.Nil(t, p.DaysRemaining)
	assert.False(t, p.IsOverdue)
	assert.False(t, p.RequiresAttention)
	assert.Equal(t, normalize.DefaultWorkName, p.WorkName)
}

func TestLastAlertDate(t *testing.T) {
	alerts := []model.MappedAlert{
		{AlertDate: "2025-08-01"}, {AlertDate: "2025-09-15"}, {AlertDate: "garbage"},
	}
	assert.Equal(t, "2025-09-15", lastAlertDate(alerts))
	assert.Equal(t, "garbage", lastAlertDate(alerts[2:]))
	assert.Equal(t, "", lastAlertDate(nil))
}

func TestGetUsesCacheWithinTTL(t *testing.T) {
	clk := &clock{t: t0}
	alerts := &fakeAlerts{}
	works := &fakeWorks{raws: []model.RawRecord{{"id": "1"}}}
	svc := NewService(alerts, works, Options{TTL: 5 * time.Minute, Now: clk.now})
	ctx := context.Background()

	first, err := svc.Get(ctx, false)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	clk.advance(4 * time.Minute)
	second, err := svc.Get(ctx, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), works.calls.Load())

	_, err = svc.Get(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), works.calls.Load())

	clk.advance(5 * time.Minute)
	_, err = svc.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), works.calls.Load())
	assert.Equal(t, int32(3), alerts.calls.Load())

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(4), works.calls.Load())
}

func TestGetFailsWhenEitherFetchFails(t *testing.T) {
	clk := &clock{t: t0}
	boom := errors.New("boom")
	alerts := &fakeAlerts{raws: []model.RawRecord{{"id": "1", "ID OBRA": "1"}}}
	works := &fakeWorks{raws: []model.RawRecord{{"id": "1"}}}
	cache := NewMemoryCache()
	svc := NewService(alerts, works, Options{Cache: cache, Now: clk.now})
	ctx := context.Background()

	good, err := svc.Get(ctx, false)
	require.NoError(t, err)

	works.err = boom
	_, err = svc.Get(ctx, true)
	require.ErrorIs(t, err, boom)

	cached, ok, err := cache.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, good.FetchedAt, cached.FetchedAt)

	works.err = nil
	alerts.err = boom
	_, err = svc.Get(ctx, true)
	require.ErrorIs(t, err, boom)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("OBRAWATCH_TEST_REDIS")
	if addr == "" {
		t.Skip("OBRAWATCH_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	cache := NewRedisCache(client, "obrawatch:test:", time.Minute)
	ctx := context.Background()
	require.NoError(t, cache.Clear(ctx))

	_, ok, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	projects, _ := Join(nil, []model.RawRecord{{"id": "1", "NOMBRE": "Parque"}}, t0)
	require.NoError(t, cache.Store(ctx, Result{Projects: projects, FetchedAt: t0}))
	got, ok, err := cache.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Parque", got.Projects[0].WorkName)
	assert.True(t, got.FetchedAt.Equal(t0))
	require.NoError(t, cache.Clear(ctx))
}
