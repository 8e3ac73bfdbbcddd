package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/database"
	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/services"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

var fixtureNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// OpenTestDB opens a file-backed SQLite database in a per-test temp dir and
// migrates it.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "handlers.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// stubProber returns a fixed result, optionally blocking until gate is closed.
type stubProber struct {
	mu      sync.Mutex
	result  services.ProbeResult
	gate    chan struct{}
	started chan struct{}
}

func (p *stubProber) Probe(ctx context.Context, _ services.EffectiveCheckConfig) services.ProbeResult {
	p.mu.Lock()
	gate, started, res := p.gate, p.started, p.result
	p.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	return res
}

type fixture struct {
	db        *gorm.DB
	clock     *util.FixedClock
	prober    *stubProber
	router    *gin.Engine
	agg       *services.StatusAggregator
	scheduler *services.CheckScheduler
	entities  *services.EntityService
	recorder  *services.UptimeRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := OpenTestDB(t)
	clock := util.NewFixedClock(fixtureNow)
	prober := &stubProber{result: services.ProbeResult{Success: false, Message: "connection refused", Duration: 12 * time.Millisecond}}

	overlay := services.NewOverlayService(db, clock)
	notifications := services.NewNotificationService(db)
	agg := services.NewStatusAggregator(db, clock, overlay, notifications, nil)
	settings := services.NewSettingsService(db, config.HealthCheckDefaults{
		Enabled: true, SchedulerIntervalMs: 10000, ThreadPoolSize: 4, DefaultIntervalSeconds: 60, DefaultTimeoutSeconds: 10,
	})
	scheduler := services.NewCheckScheduler(db, prober, agg, settings, clock)
	entities := services.NewEntityService(db, agg)
	uptimeCfg := config.UptimeConfig{MaintenancePolicy: config.MaintenanceCountsAgainstUptime}
	recorder := services.NewUptimeRecorder(db, overlay, clock, time.UTC, uptimeCfg, nil)
	reader := services.NewUptimeHistoryReader(db, clock, time.UTC, nil)

	r := gin.New()
	api := r.Group("/api/v1")

	checks := NewCheckHandler(scheduler, agg)
	api.POST("/checks/:kind/:id/trigger", checks.Trigger)
	api.GET("/status/:kind/:id", checks.Status)

	uptime := NewUptimeHandler(reader, recorder)
	api.GET("/uptime/:kind/:id/history", uptime.GetHistory)
	api.POST("/uptime/:kind/:id/record", uptime.Record)
	api.POST("/uptime/record-all", uptime.RecordAll)

	NewEntityHandler(entities, agg).RegisterRoutes(api, api)

	incidents := NewIncidentHandler(services.NewIncidentService(db, agg, notifications, clock))
	api.GET("/incidents", incidents.List)
	api.POST("/incidents", incidents.Create)
	api.GET("/incidents/:id", incidents.Get)
	api.POST("/incidents/:id/updates", incidents.AddUpdate)
	api.POST("/incidents/:id/resolve", incidents.Resolve)

	maintenance := NewMaintenanceHandler(services.NewMaintenanceService(db, notifications, clock))
	api.GET("/maintenance", maintenance.List)
	api.POST("/maintenance", maintenance.Schedule)
	api.GET("/maintenance/:id", maintenance.Get)
	api.POST("/maintenance/:id/cancel", maintenance.Cancel)

	settingsHandler := NewSettingsHandler(settings)
	api.GET("/settings/health-check", settingsHandler.GetHealthCheck)
	api.PUT("/settings/health-check", settingsHandler.UpdateHealthCheck)

	return &fixture{
		db: db, clock: clock, prober: prober, router: r,
		agg: agg, scheduler: scheduler, entities: entities, recorder: recorder,
	}
}

// do sends a JSON request and returns the recorder.
func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// seed creates platform -> app -> component with an enabled HTTP check on the component.
func (f *fixture) seed(t *testing.T) (models.Platform, models.App, models.Component) {
	t.Helper()
	ctx := context.Background()
	p := models.Platform{Name: "Core", OrganizationID: "org-1"}
	require.NoError(t, f.entities.CreatePlatform(ctx, &p))
	a := models.App{Name: "API", PlatformID: &p.ID}
	require.NoError(t, f.entities.CreateApp(ctx, &a))
	c := models.Component{AppID: a.ID, Name: "web", CheckConfig: models.CheckConfig{
		CheckEnabled: true, CheckType: models.CheckTypeHTTPGet, CheckURL: "http://web.internal/health", CheckFailureThreshold: 1,
	}}
	require.NoError(t, f.entities.CreateComponent(ctx, &c))
	return p, a, c
}
