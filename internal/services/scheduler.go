package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/logger"
	"github.com/pulseboard/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/util"
)

// DueCheck is an entity selected for probing together with its resolved probe input.
type DueCheck struct {
	Ref         models.EntityRef
	Name        string
	Config      EffectiveCheckConfig
	LastCheckAt *time.Time
}

// CheckScheduler selects due entities on every tick and probes them on a
// bounded pool. An entity never has more than one probe in flight.
type CheckScheduler struct {
	DB         *gorm.DB
	prober     Prober
	aggregator *StatusAggregator
	settings   SettingsProvider
	clock      util.Clock

	mu       sync.Mutex
	inflight map[string]struct{}
	sem      *semaphore.Weighted
	poolSize int

	wg       sync.WaitGroup
	stop     chan struct{}
	loopDone chan struct{}
}

func NewCheckScheduler(db *gorm.DB, prober Prober, aggregator *StatusAggregator, settings SettingsProvider, clock util.Clock) *CheckScheduler {
	return &CheckScheduler{
		DB:         db,
		prober:     prober,
		aggregator: aggregator,
		settings:   settings,
		clock:      clock,
		inflight:   make(map[string]struct{}),
	}
}

// Start runs the tick loop until Stop is called.
func (s *CheckScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})
	stop, done := s.stop, s.loopDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			interval := s.Tick(ctx)
			timer := time.NewTimer(interval)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
	logger.Component("scheduler").Info("health check scheduler started")
}

// Stop ends the tick loop and waits for in-flight probes to finish or time out.
func (s *CheckScheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.loopDone
	s.stop, s.loopDone = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.wg.Wait()
	logger.Component("scheduler").Info("health check scheduler stopped")
}

// Tick dispatches every due entity that is not already in flight and returns
// the delay until the next tick. It never waits for probes to complete.
func (s *CheckScheduler) Tick(ctx context.Context) time.Duration {
	settings, err := s.settings.HealthCheck()
	if err != nil {
		logger.Component("scheduler").WithError(err).Error("failed to read health check settings, using defaults")
	}
	next := time.Duration(settings.SchedulerIntervalMs) * time.Millisecond
	if next <= 0 {
		next = 10 * time.Second
	}
	if !settings.Enabled {
		return next
	}

	start := time.Now()
	defer func() { metrics.ObserveSchedulerTick(time.Since(start)) }()

	sem := s.pool(settings.ThreadPoolSize)
	due, err := s.DueEntities(ctx, s.clock.Now(), settings)
	if err != nil {
		logger.Component("scheduler").WithError(err).Error("failed to select due health checks")
		return next
	}

	for _, check := range due {
		if !s.claim(check.Ref) {
			metrics.IncProbeSkipped("in_flight")
			continue
		}
		if !sem.TryAcquire(1) {
			s.release(check.Ref)
			metrics.IncProbeSkipped("pool_full")
			continue
		}
		s.wg.Add(1)
		go func(c DueCheck) {
			defer s.wg.Done()
			defer sem.Release(1)
			defer s.release(c.Ref)
			s.run(context.WithoutCancel(ctx), c)
		}(check)
	}
	return next
}

// DueEntities returns the checkable entities whose interval has elapsed,
// never-checked entities first and then oldest check first, so a full pool
// serves the most overdue entities regardless of kind. Entities with an
// unusable configuration are logged and left out.
func (s *CheckScheduler) DueEntities(ctx context.Context, now time.Time, settings HealthCheckSettings) ([]DueCheck, error) {
	db := s.DB.WithContext(ctx)
	defaultTimeout := time.Duration(settings.DefaultTimeoutSeconds) * time.Second
	var out []DueCheck

	isDue := func(cfg models.CheckConfig, state models.CheckState) bool {
		if state.LastCheckAt == nil {
			return true
		}
		interval := cfg.CheckIntervalSeconds
		if interval <= 0 {
			interval = settings.DefaultIntervalSeconds
		}
		return now.Sub(*state.LastCheckAt) >= time.Duration(interval)*time.Second
	}
	add := func(ent checkable, parent *models.CheckConfig) {
		if !isDue(ent.Config, ent.State) {
			return
		}
		cfg, err := ResolveEffectiveConfig(ent.Config, ent.Inherit, parent, defaultTimeout)
		if err != nil {
			logger.ForEntity(string(ent.Ref.Kind), ent.Ref.ID).WithError(err).Warn("skipping health check with invalid configuration")
			metrics.IncProbeSkipped("config")
			return
		}
		out = append(out, DueCheck{Ref: ent.Ref, Name: ent.Name, Config: cfg, LastCheckAt: ent.State.LastCheckAt})
	}

	var platforms []models.Platform
	if err := db.Where("check_enabled = ? AND check_type <> ?", true, models.CheckTypeNone).Find(&platforms).Error; err != nil {
		return nil, fmt.Errorf("select platforms: %w", err)
	}
	for _, p := range platforms {
		add(platformCheckable(p), nil)
	}

	var apps []models.App
	if err := db.Where("check_enabled = ? AND check_type <> ?", true, models.CheckTypeNone).Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("select apps: %w", err)
	}
	for _, a := range apps {
		add(appCheckable(a), nil)
	}

	var comps []models.Component
	if err := db.Where("check_enabled = ? AND (check_type <> ? OR check_inherit_from_app = ?)", true, models.CheckTypeNone, true).
		Find(&comps).Error; err != nil {
		return nil, fmt.Errorf("select components: %w", err)
	}
	parents, err := s.parentConfigs(db, comps)
	if err != nil {
		return nil, err
	}
	for _, c := range comps {
		var parent *models.CheckConfig
		if cfg, ok := parents[c.AppID]; ok {
			parent = &cfg
		}
		add(componentCheckable(c), parent)
	}
	sortOldestFirst(out)
	return out, nil
}

func sortOldestFirst(due []DueCheck) {
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].LastCheckAt, due[j].LastCheckAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
}

func (s *CheckScheduler) parentConfigs(db *gorm.DB, comps []models.Component) (map[string]models.CheckConfig, error) {
	var ids []string
	for _, c := range comps {
		if c.CheckInheritFromApp {
			ids = append(ids, c.AppID)
		}
	}
	out := make(map[string]models.CheckConfig, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var apps []models.App
	if err := db.Where("id IN ?", ids).Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("load parent apps: %w", err)
	}
	for _, a := range apps {
		out[a.ID] = a.CheckConfig
	}
	return out, nil
}

// TriggerNow probes one entity immediately, bypassing the interval gate but
// waiting for a pool slot. The probe outcome is returned even when it failed;
// the error is reserved for lookup, configuration and persistence problems.
func (s *CheckScheduler) TriggerNow(ctx context.Context, ref models.EntityRef) (ProbeResult, error) {
	db := s.DB.WithContext(ctx)
	ent, err := loadCheckable(db, ref)
	if err != nil {
		return ProbeResult{}, err
	}

	settings, err := s.settings.HealthCheck()
	if err != nil {
		logger.Component("scheduler").WithError(err).Warn("failed to read health check settings, using defaults")
	}

	var parent *models.CheckConfig
	if ent.Inherit {
		var app models.App
		if err := db.First(&app, "id = ?", ent.AppID).Error; err == nil {
			parent = &app.CheckConfig
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return ProbeResult{}, fmt.Errorf("load parent app: %w", err)
		}
	}
	cfg, err := ResolveEffectiveConfig(ent.Config, ent.Inherit, parent, time.Duration(settings.DefaultTimeoutSeconds)*time.Second)
	if err != nil {
		return ProbeResult{}, err
	}

	if !s.claim(ref) {
		return ProbeResult{}, ErrCheckInProgress
	}
	defer s.release(ref)

	sem, err := s.acquireSlot(ctx, settings.ThreadPoolSize)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("wait for probe slot: %w", err)
	}
	defer sem.Release(1)

	res := s.probe(ctx, DueCheck{Ref: ref, Name: ent.Name, Config: cfg})
	if err := s.aggregator.ApplyResult(ctx, ref, res); err != nil {
		return res, err
	}
	return res, nil
}

func (s *CheckScheduler) run(ctx context.Context, c DueCheck) {
	res := s.probe(ctx, c)
	err := s.aggregator.ApplyResult(ctx, c.Ref, res)
	switch {
	case err == nil:
	case errors.Is(err, ErrEntityNotFound):
		logger.ForEntity(string(c.Ref.Kind), c.Ref.ID).Debug("entity deleted during health check, result dropped")
	default:
		logger.ForEntity(string(c.Ref.Kind), c.Ref.ID).WithError(err).Error("failed to store health check result")
	}
}

func (s *CheckScheduler) probe(ctx context.Context, c DueCheck) ProbeResult {
	res := s.prober.Probe(ctx, c.Config)
	metrics.ObserveProbe(string(c.Ref.Kind), string(c.Config.Type), res.Success, res.Duration)
	if !res.Success {
		logger.WithFields(logrus.Fields{
			"entity_kind": c.Ref.Kind,
			"entity_id":   c.Ref.ID,
			"check_type":  c.Config.Type,
		}).Debugf("health check failed: %s", res.Message)
	}
	return res
}

// pool returns the semaphore for the configured size. A size change takes
// effect only once the current pool is idle, so probes started under the
// old size and the new one never run side by side. Until then the old
// size keeps bounding the pool.
func (s *CheckScheduler) pool(size int) *semaphore.Weighted {
	if size < 1 {
		size = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sem == nil {
		s.sem = semaphore.NewWeighted(int64(size))
		s.poolSize = size
		return s.sem
	}
	if s.poolSize == size {
		return s.sem
	}
	// Holding every slot proves nothing is running or waiting on the old pool.
	if !s.sem.TryAcquire(int64(s.poolSize)) {
		logger.Component("scheduler").WithFields(logrus.Fields{
			"current": s.poolSize,
			"target":  size,
		}).Debug("pool resize deferred until in-flight probes finish")
		return s.sem
	}
	old, oldSize := s.sem, s.poolSize
	s.sem = semaphore.NewWeighted(int64(size))
	s.poolSize = size
	// Wake anyone who fetched the old pool just before the swap.
	old.Release(int64(oldSize))
	return s.sem
}

// acquireSlot blocks for a slot in the current pool. A slot taken from a
// pool that was replaced meanwhile is returned and the wait starts over.
func (s *CheckScheduler) acquireSlot(ctx context.Context, size int) (*semaphore.Weighted, error) {
	for {
		sem := s.pool(size)
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		s.mu.Lock()
		current := s.sem == sem
		s.mu.Unlock()
		if current {
			return sem, nil
		}
		sem.Release(1)
	}
}

func (s *CheckScheduler) claim(ref models.EntityRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ref.String()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *CheckScheduler) release(ref models.EntityRef) {
	s.mu.Lock()
	delete(s.inflight, ref.String())
	s.mu.Unlock()
}

// InFlight reports how many probes are currently running.
func (s *CheckScheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Wait blocks until every probe dispatched by Tick has finished.
func (s *CheckScheduler) Wait() {
	s.wg.Wait()
}
