package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sunridgelabs/fieldops/backend/internal/realtime"
	"go.uber.org/zap"
)

const fullSyncJobID = "full-sync"

var (
	errMissingOrchestrator = errors.New("orchestrator is required")
	errSchedulerStarted    = errors.New("scheduler already started")
	errSchedulerStopped    = errors.New("scheduler cannot restart after stop")
)

// SchedulerConfig wires the cadence-driven sync driver.
type SchedulerConfig struct {
	Orchestrator *Orchestrator
	Registry     *realtime.Registry
	// Schedule is a cron expression; the default fires daily at 08:00,
	// 14:00 and 20:00 local time.
	Schedule string
	Logger   *zap.Logger
}

// JobInfo is the read-only projection of one scheduled job.
type JobInfo struct {
	ID      string    `json:"id"`
	NextRun time.Time `json:"next_run"`
	Func    string    `json:"func"`
}

// Status is the read-only view served by the status endpoint.
type Status struct {
	Running           bool       `json:"scheduler_running"`
	Jobs              []JobInfo  `json:"scheduled_jobs"`
	ActiveConnections int        `json:"active_websocket_connections"`
	LastSync          *time.Time `json:"last_sync"`
}

// Scheduler drives periodic full syncs and exposes the manual trigger path.
// It is started once at process init and stopped once at shutdown.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *Orchestrator
	registry     *realtime.Registry
	logger       *zap.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	order   []string
	started bool
	stopped bool
}

// NewScheduler constructs the scheduler and registers the default full-sync job.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Orchestrator == nil {
		return nil, errMissingOrchestrator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "0 8,14,20 * * *"
	}

	scheduler := &Scheduler{
		cron:         cron.New(),
		orchestrator: cfg.Orchestrator,
		registry:     cfg.Registry,
		logger:       logger,
		entries:      make(map[string]cron.EntryID),
	}
	if err := scheduler.RegisterJob(fullSyncJobID, schedule, scheduler.runScheduledFullSync); err != nil {
		return nil, err
	}
	return scheduler, nil
}

// RegisterJob adds a cron job before the scheduler starts. Re-registering an
// existing job id replaces the previous schedule.
func (s *Scheduler) RegisterJob(id, spec string, run func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errSchedulerStarted
	}
	if existing, ok := s.entries[id]; ok {
		s.cron.Remove(existing)
	} else {
		s.order = append(s.order, id)
	}
	entryID, err := s.cron.AddFunc(spec, run)
	if err != nil {
		return err
	}
	s.entries[id] = entryID
	return nil
}

// Start begins firing scheduled jobs. Restarting after Stop is not supported.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errSchedulerStopped
	}
	if s.started {
		return errSchedulerStarted
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("sync scheduler started", zap.Int("jobs", len(s.entries)))
	return nil
}

// Stop halts the cron loop without waiting for in-flight runs to roll back.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		s.stopped = true
		return
	}
	s.stopped = true
	s.cron.Stop()
	s.logger.Info("sync scheduler stopped")
}

// TriggerManual runs the full sync synchronously on demand, outside the
// cadence. Each call creates its own run records.
func (s *Scheduler) TriggerManual(ctx context.Context) (*FullSyncResult, error) {
	return s.orchestrator.RunFullSync(ctx)
}

// CurrentStatus reports scheduler liveness, job schedule and connection count.
func (s *Scheduler) CurrentStatus(ctx context.Context) (Status, error) {
	s.mu.Lock()
	running := s.started && !s.stopped
	jobs := make([]JobInfo, 0, len(s.order))
	for _, id := range s.order {
		entry := s.cron.Entry(s.entries[id])
		jobs = append(jobs, JobInfo{ID: id, NextRun: entry.Next, Func: "run_full_sync"})
	}
	s.mu.Unlock()

	lastSync, err := s.orchestrator.LastSyncTime(ctx)
	if err != nil {
		return Status{}, err
	}

	activeConnections := 0
	if s.registry != nil {
		activeConnections = s.registry.Count()
	}

	return Status{
		Running:           running,
		Jobs:              jobs,
		ActiveConnections: activeConnections,
		LastSync:          lastSync,
	}, nil
}

// runScheduledFullSync is the cadence-driven entry point. The sync itself
// performs blocking network I/O, so it must never run on a path that accepts
// connections; cron invokes it on its own goroutine.
func (s *Scheduler) runScheduledFullSync() {
	if _, err := s.orchestrator.RunFullSync(context.Background()); err != nil {
		s.logger.Error("scheduled full sync failed", zap.Error(err))
	}
}
