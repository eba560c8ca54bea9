package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sunridgelabs/fieldops/backend/internal/leaderboard"
	"github.com/sunridgelabs/fieldops/backend/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subjectPreviewLimit = 10

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingFetcher  = errors.New("source fetcher is required")
)

// RangeFetcher is the slice of the sheets fetcher the orchestrator depends on.
type RangeFetcher interface {
	Fetch(ctx context.Context, spreadsheetID string, ranges []string) ([][]string, error)
}

// Broadcaster delivers structured events to live connections.
type Broadcaster interface {
	Broadcast(eventType string, fields map[string]any)
}

// IDProvider issues identifiers for new sync runs.
type IDProvider interface {
	NewID() (string, error)
}

// CategorySync is a pluggable per-category sync strategy sharing the run
// status contract.
type CategorySync interface {
	Name() string
	Run(ctx context.Context) (CategoryResult, error)
}

// CategoryResult summarizes one category's outcome inside a full sync.
type CategoryResult struct {
	Category    string    `json:"category"`
	Status      RunStatus `json:"status"`
	SyncedCount int       `json:"synced_count"`
	Error       string    `json:"error,omitempty"`
}

// FullSyncResult aggregates the per-category outcomes of one full sync.
type FullSyncResult struct {
	Success bool                      `json:"success"`
	Results map[string]CategoryResult `json:"results"`
}

// OrchestratorConfig wires the sync pipeline's collaborators.
type OrchestratorConfig struct {
	Database      *gorm.DB
	Fetcher       RangeFetcher
	Hub           Broadcaster
	Clock         func() time.Time
	IDProvider    IDProvider
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	SpreadsheetID string
	Ranges        []string
	// NotifyBackground controls whether scheduled (background) runs also
	// broadcast their completion event. Interactive runs always notify.
	NotifyBackground bool
	// ExtraCategories replaces the default revenue and lead strategies.
	ExtraCategories []CategorySync
}

// Orchestrator coordinates fetch, reconciliation, persistence and
// notification for sync runs.
type Orchestrator struct {
	db               *gorm.DB
	fetcher          RangeFetcher
	hub              Broadcaster
	clock            func() time.Time
	idProvider       IDProvider
	logger           *zap.Logger
	metrics          *metrics.Metrics
	spreadsheetID    string
	ranges           []string
	notifyBackground bool
	categories       []CategorySync
}

// NewOrchestrator constructs the orchestrator, defaulting the revenue and
// lead categories to placeholder strategies until their sources exist.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Fetcher == nil {
		return nil, errMissingFetcher
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = leaderboard.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	orchestrator := &Orchestrator{
		db:               cfg.Database,
		fetcher:          cfg.Fetcher,
		hub:              cfg.Hub,
		clock:            clock,
		idProvider:       idProvider,
		logger:           logger,
		metrics:          cfg.Metrics,
		spreadsheetID:    cfg.SpreadsheetID,
		ranges:           cfg.Ranges,
		notifyBackground: cfg.NotifyBackground,
	}

	orchestrator.categories = cfg.ExtraCategories
	if orchestrator.categories == nil {
		orchestrator.categories = []CategorySync{
			&placeholderCategory{name: CategoryRevenue, orchestrator: orchestrator},
			&placeholderCategory{name: CategoryLeads, orchestrator: orchestrator},
		}
	}
	return orchestrator, nil
}

// RunSignupSync executes one signup sync run. Background runs suppress the
// completion broadcast unless NotifyBackground is set; failures always
// broadcast a sync_error event.
func (o *Orchestrator) RunSignupSync(ctx context.Context, background bool) (*SyncRun, error) {
	run, err := o.startRun(ctx, CategorySignups)
	if err != nil {
		return nil, err
	}

	rows, err := o.fetcher.Fetch(ctx, o.spreadsheetID, o.ranges)
	if err != nil {
		o.failRun(ctx, run, fmt.Errorf("source fetch failed: %w", err))
		return run, err
	}

	schema, err := newRowSchema(rows[0])
	if err != nil {
		o.failRun(ctx, run, err)
		return run, err
	}
	if len(schema.missing) > 0 {
		o.logger.Warn("source header missing optional columns", zap.Strings("columns", schema.missing))
	}

	processed := 0
	var preview []string
	for index, cells := range rows[1:] {
		if populatedCells(cells) < minPopulatedCells {
			continue
		}
		record, err := o.reconcileRow(ctx, schema.mapRow(cells))
		if err != nil {
			// Row-level failures never abort the run.
			o.logger.Warn("skipping malformed source row",
				zap.Int("row", index+1),
				zap.Error(err))
			continue
		}
		processed++
		if len(preview) < subjectPreviewLimit {
			preview = append(preview, record.RepName)
		}
	}

	o.completeRun(ctx, run, processed)

	if !background || o.notifyBackground {
		o.broadcast("data_sync_complete", map[string]any{
			"synced_count": processed,
			"reps":         preview,
		})
	}
	return run, nil
}

// RunFullSync sequentially executes the signup sync and every registered
// category strategy, aggregating results into one broadcast event.
func (o *Orchestrator) RunFullSync(ctx context.Context) (result *FullSyncResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("full sync panicked: %v", recovered)
			o.logger.Error("full sync aborted", zap.Any("panic", recovered))
			o.broadcast("full_sync_error", map[string]any{"message": err.Error()})
		}
	}()

	result = &FullSyncResult{Success: true, Results: make(map[string]CategoryResult)}

	signupRun, signupErr := o.RunSignupSync(ctx, true)
	signupResult := CategoryResult{Category: CategorySignups, Status: RunStatusFailed}
	if signupRun != nil {
		signupResult.Status = signupRun.Status
		signupResult.SyncedCount = signupRun.RecordsProcessed
		signupResult.Error = signupRun.ErrorMessage
	}
	if signupErr != nil {
		result.Success = false
	}
	result.Results[CategorySignups] = signupResult

	for _, category := range o.categories {
		categoryResult, categoryErr := category.Run(ctx)
		if categoryErr != nil {
			result.Success = false
			categoryResult.Status = RunStatusFailed
			categoryResult.Error = categoryErr.Error()
		}
		categoryResult.Category = category.Name()
		result.Results[category.Name()] = categoryResult
	}

	event := "full_sync_complete"
	if !result.Success {
		event = "full_sync_error"
	}
	fields := map[string]any{"success": result.Success, "results": result.Results}
	o.broadcast(event, fields)
	return result, nil
}

// LatestRuns returns the most recent sync runs, newest first.
func (o *Orchestrator) LatestRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []SyncRun
	err := o.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// LastSyncTime reports when the most recent completed run finished.
func (o *Orchestrator) LastSyncTime(ctx context.Context) (*time.Time, error) {
	var run SyncRun
	err := o.db.WithContext(ctx).
		Where("status = ?", RunStatusCompleted).
		Order("started_at DESC").
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run.FinishedAt, nil
}

func (o *Orchestrator) startRun(ctx context.Context, category string) (*SyncRun, error) {
	id, err := o.idProvider.NewID()
	if err != nil {
		return nil, err
	}
	run := &SyncRun{
		ID:        id,
		Category:  category,
		StartedAt: o.clock().UTC(),
		Status:    RunStatusRunning,
	}
	if err := o.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (o *Orchestrator) completeRun(ctx context.Context, run *SyncRun, processed int) {
	finished := o.clock().UTC()
	run.Status = RunStatusCompleted
	run.RecordsProcessed = processed
	run.FinishedAt = &finished
	o.saveRun(ctx, run)
	o.logger.Info("sync run completed",
		zap.String("run_id", run.ID),
		zap.String("category", run.Category),
		zap.Int("records_processed", processed))
	if o.metrics != nil {
		o.metrics.SyncRunsTotal.WithLabelValues(run.Category, string(RunStatusCompleted)).Inc()
		o.metrics.RowsProcessed.Add(float64(processed))
	}
}

func (o *Orchestrator) failRun(ctx context.Context, run *SyncRun, cause error) {
	finished := o.clock().UTC()
	run.Status = RunStatusFailed
	run.ErrorMessage = cause.Error()
	run.FinishedAt = &finished
	o.saveRun(ctx, run)
	o.logger.Error("sync run failed",
		zap.String("run_id", run.ID),
		zap.String("category", run.Category),
		zap.Error(cause))
	if o.metrics != nil {
		o.metrics.SyncRunsTotal.WithLabelValues(run.Category, string(RunStatusFailed)).Inc()
	}
	o.broadcast("sync_error", map[string]any{"message": cause.Error()})
}

func (o *Orchestrator) saveRun(ctx context.Context, run *SyncRun) {
	if err := o.db.WithContext(ctx).Save(run).Error; err != nil {
		o.logger.Error("failed to persist sync run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (o *Orchestrator) broadcast(eventType string, fields map[string]any) {
	if o.hub == nil {
		return
	}
	o.hub.Broadcast(eventType, fields)
}

// reconcileRow upserts one mapped record by (rep, month, year). Each row
// carries a full replacement payload, so last-writer-wins is acceptable.
func (o *Orchestrator) reconcileRow(ctx context.Context, fields map[string]string) (*leaderboard.SignupRecord, error) {
	repName := fields[columnRepName]
	if repName == "" {
		return nil, errors.New("row has no rep name")
	}

	now := o.clock().UTC()
	month := int(now.Month())
	year := now.Year()
	if raw := fields[columnMonth]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			return nil, fmt.Errorf("invalid month %q", raw)
		}
		month = parsed
	}
	if raw := fields[columnYear]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", raw)
		}
		year = parsed
	}

	signups := 0
	if raw := fields[columnSignups]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid signup count %q", raw)
		}
		signups = parsed
	}

	revenue := 0.0
	if raw := fields[columnRevenue]; raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid revenue %q", raw)
		}
		revenue = parsed
	}

	id, err := o.idProvider.NewID()
	if err != nil {
		return nil, err
	}
	record := &leaderboard.SignupRecord{
		ID:          id,
		RepName:     repName,
		RepEmail:    fields[columnEmail],
		Month:       month,
		Year:        year,
		Signups:     signups,
		Revenue:     revenue,
		LastUpdated: now,
		Source:      "sheet_sync",
	}

	err = o.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "rep_name"}, {Name: "month"}, {Name: "year"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"rep_email", "signups", "revenue", "last_updated", "source",
		}),
	}).Create(record).Error
	if err != nil {
		return nil, err
	}
	return record, nil
}

// placeholderCategory records a completed zero-record run for categories whose
// external source is not wired up yet. It keeps the run history uniform so
// the status endpoint and broadcasts cover every category.
type placeholderCategory struct {
	name         string
	orchestrator *Orchestrator
}

func (c *placeholderCategory) Name() string { return c.name }

func (c *placeholderCategory) Run(ctx context.Context) (CategoryResult, error) {
	run, err := c.orchestrator.startRun(ctx, c.name)
	if err != nil {
		return CategoryResult{Category: c.name, Status: RunStatusFailed, Error: err.Error()}, err
	}
	c.orchestrator.completeRun(ctx, run, 0)
	return CategoryResult{Category: c.name, Status: RunStatusCompleted}, nil
}
