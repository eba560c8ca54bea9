package syncer

import "time"

// RunStatus tracks the lifecycle of one sync run. Transitions move
// pending -> running -> {completed | failed} and never leave a terminal state;
// a new sync always creates a new run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Sync categories executed by the orchestrator.
const (
	CategorySignups = "signups"
	CategoryRevenue = "revenue"
	CategoryLeads   = "leads"
)

// SyncRun is the append-only record of one fetch-reconcile-persist execution.
type SyncRun struct {
	ID               string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Category         string     `gorm:"column:category;size:32;not null;index" json:"category"`
	StartedAt        time.Time  `gorm:"column:started_at;not null;index" json:"started_at"`
	Status           RunStatus  `gorm:"column:status;size:16;not null" json:"status"`
	RecordsProcessed int        `gorm:"column:records_processed;not null;default:0" json:"records_processed"`
	ErrorMessage     string     `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	FinishedAt       *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (SyncRun) TableName() string {
	return "sync_runs"
}
