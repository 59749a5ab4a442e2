package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusFailed    RunStatus = "failed"
)

// RunState is the durable run flag shared between the trigger that starts a
// pass and the pass itself. It is persisted through the store so a restart
// never leaves a phantom "running" flag behind.
type RunState struct {
	IsRunning bool       `json:"is_running" db:"is_running"`
	Progress  float64    `json:"progress_percent" db:"progress"`
	LastRunAt *time.Time `json:"last_run_at" db:"last_run_at"`
}

// SyncRun is the persisted record of one fetch-normalize-reconcile pass.
type SyncRun struct {
	ID         int64      `json:"id" db:"id"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
	Status     RunStatus  `json:"status" db:"status"`
	Total      int        `json:"total" db:"total"`
	Created    int        `json:"created" db:"created"`
	Updated    int        `json:"updated" db:"updated"`
	Deleted    int        `json:"deleted" db:"deleted"`
	Errors     int        `json:"errors" db:"errors"`
}

// ImportStats mirrors the counters the admin surface polls during a pass.
type ImportStats struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Queued   int `json:"queued"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Errors   int `json:"errors"`
}

// SyncStatus is the response shape of the status endpoint.
type SyncStatus struct {
	IsRunning  bool        `json:"is_running"`
	Progress   float64     `json:"progress_percent"`
	LastRunAt  *time.Time  `json:"last_run_at"`
	Stats      ImportStats `json:"stats"`
	RecentLogs []LogEntry  `json:"recent_logs"`
}

// SyncEvent is the payload posted to the outbound webhook when a pass ends.
type SyncEvent struct {
	Event    string `json:"event"`
	Total    int    `json:"total"`
	Imported int    `json:"imported"`
	Errors   int    `json:"errors"`
	Deleted  int    `json:"deleted"`
}

const (
	EventImportCompleted = "import_completed"
	EventSyncCompleted   = "sync_completed"
)
