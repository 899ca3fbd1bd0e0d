package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": jsonl files next to Path
//   - "sqlite": SQLite database file (build tag sqlite)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// KeepRuns bounds the in-memory history of the file driver (default 200).
	KeepRuns int
}

// RunRecord is the persisted terminal summary of one run.
type RunRecord struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Source     string    `json:"source,omitempty"`
	State      string    `json:"state"`
	Jobs       int       `json:"jobs"`
	Published  int       `json:"published"`
	Scheduled  int       `json:"scheduled"`
	Skipped    int       `json:"skipped"`
	Cancelled  bool      `json:"cancelled"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// AuditEntry records an operator action (run requests, stop requests, rejections).
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	Source        string    `json:"source"`
	ActorID       int64     `json:"actor_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	Action        string    `json:"action"`
	RunID         string    `json:"run_id,omitempty"`
	OK            bool      `json:"ok"`
	Error         string    `json:"error,omitempty"`
	TookMS        int64     `json:"took_ms,omitempty"`
	MetaJSON      string    `json:"meta,omitempty"`
}
