package storage

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound  = errors.New("not found")
	ErrNoRun     = errors.New("no staging run in progress")
	ErrBadDriver = errors.New("unsupported staging driver")
)

// Supported database/sql driver names
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres" // lib/pq
	DriverPgx      = "pgx"      // jackc/pgx stdlib
)

// Run is one staged build
type Run struct {
	ID         string     `db:"id"`
	Source     string     `db:"source"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	NodeCount  int        `db:"node_count"`
	EdgeCount  int        `db:"edge_count"`
}

// StagedNode is a node row as stored
type StagedNode struct {
	RunID      string `db:"run_id"`
	Seq        int    `db:"seq"`
	NodeID     string `db:"node_id"`
	Label      string `db:"label"`
	Properties string `db:"properties"` // JSON object
}

// StagedEdge is an edge row as stored
type StagedEdge struct {
	RunID      string `db:"run_id"`
	Seq        int    `db:"seq"`
	SourceID   string `db:"source_id"`
	TargetID   string `db:"target_id"`
	Label      string `db:"label"`
	Properties string `db:"properties"` // JSON object
}
