package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/brapikg/internal/errors"
	"github.com/rohankatakam/brapikg/internal/graph"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS graph_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		node_count INTEGER NOT NULL DEFAULT 0,
		edge_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS graph_nodes (
		run_id TEXT NOT NULL REFERENCES graph_runs(id),
		seq INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		label TEXT NOT NULL,
		properties TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS graph_edges (
		run_id TEXT NOT NULL REFERENCES graph_runs(id),
		seq INTEGER NOT NULL,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		label TEXT NOT NULL,
		properties TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_nodes_label ON graph_nodes(run_id, label)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_edges_label ON graph_edges(run_id, label)`,
}

// StagingStore stages node and edge sequences in a relational database so a
// build can be inspected or diffed before it is loaded into a graph database.
type StagingStore struct {
	db     *sqlx.DB
	driver string
	logger *logrus.Logger

	runID   string
	nodeSeq int
	edgeSeq int
}

// NewStagingStore connects with the given driver ("sqlite3", "postgres" or "pgx")
// and creates the staging schema.
func NewStagingStore(ctx context.Context, driver, dsn string, logger *logrus.Logger) (*StagingStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, errors.FileSystemErrorf(err, "create database directory for %s", dsn)
			}
		}
	case DriverPostgres, DriverPgx:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadDriver, driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "connect to %s", driver)
	}

	if driver == DriverSQLite {
		// One connection: in-memory databases are per connection, and SQLite
		// serializes writers anyway.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, errors.DatabaseError(err, "enable foreign keys")
		}
	}

	store := &StagingStore{db: db, driver: driver, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, errors.DatabaseError(err, "init staging schema")
	}

	return store, nil
}

func (s *StagingStore) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// BeginRun registers a new run; subsequent writes are tagged with its id
func (s *StagingStore) BeginRun(ctx context.Context, source string) (string, error) {
	id := uuid.NewString()
	query := s.db.Rebind(`INSERT INTO graph_runs (id, source, started_at) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, id, source, time.Now().UTC()); err != nil {
		return "", errors.DatabaseError(err, "insert staging run")
	}

	s.runID = id
	s.nodeSeq = 0
	s.edgeSeq = 0
	s.logger.WithFields(logrus.Fields{"run_id": id, "source": source}).Info("Started staging run")
	return id, nil
}

// RunID returns the current run id, empty before BeginRun
func (s *StagingStore) RunID() string {
	return s.runID
}

// WriteNodes inserts nodes in one transaction. A sequence error rolls back
// the nodes of this call and is returned unchanged.
func (s *StagingStore) WriteNodes(ctx context.Context, nodes graph.NodeSeq) (int, error) {
	if s.runID == "" {
		return 0, ErrNoRun
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.DatabaseError(err, "begin node transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(
		`INSERT INTO graph_nodes (run_id, seq, node_id, label, properties) VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, errors.DatabaseError(err, "prepare node insert")
	}
	defer stmt.Close()

	seq := s.nodeSeq
	written := 0
	for node, err := range nodes {
		if err != nil {
			return 0, err
		}
		props, err := encodeProperties(node.Properties)
		if err != nil {
			return 0, errors.ValidationError(err, fmt.Sprintf("encode properties of node %s", node.ID))
		}
		if _, err := stmt.ExecContext(ctx, s.runID, seq, node.ID, node.Label, props); err != nil {
			return 0, errors.DatabaseErrorf(err, "insert node %s", node.ID)
		}
		seq++
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.DatabaseError(err, "commit nodes")
	}
	s.nodeSeq = seq

	s.logger.WithFields(logrus.Fields{"run_id": s.runID, "count": written}).Info("Staged nodes")
	return written, nil
}

// WriteEdges inserts edges in one transaction
func (s *StagingStore) WriteEdges(ctx context.Context, edges graph.EdgeSeq) (int, error) {
	if s.runID == "" {
		return 0, ErrNoRun
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.DatabaseError(err, "begin edge transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(
		`INSERT INTO graph_edges (run_id, seq, source_id, target_id, label, properties) VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, errors.DatabaseError(err, "prepare edge insert")
	}
	defer stmt.Close()

	seq := s.edgeSeq
	written := 0
	for edge, err := range edges {
		if err != nil {
			return 0, err
		}
		props, err := encodeProperties(edge.Properties)
		if err != nil {
			return 0, errors.ValidationError(err, fmt.Sprintf("encode properties of edge %s->%s", edge.From, edge.To))
		}
		if _, err := stmt.ExecContext(ctx, s.runID, seq, edge.From, edge.To, edge.Label, props); err != nil {
			return 0, errors.DatabaseErrorf(err, "insert edge %s->%s", edge.From, edge.To)
		}
		seq++
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.DatabaseError(err, "commit edges")
	}
	s.edgeSeq = seq

	s.logger.WithFields(logrus.Fields{"run_id": s.runID, "count": written}).Info("Staged edges")
	return written, nil
}

// FinishRun stamps the run with its final counts
func (s *StagingStore) FinishRun(ctx context.Context) error {
	if s.runID == "" {
		return ErrNoRun
	}

	query := s.db.Rebind(`UPDATE graph_runs SET finished_at = ?, node_count = ?, edge_count = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), s.nodeSeq, s.edgeSeq, s.runID); err != nil {
		return errors.DatabaseError(err, "finish staging run")
	}
	return nil
}

// GetRun returns a staged run by id
func (s *StagingStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	query := s.db.Rebind(`SELECT id, source, started_at, finished_at, node_count, edge_count FROM graph_runs WHERE id = ?`)
	if err := s.db.GetContext(ctx, &run, query, runID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.DatabaseError(err, "get staging run")
	}
	return &run, nil
}

// Counts returns the number of staged nodes and edges for a run
func (s *StagingStore) Counts(ctx context.Context, runID string) (nodes, edges int, err error) {
	if err := s.db.GetContext(ctx, &nodes, s.db.Rebind(`SELECT COUNT(*) FROM graph_nodes WHERE run_id = ?`), runID); err != nil {
		return 0, 0, errors.DatabaseError(err, "count staged nodes")
	}
	if err := s.db.GetContext(ctx, &edges, s.db.Rebind(`SELECT COUNT(*) FROM graph_edges WHERE run_id = ?`), runID); err != nil {
		return 0, 0, errors.DatabaseError(err, "count staged edges")
	}
	return nodes, edges, nil
}

// Nodes returns the staged nodes of a run in emission order
func (s *StagingStore) Nodes(ctx context.Context, runID string) ([]StagedNode, error) {
	var nodes []StagedNode
	query := s.db.Rebind(`SELECT run_id, seq, node_id, label, properties FROM graph_nodes WHERE run_id = ? ORDER BY seq`)
	if err := s.db.SelectContext(ctx, &nodes, query, runID); err != nil {
		return nil, errors.DatabaseError(err, "select staged nodes")
	}
	return nodes, nil
}

// Edges returns the staged edges of a run in emission order
func (s *StagingStore) Edges(ctx context.Context, runID string) ([]StagedEdge, error) {
	var edges []StagedEdge
	query := s.db.Rebind(`SELECT run_id, seq, source_id, target_id, label, properties FROM graph_edges WHERE run_id = ? ORDER BY seq`)
	if err := s.db.SelectContext(ctx, &edges, query, runID); err != nil {
		return nil, errors.DatabaseError(err, "select staged edges")
	}
	return edges, nil
}

// Close closes the database connection
func (s *StagingStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func encodeProperties(props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
