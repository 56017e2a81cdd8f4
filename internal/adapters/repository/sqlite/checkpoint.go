// Package sqlite provides a checkpoint.Saver backed by SQLite through the
// pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	"github.com/flowgraph/agentgraph/pkg/serialization"
)

// CheckpointSaver stores one row per checkpoint. State goes through the
// serializer; metadata is stored as JSON so it stays queryable.
type CheckpointSaver struct {
	db         *sql.DB
	serializer *serialization.Serializer
	tableName  string
}

// NewCheckpointSaver wraps an open database. A nil serializer means
// serialization.DefaultSerializer. Call CreateTables before first use.
func NewCheckpointSaver(db *sql.DB, serializer *serialization.Serializer) *CheckpointSaver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &CheckpointSaver{
		db:         db,
		serializer: serializer,
		tableName:  "checkpoints",
	}
}

// Open opens (or creates) the database at dsn and prepares the schema.
// ":memory:" is limited to a single connection so every query sees the same
// database.
func Open(ctx context.Context, dsn string, serializer *serialization.Serializer) (*CheckpointSaver, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	saver := NewCheckpointSaver(db, serializer)
	if err := saver.CreateTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return saver, nil
}

// WithTableName allows overriding the default table name with validation.
// Only alphanumeric and underscore are permitted to prevent SQL injection via identifiers.
func (s *CheckpointSaver) WithTableName(name string) *CheckpointSaver {
	if isSafeIdent(name) {
		s.tableName = name
	}
	return s
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

// Save stores a checkpoint in SQLite, replacing one with the same ID
func (s *CheckpointSaver) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrInvalidCheckpointID
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("sqlite: save: %w", err)
	}

	data, err := s.serializer.Serialize(cp.State)
	if err != nil {
		return fmt.Errorf("sqlite: encode state: %w", err)
	}
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encode metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (id, graph_id, thread_id, run_id, step, state, metadata, timestamp, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		cp.ID, cp.GraphID, cp.ThreadID, cp.Metadata.RunID, cp.Metadata.Step,
		data, string(metadataJSON), cp.Timestamp.UnixNano(), cp.Version)
	if err != nil {
		return fmt.Errorf("sqlite: save: %w", err)
	}
	return nil
}

// Load returns checkpoint.ErrCheckpointNotFound for unknown IDs.
func (s *CheckpointSaver) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	if id == "" {
		return nil, checkpoint.ErrInvalidCheckpointID
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, s.tableName)
	cp, err := s.scan(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	return cp, nil
}

// List orders by step then timestamp, newest first.
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	query, args := s.buildListQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	checkpoints := make([]*checkpoint.Checkpoint, 0)
	for rows.Next() {
		cp, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// Delete returns checkpoint.ErrCheckpointNotFound when no row matched.
func (s *CheckpointSaver) Delete(ctx context.Context, id string) error {
	if id == "" {
		return checkpoint.ErrInvalidCheckpointID
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	if rowsAffected == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// CreateTables is idempotent.
func (s *CheckpointSaver) CreateTables(ctx context.Context) error {
	t := s.tableName
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			graph_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			step INTEGER NOT NULL DEFAULT 0,
			state BLOB NOT NULL,
			metadata TEXT,
			timestamp INTEGER NOT NULL,
			version TEXT NOT NULL DEFAULT '1.0'
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_thread_step ON %[1]s (graph_id, thread_id, step DESC, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_run_id ON %[1]s (run_id);
	`, t)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	return nil
}

const selectColumns = "id, graph_id, thread_id, state, metadata, timestamp, version"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *CheckpointSaver) scan(row rowScanner) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	var data []byte
	var metadataJSON sql.NullString
	var timestamp int64

	if err := row.Scan(&cp.ID, &cp.GraphID, &cp.ThreadID, &data, &metadataJSON, &timestamp, &cp.Version); err != nil {
		return nil, err
	}
	cp.Timestamp = time.Unix(0, timestamp).UTC()

	cp.State = make(map[string]interface{})
	if err := s.serializer.Deserialize(data, &cp.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &cp, nil
}

// buildListQuery appends one predicate per non-empty filter field.
func (s *CheckpointSaver) buildListQuery(filter checkpoint.Filter) (string, []interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE 1=1", selectColumns, s.tableName)
	args := make([]interface{}, 0)

	if filter.GraphID != "" {
		b.WriteString(" AND graph_id = ?")
		args = append(args, filter.GraphID)
	}
	if filter.ThreadID != "" {
		b.WriteString(" AND thread_id = ?")
		args = append(args, filter.ThreadID)
	}
	if filter.RunID != "" {
		b.WriteString(" AND run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Since != nil {
		b.WriteString(" AND timestamp >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Before != nil {
		b.WriteString(" AND timestamp < ?")
		args = append(args, filter.Before.UnixNano())
	}

	b.WriteString(" ORDER BY step DESC, timestamp DESC")

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit == 0 {
			limit = -1
		}
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, filter.Offset)
	}

	return b.String(), args
}

// Close closes the database connection
func (s *CheckpointSaver) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
