// Package postgres provides a checkpoint.Saver backed by PostgreSQL through
// a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	"github.com/flowgraph/agentgraph/pkg/serialization"
)

// CheckpointSaver stores one row per checkpoint. State goes through the
// serializer; metadata is stored as JSON so it stays queryable.
type CheckpointSaver struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
	tableName  string
}

// NewCheckpointSaver wraps pool; see the sqlite saver for the serializer default.
func NewCheckpointSaver(pool *pgxpool.Pool, serializer *serialization.Serializer) *CheckpointSaver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &CheckpointSaver{
		pool:       pool,
		serializer: serializer,
		tableName:  "checkpoints",
	}
}

// Connect opens a pool for databaseURL, checks connectivity and prepares the
// schema.
func Connect(ctx context.Context, databaseURL string, serializer *serialization.Serializer) (*CheckpointSaver, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	saver := NewCheckpointSaver(pool, serializer)
	if err := saver.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return saver, nil
}

// Save upserts on id.
func (s *CheckpointSaver) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrInvalidCheckpointID
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("postgres: save: %w", err)
	}

	data, err := s.serializer.Serialize(cp.State)
	if err != nil {
		return fmt.Errorf("postgres: encode state: %w", err)
	}
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: encode metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, graph_id, thread_id, run_id, step, state, metadata, timestamp, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			metadata = EXCLUDED.metadata,
			step = EXCLUDED.step,
			timestamp = EXCLUDED.timestamp
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		cp.ID, cp.GraphID, cp.ThreadID, cp.Metadata.RunID, cp.Metadata.Step,
		data, metadataJSON, cp.Timestamp, cp.Version)
	if err != nil {
		return fmt.Errorf("postgres: save: %w", err)
	}
	return nil
}

// Load returns checkpoint.ErrCheckpointNotFound for unknown IDs.
func (s *CheckpointSaver) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	if id == "" {
		return nil, checkpoint.ErrInvalidCheckpointID
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.tableName)
	cp, err := s.scan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkpoint.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("postgres: load: %w", err)
	}
	return cp, nil
}

// List orders by step then timestamp, newest first.
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	checkpoints := make([]*checkpoint.Checkpoint, 0)
	for rows.Next() {
		cp, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list: %w", err)
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

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	if result.RowsAffected() == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// CreateTables is idempotent.
func (s *CheckpointSaver) CreateTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id VARCHAR(255) PRIMARY KEY,
			graph_id VARCHAR(255) NOT NULL,
			thread_id VARCHAR(255) NOT NULL,
			run_id VARCHAR(255) NOT NULL DEFAULT '',
			step INTEGER NOT NULL DEFAULT 0,
			state BYTEA NOT NULL,
			metadata JSONB,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version VARCHAR(50) NOT NULL DEFAULT '1.0'
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_thread_step ON %[1]s (graph_id, thread_id, step DESC, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_run_id ON %[1]s (run_id);
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

const selectColumns = "id, graph_id, thread_id, state, metadata, timestamp, version"

func (s *CheckpointSaver) scan(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	var data []byte
	var metadataJSON []byte

	if err := row.Scan(&cp.ID, &cp.GraphID, &cp.ThreadID, &data, &metadataJSON, &cp.Timestamp, &cp.Version); err != nil {
		return nil, err
	}

	cp.State = make(map[string]interface{})
	if err := s.serializer.Deserialize(data, &cp.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &cp.Metadata); err != nil {
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
	arg := func(clause string, v interface{}) {
		args = append(args, v)
		fmt.Fprintf(&b, clause, len(args))
	}

	if filter.GraphID != "" {
		arg(" AND graph_id = $%d", filter.GraphID)
	}
	if filter.ThreadID != "" {
		arg(" AND thread_id = $%d", filter.ThreadID)
	}
	if filter.RunID != "" {
		arg(" AND run_id = $%d", filter.RunID)
	}
	if filter.Since != nil {
		arg(" AND timestamp >= $%d", *filter.Since)
	}
	if filter.Before != nil {
		arg(" AND timestamp < $%d", *filter.Before)
	}

	b.WriteString(" ORDER BY step DESC, timestamp DESC")

	if filter.Limit > 0 {
		arg(" LIMIT $%d", filter.Limit)
	}
	if filter.Offset > 0 {
		arg(" OFFSET $%d", filter.Offset)
	}

	return b.String(), args
}

// Close closes the database connection pool
func (s *CheckpointSaver) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
