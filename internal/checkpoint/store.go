// Package checkpoint persists conversation state per thread so a
// restart resumes exactly where the last invocation committed.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id  TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Config holds checkpoint store settings. SQLite is the default so a
// single-user install needs no external database; Postgres works for
// shared deployments.
type Config struct {
	Driver  string        `mapstructure:"driver" yaml:"driver"`
	DSN     string        `mapstructure:"dsn" yaml:"dsn"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Store is a thread-keyed conversation snapshot table.
type Store struct {
	db     *sqlx.DB
	cfg    Config
	logger *zap.Logger
}

// NewStore opens the database and ensures the schema exists.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite3"
	}
	if cfg.DSN == "" {
		cfg.DSN = "ikaris.db"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping checkpoint db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate checkpoint db: %w", err)
	}

	logger.Info("Checkpoint store ready", zap.String("driver", cfg.Driver))
	return &Store{db: db, cfg: cfg, logger: logger}, nil
}

// NewStoreWithDB wraps an already-open connection. Used by tests.
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, cfg: Config{Timeout: 5 * time.Second}, logger: logger}
}

// Get loads the conversation for a thread. The second return is false
// when the thread has never been checkpointed.
func (s *Store) Get(ctx context.Context, threadID string) (*state.Conversation, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var raw string
	query := s.db.Rebind("SELECT state FROM checkpoints WHERE thread_id = ?")
	err := s.db.GetContext(ctx, &raw, query, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}

	var conv state.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, false, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	return &conv, true, nil
}

// Put writes the conversation snapshot, replacing any previous one for
// the thread.
func (s *Store) Put(ctx context.Context, threadID string, conv *state.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", threadID, err)
	}

	query := s.db.Rebind(`
		INSERT INTO checkpoints (thread_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`)
	_, err = s.db.ExecContext(ctx, query, threadID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write checkpoint %s: %w", threadID, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
