// Package postgres provides a PostgreSQL implementation of storage.Log.
// It uses pgx/v5 for connection pooling and stores each message record as
// JSONB with a server-assigned sequence number preserving append order.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/storage"
)

// Log is a PostgreSQL-backed conversation log.
type Log struct {
	pool *pgxpool.Pool
}

// Ensure Log implements storage.Log at compile time.
var _ storage.Log = (*Log)(nil)

// New creates a new PostgreSQL log with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Log, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	l := &Log{pool: pool}

	if cfg.MigrateOnStart {
		if err := l.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return l, nil
}

// Append persists messages in a single transaction so a failed turn never
// leaves a partial suffix in the log.
func (l *Log) Append(ctx context.Context, conversationID string, messages ...api.Message) error {
	if conversationID == "" {
		return fmt.Errorf("invalid conversation id %q", conversationID)
	}
	if len(messages) == 0 {
		return nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range messages {
		payload, err := api.MarshalRecord(m)
		if err != nil {
			return fmt.Errorf("encoding message %s: %w", m.ID, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_messages (
				conversation_id, message_id, role, recorded_at, payload
			) VALUES ($1, $2, $3, $4, $5)
		`,
			conversationID, m.ID, string(m.Role), m.Timestamp, payload,
		)
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// Replay returns the full history of a conversation in append order.
func (l *Log) Replay(ctx context.Context, conversationID string) ([]api.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("invalid conversation id %q", conversationID)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT payload FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY seq
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (api.Message, error) {
		var payload []byte
		if err := row.Scan(&payload); err != nil {
			return api.Message{}, err
		}
		return api.UnmarshalRecord(payload)
	})
	if err != nil {
		return nil, fmt.Errorf("reading conversation %s: %w", conversationID, err)
	}
	if len(history) == 0 {
		return nil, storage.ErrNotFound
	}
	return history, nil
}

// Close releases the connection pool.
func (l *Log) Close() error {
	l.pool.Close()
	return nil
}

// HealthCheck verifies database connectivity.
func (l *Log) HealthCheck(ctx context.Context) error {
	return l.pool.Ping(ctx)
}
