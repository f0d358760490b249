// Package postgres provides a PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"

	"github.com/rbaliyan/gamemail/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger

	usersTable       string
	messagesTable    string
	attachmentsTable string
}

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:               db,
		opts:             o,
		logger:           o.logger,
		usersTable:       o.prefix + "users",
		messagesTable:    o.prefix + "messages",
		attachmentsTable: o.prefix + "attachments",
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
// This wraps the sql.DB with sqlx for enhanced functionality.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Connect initializes the schema and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL", "prefix", s.opts.prefix)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil
	}
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureSchema creates the required tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	tables := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				username VARCHAR(255) NOT NULL UNIQUE,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ
			)
		`, s.usersTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				sender_id BIGINT NOT NULL REFERENCES %s(id),
				recipient_id BIGINT NOT NULL REFERENCES %s(id),
				subject VARCHAR(200) NOT NULL,
				body TEXT NOT NULL,
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				read_at TIMESTAMPTZ,
				deleted_by_sender BOOLEAN NOT NULL DEFAULT FALSE,
				deleted_by_recipient BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`, s.messagesTable, s.usersTable, s.usersTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				message_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
				type VARCHAR(50) NOT NULL,
				item_id BIGINT,
				item_name VARCHAR(255) NOT NULL DEFAULT '',
				quantity NUMERIC NOT NULL DEFAULT 1,
				data JSONB NOT NULL DEFAULT '{}'
			)
		`, s.attachmentsTable, s.messagesTable),
	}

	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// The sender_id + created_at index backs every rate-limit history query.
	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_sender_created ON %s(sender_id, created_at DESC)`, s.messagesTable, s.messagesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_recipient_created ON %s(recipient_id, created_at DESC)`, s.messagesTable, s.messagesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_recipient_unread ON %s(recipient_id, is_read) WHERE NOT deleted_by_recipient`, s.messagesTable, s.messagesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_message ON %s(message_id)`, s.attachmentsTable, s.attachmentsTable),
	}

	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			s.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
	}

	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}
