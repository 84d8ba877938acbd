package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver for database/sql

	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
)

// Options are shared by both backends.
type Options struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	// Now overrides the clock for CreatedAt (tests only).
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SQLiteStore keeps messages in a local SQLite file.
type SQLiteStore struct {
	conn    *sql.DB
	path    string
	hub     *broadcaster
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewSQLite opens (creating if needed) the database at dbPath and
// initializes the schema. ":memory:" gives a private in-memory database.
func NewSQLite(ctx context.Context, dbPath string, opts Options) (*SQLiteStore, error) {
	opts = opts.withDefaults()

	// Ensure directory exists (skip for in-memory database)
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
	}
	conn.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{
		conn:    conn,
		path:    dbPath,
		hub:     newBroadcaster(),
		logger:  opts.Logger.WithModule("storage"),
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	s.hub.onDrop = func(sessionID string) {
		s.logger.Warn("watcher too slow, message dropped", "session_id", sessionID)
	}
	return s, nil
}

func initSchema(ctx context.Context, conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT CHECK(role IN ('user', 'bot')) NOT NULL,
		message TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at);
	`
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}
	return nil
}

// Backend implements Backend.
func (s *SQLiteStore) Backend() string { return BackendSQLite }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Append implements MessageStore.
func (s *SQLiteStore) Append(ctx context.Context, m Message) (_ Message, err error) {
	defer func() { s.metrics.RecordStoreOp(BackendSQLite, "append", err) }()

	if err := validate(m); err != nil {
		return Message{}, err
	}
	meta, err := CleanMetadata(m.Metadata)
	if err != nil {
		return Message{}, err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Message{}, fmt.Errorf("metadata: %w", err)
	}

	m.ID = uuid.NewString()
	m.Metadata = meta
	m.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, message, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, string(m.Role), m.Message, string(metaJSON), m.CreatedAt.UnixMilli())
	if err != nil {
		return Message{}, fmt.Errorf("failed to save message: %w", err)
	}

	s.hub.publish(m)
	return m, nil
}

// History implements MessageStore.
func (s *SQLiteStore) History(ctx context.Context, sessionID string, limit int) (_ []Message, err error) {
	defer func() { s.metrics.RecordStoreOp(BackendSQLite, "history", err) }()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, session_id, role, message, metadata, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY created_at ASC, rowid ASC LIMIT ?`,
		sessionID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			m        Message
			role     string
			metaJSON string
			created  int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Message, &metaJSON, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.UnixMilli(created).UTC()
		if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
			s.logger.WithError(err).WarnContext(ctx, "unreadable message metadata", "id", m.ID)
			m.Metadata = map[string]any{}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return messages, nil
}

// DeleteSession implements MessageStore.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (_ int, err error) {
	defer func() { s.metrics.RecordStoreOp(BackendSQLite, "delete_session", err) }()

	res, err := s.conn.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted messages: %w", err)
	}
	return int(n), nil
}

// DeleteAll implements MessageStore.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (_ int, err error) {
	defer func() { s.metrics.RecordStoreOp(BackendSQLite, "delete_all", err) }()

	res, err := s.conn.ExecContext(ctx, `DELETE FROM messages`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted messages: %w", err)
	}
	return int(n), nil
}

// Watch implements MessageStore. Only messages appended through this
// process are seen.
func (s *SQLiteStore) Watch(ctx context.Context, sessionID string) (<-chan Message, error) {
	return s.hub.subscribe(ctx, sessionID)
}

// Ping implements MessageStore.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close ends all watches and closes the database.
func (s *SQLiteStore) Close() error {
	s.hub.close()
	return s.conn.Close()
}
