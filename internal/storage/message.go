// Package storage persists chat messages.
//
// Two backends implement MessageStore: Firestore for production and SQLite
// for local development and tests.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/tuitionchat/tuition-chat-go/internal/errors"
)

// Role is who wrote a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

// DefaultHistoryLimit applies when History is called with limit <= 0.
const DefaultHistoryLimit = 50

// createdAtLayout is the ISO-8601 millisecond form clients sort on.
const createdAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Backend names, used in metrics labels.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Message is one stored chat line. Messages are append-only; they are
// removed only by clearing history.
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}

type messageJSON struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Role      Role           `json:"role"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"createdAt"`
}

// MarshalJSON writes createdAt as an ISO-8601 UTC string with milliseconds.
func (m Message) MarshalJSON() ([]byte, error) {
	meta := m.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return json.Marshal(messageJSON{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      m.Role,
		Message:   m.Message,
		Metadata:  meta,
		CreatedAt: formatCreatedAt(m.CreatedAt),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(b []byte) error {
	var w messageJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	created, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil && w.CreatedAt != "" {
		return fmt.Errorf("createdAt: %w", err)
	}
	*m = Message{
		ID:        w.ID,
		SessionID: w.SessionID,
		Role:      w.Role,
		Message:   w.Message,
		Metadata:  w.Metadata,
		CreatedAt: created,
	}
	return nil
}

// MessageStore is the chat history backend.
type MessageStore interface {
	// Append stores m and returns it with ID and CreatedAt set.
	Append(ctx context.Context, m Message) (Message, error)
	// History returns a session's messages, oldest first.
	History(ctx context.Context, sessionID string, limit int) ([]Message, error)
	// DeleteSession removes a session's messages and returns how many.
	DeleteSession(ctx context.Context, sessionID string) (int, error)
	// DeleteAll removes every message and returns how many.
	DeleteAll(ctx context.Context) (int, error)
	// Watch streams messages appended to the session after the call.
	// The channel closes when ctx ends or the store closes.
	Watch(ctx context.Context, sessionID string) (<-chan Message, error)
	Ping(ctx context.Context) error
	Close() error
}

// Backend reports which backend a store is, for logs and metrics.
type Backend interface {
	Backend() string
}

var errStoreClosed = errors.New("message store closed")

// validate checks the fields a caller must set.
func validate(m Message) error {
	if m.SessionID == "" {
		return apperrors.NewValidationError("sessionId", "is required")
	}
	if !m.Role.Valid() {
		return apperrors.NewValidationError("role", fmt.Sprintf("unknown role %q", m.Role))
	}
	return nil
}

// CleanMetadata returns a JSON-safe copy of meta. Typed values (structs,
// pointers) become plain maps, slices and numbers; nulls are kept so a
// stored API snapshot reads back exactly as it was answered.
func CleanMetadata(meta map[string]any) (map[string]any, error) {
	if len(meta) == 0 {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

func formatCreatedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(createdAtLayout)
}
