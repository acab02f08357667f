// Package store defines the persistence gateway for personas, sessions,
// messages and message summaries. Implementations must be safe for
// concurrent use.
package store

import (
	"context"
	"errors"

	"github.com/parley-dev/parley/internal/chat"
)

// Common errors for storage operations.
var (
	// ErrNotFound is returned when a requested row doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCode is returned when a persona code is already taken.
	ErrDuplicateCode = errors.New("duplicate persona code")
	// ErrSeqConflict is returned when a concurrent append claimed the
	// same sequence number. Callers may retry the append.
	ErrSeqConflict = errors.New("sequence number conflict")
)

// AppendMessageInput carries everything needed to append one message.
// Seq is never part of the input: the store assigns the next sequence
// number for the session under the append itself.
type AppendMessageInput struct {
	SessionID     string
	Role          chat.Role
	Type          chat.MessageType
	Content       string
	MediaURL      string
	MediaMimeType string
}

// Store is the persistence gateway.
type Store interface {
	// CreatePersona inserts a new persona.
	// Returns ErrDuplicateCode if the code is taken (active or not).
	CreatePersona(ctx context.Context, p *chat.Persona) (*chat.Persona, error)

	// GetPersonaByCode looks a persona up by its stable external code.
	// Inactive personas are invisible unless includeInactive is set.
	// Returns ErrNotFound on a miss.
	GetPersonaByCode(ctx context.Context, code string, includeInactive bool) (*chat.Persona, error)

	// ListPersonas returns active personas in creation order.
	ListPersonas(ctx context.Context) ([]*chat.Persona, error)

	// CreateSession inserts a new session.
	CreateSession(ctx context.Context, s *chat.Session) (*chat.Session, error)

	// GetSession retrieves a session scoped to its owner.
	// Returns ErrNotFound on a miss.
	GetSession(ctx context.Context, sessionID, userID string) (*chat.Session, error)

	// LatestActiveSession returns the most recently updated active
	// session for (user, persona), or ErrNotFound.
	LatestActiveSession(ctx context.Context, userID, personaID string) (*chat.Session, error)

	// ListSessions returns sessions for (user, persona) in recency order.
	ListSessions(ctx context.Context, userID, personaID string, limit int) ([]*chat.Session, error)

	// AppendMessage appends a message with the next per-session seq
	// (read current max, insert max+1) and touches the session's
	// UpdatedAt. The seq race between concurrent appends is closed
	// here, not by callers.
	AppendMessage(ctx context.Context, in AppendMessageInput) (*chat.Message, error)

	// ListMessages returns up to limit of the newest messages for a
	// session, reordered ascending by seq.
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*chat.Message, error)

	// UpsertSummary writes a message summary, overwriting on conflict.
	UpsertSummary(ctx context.Context, s *chat.Summary) error

	// GetSummary retrieves a message's summary, or ErrNotFound.
	GetSummary(ctx context.Context, messageID string) (*chat.Summary, error)

	// ListUnsummarized returns ids and contents of recent messages that
	// have no summary yet, for the backfill sweep.
	ListUnsummarized(ctx context.Context, limit int) ([]*chat.Message, error)

	// Close releases any resources held by the store.
	Close() error
}
