package chat

import (
	"errors"
	"time"
)

// Role identifies the author of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType identifies the delivery modality of an assistant reply.
// User messages are always text.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeAudio MessageType = "audio"
	MessageTypeImage MessageType = "image"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
)

// Common errors for the chat domain.
var (
	// ErrPersonaNotFound is returned when a persona code resolves to nothing.
	ErrPersonaNotFound = errors.New("persona not found")
	// ErrSessionNotFound is returned when a session lookup misses.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPersonaMismatch is returned when an explicit session id belongs
	// to a different persona than the one requested.
	ErrPersonaMismatch = errors.New("session does not belong to requested persona")
	// ErrPersonaExists is returned when creating a persona with a taken code.
	ErrPersonaExists = errors.New("persona code already exists")
	// ErrEmptyCompletion is returned when the model produced no usable text.
	ErrEmptyCompletion = errors.New("model produced no usable reply")
)

// Persona is a named system-prompt configuration selectable by users.
// Personas are read-mostly; Active=false hides one from user-facing
// listing and lookup without touching historical sessions.
type Persona struct {
	ID           string
	Code         string
	Name         string
	Description  string
	SystemPrompt string
	Active       bool
	CreatedAt    time.Time
}

// Session is one conversation thread between a user and a persona.
// The persona binding is immutable after creation. UpdatedAt advances
// on every appended message and orders "latest session" lookups.
type Session struct {
	ID             string
	UserID         string
	PersonaID      string
	Title          string
	InitialContext string
	Status         SessionStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message is a single immutable conversation entry. Seq is assigned by
// the store on append, strictly increasing and gapless per session,
// starting at 1. For audio/image messages Content carries the
// spoken/descriptive text; the binary lives behind MediaURL.
type Message struct {
	ID            string
	SessionID     string
	Role          Role
	Type          MessageType
	Content       string
	MediaURL      string
	MediaMimeType string
	Seq           int64
	CreatedAt     time.Time
}

// Summary is an optional 1:1 enrichment of a message produced by the
// background summarization pipeline. Model records which model wrote it.
type Summary struct {
	MessageID string
	Summary   string
	Model     string
}
