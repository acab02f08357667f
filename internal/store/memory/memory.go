// Package memory provides an in-memory Store used by tests and by
// deployments that don't need durable persistence.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/store"
)

// Store keeps everything in maps guarded by one mutex. The mutex also
// makes seq assignment atomic, which is the storage-layer answer to
// concurrent appends on the same session.
type Store struct {
	mu        sync.Mutex
	personas  map[string]*chat.Persona // by id
	sessions  map[string]*chat.Session // by id
	messages  map[string][]*chat.Message
	summaries map[string]*chat.Summary // by message id
	now       func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		personas:  make(map[string]*chat.Persona),
		sessions:  make(map[string]*chat.Session),
		messages:  make(map[string][]*chat.Message),
		summaries: make(map[string]*chat.Summary),
		now:       time.Now,
	}
}

// SetClock overrides the store's clock. Test helper.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) CreatePersona(ctx context.Context, p *chat.Persona) (*chat.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.personas {
		if existing.Code == p.Code {
			return nil, store.ErrDuplicateCode
		}
	}

	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now().UTC()
	}
	s.personas[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *Store) GetPersonaByCode(ctx context.Context, code string, includeInactive bool) (*chat.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.personas {
		if p.Code != code {
			continue
		}
		if !p.Active && !includeInactive {
			return nil, store.ErrNotFound
		}
		cp := *p
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListPersonas(ctx context.Context) ([]*chat.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*chat.Persona
	for _, p := range s.personas {
		if !p.Active {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *chat.Session) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = chat.SessionActive
	}
	s.sessions[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID, userID string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) LatestActiveSession(ctx context.Context, userID, personaID string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *chat.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.PersonaID != personaID || sess.Status != chat.SessionActive {
			continue
		}
		if latest == nil || sess.UpdatedAt.After(latest.UpdatedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) ListSessions(ctx context.Context, userID, personaID string, limit int) ([]*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*chat.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.PersonaID != personaID {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AppendMessage(ctx context.Context, in store.AppendMessageInput) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[in.SessionID]
	if !ok {
		return nil, store.ErrNotFound
	}

	// Read current max seq, then insert max+1. Atomic under s.mu.
	var maxSeq int64
	for _, m := range s.messages[in.SessionID] {
		if m.Seq > maxSeq {
			maxSeq = m.Seq
		}
	}

	now := s.now().UTC()
	msg := &chat.Message{
		ID:            uuid.New().String(),
		SessionID:     in.SessionID,
		Role:          in.Role,
		Type:          in.Type,
		Content:       in.Content,
		MediaURL:      in.MediaURL,
		MediaMimeType: in.MediaMimeType,
		Seq:           maxSeq + 1,
		CreatedAt:     now,
	}
	s.messages[in.SessionID] = append(s.messages[in.SessionID], msg)
	sess.UpdatedAt = now

	cp := *msg
	return &cp, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[sessionID]
	out := make([]*chat.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) UpsertSummary(ctx context.Context, sum *chat.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sum
	s.summaries[sum.MessageID] = &cp
	return nil
}

func (s *Store) GetSummary(ctx context.Context, messageID string) (*chat.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum, ok := s.summaries[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sum
	return &cp, nil
}

func (s *Store) ListUnsummarized(ctx context.Context, limit int) ([]*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*chat.Message
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.Role == chat.RoleSystem || strings.TrimSpace(m.Content) == "" {
				continue
			}
			if _, ok := s.summaries[m.ID]; ok {
				continue
			}
			cp := *m
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
