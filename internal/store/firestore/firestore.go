// Package firestore provides the Firestore-backed Store. The layout
// mirrors the logical tables: top-level personas, sessions, messages
// and summaries collections, with messages carrying a session_id field.
package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/store"
)

const (
	colPersonas  = "personas"
	colSessions  = "sessions"
	colMessages  = "messages"
	colSummaries = "summaries"
)

// Store implements store.Store on Firestore.
type Store struct {
	client *firestore.Client
}

// New creates a Firestore store for the given GCP project.
func New(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client. Useful with the emulator.
func NewFromClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

type personaDoc struct {
	Code         string    `firestore:"code"`
	Name         string    `firestore:"name"`
	Description  string    `firestore:"description"`
	SystemPrompt string    `firestore:"system_prompt"`
	Active       bool      `firestore:"active"`
	CreatedAt    time.Time `firestore:"created_at"`
}

type sessionDoc struct {
	UserID         string    `firestore:"user_id"`
	PersonaID      string    `firestore:"persona_id"`
	Title          string    `firestore:"title"`
	InitialContext string    `firestore:"initial_context"`
	Status         string    `firestore:"status"`
	CreatedAt      time.Time `firestore:"created_at"`
	UpdatedAt      time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	SessionID      string    `firestore:"session_id"`
	Role           string    `firestore:"role"`
	Type           string    `firestore:"type"`
	Content        string    `firestore:"content"`
	MediaURL       string    `firestore:"media_url"`
	MediaMimeType  string    `firestore:"media_mime_type"`
	Seq            int64     `firestore:"seq"`
	SummaryPending bool      `firestore:"summary_pending"`
	CreatedAt      time.Time `firestore:"created_at"`
}

type summaryDoc struct {
	Summary string `firestore:"summary"`
	Model   string `firestore:"model"`
}

func (s *Store) CreatePersona(ctx context.Context, p *chat.Persona) (*chat.Persona, error) {
	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	doc := personaDoc{
		Code:         cp.Code,
		Name:         cp.Name,
		Description:  cp.Description,
		SystemPrompt: cp.SystemPrompt,
		Active:       cp.Active,
		CreatedAt:    cp.CreatedAt,
	}

	// The code-uniqueness check and the insert run in one transaction,
	// so two concurrent creates with the same code cannot both pass the
	// check. Uniqueness spans inactive personas too.
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		iter := tx.Documents(s.client.Collection(colPersonas).
			Where("code", "==", cp.Code).
			Limit(1))
		_, err := iter.Next()
		if err == nil {
			return store.ErrDuplicateCode
		}
		if err != iterator.Done {
			return err
		}
		return tx.Create(s.client.Collection(colPersonas).Doc(cp.ID), doc)
	})
	if err != nil {
		if err == store.ErrDuplicateCode || status.Code(err) == codes.AlreadyExists {
			return nil, store.ErrDuplicateCode
		}
		return nil, fmt.Errorf("firestore CreatePersona: %w", err)
	}
	return &cp, nil
}

func (s *Store) GetPersonaByCode(ctx context.Context, code string, includeInactive bool) (*chat.Persona, error) {
	q := s.client.Collection(colPersonas).Where("code", "==", code).Limit(1)
	if !includeInactive {
		q = s.client.Collection(colPersonas).
			Where("code", "==", code).
			Where("active", "==", true).
			Limit(1)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore GetPersonaByCode: %w", err)
	}
	return decodePersona(snap)
}

func (s *Store) ListPersonas(ctx context.Context) ([]*chat.Persona, error) {
	iter := s.client.Collection(colPersonas).
		Where("active", "==", true).
		OrderBy("created_at", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []*chat.Persona
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListPersonas: %w", err)
		}
		p, err := decodePersona(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *chat.Session) (*chat.Session, error) {
	cp := *sess
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = chat.SessionActive
	}

	doc := sessionDoc{
		UserID:         cp.UserID,
		PersonaID:      cp.PersonaID,
		Title:          cp.Title,
		InitialContext: cp.InitialContext,
		Status:         string(cp.Status),
		CreatedAt:      cp.CreatedAt,
		UpdatedAt:      cp.UpdatedAt,
	}
	if _, err := s.client.Collection(colSessions).Doc(cp.ID).Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("firestore CreateSession: %w", err)
	}
	return &cp, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID, userID string) (*chat.Session, error) {
	snap, err := s.client.Collection(colSessions).Doc(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}
	sess, err := decodeSession(snap)
	if err != nil {
		return nil, err
	}
	// Ownership check happens here so the handler never sees a
	// foreign session as anything but NotFound.
	if sess.UserID != userID {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

func (s *Store) LatestActiveSession(ctx context.Context, userID, personaID string) (*chat.Session, error) {
	iter := s.client.Collection(colSessions).
		Where("user_id", "==", userID).
		Where("persona_id", "==", personaID).
		Where("status", "==", string(chat.SessionActive)).
		OrderBy("updated_at", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore LatestActiveSession: %w", err)
	}
	return decodeSession(snap)
}

func (s *Store) ListSessions(ctx context.Context, userID, personaID string, limit int) ([]*chat.Session, error) {
	q := s.client.Collection(colSessions).
		Where("user_id", "==", userID).
		Where("persona_id", "==", personaID).
		OrderBy("updated_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*chat.Session
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListSessions: %w", err)
		}
		sess, err := decodeSession(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) AppendMessage(ctx context.Context, in store.AppendMessageInput) (*chat.Message, error) {
	msgID := uuid.New().String()
	now := time.Now().UTC()
	var appended chat.Message

	// Read current max seq, then insert max+1. The transaction makes
	// the read-then-insert atomic against concurrent appends.
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		sessRef := s.client.Collection(colSessions).Doc(in.SessionID)
		if _, err := tx.Get(sessRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return store.ErrNotFound
			}
			return err
		}

		maxIter := tx.Documents(s.client.Collection(colMessages).
			Where("session_id", "==", in.SessionID).
			OrderBy("seq", firestore.Desc).
			Limit(1))
		var nextSeq int64 = 1
		snap, err := maxIter.Next()
		if err == nil {
			var doc messageDoc
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode messageDoc: %w", err)
			}
			nextSeq = doc.Seq + 1
		} else if err != iterator.Done {
			return err
		}

		doc := messageDoc{
			SessionID:      in.SessionID,
			Role:           string(in.Role),
			Type:           string(in.Type),
			Content:        in.Content,
			MediaURL:       in.MediaURL,
			MediaMimeType:  in.MediaMimeType,
			Seq:            nextSeq,
			SummaryPending: in.Role != chat.RoleSystem,
			CreatedAt:      now,
		}
		if err := tx.Create(s.client.Collection(colMessages).Doc(msgID), doc); err != nil {
			return err
		}
		if err := tx.Update(sessRef, []firestore.Update{{Path: "updated_at", Value: now}}); err != nil {
			return err
		}

		appended = chat.Message{
			ID:            msgID,
			SessionID:     in.SessionID,
			Role:          in.Role,
			Type:          in.Type,
			Content:       in.Content,
			MediaURL:      in.MediaURL,
			MediaMimeType: in.MediaMimeType,
			Seq:           nextSeq,
			CreatedAt:     now,
		}
		return nil
	})
	if err != nil {
		if err == store.ErrNotFound {
			return nil, err
		}
		if status.Code(err) == codes.Aborted {
			return nil, store.ErrSeqConflict
		}
		return nil, fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return &appended, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]*chat.Message, error) {
	q := s.client.Collection(colMessages).
		Where("session_id", "==", sessionID).
		OrderBy("seq", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*chat.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListMessages: %w", err)
		}
		msg, err := decodeMessage(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}

	// Newest-first window, returned oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) UpsertSummary(ctx context.Context, sum *chat.Summary) error {
	doc := summaryDoc{Summary: sum.Summary, Model: sum.Model}
	if _, err := s.client.Collection(colSummaries).Doc(sum.MessageID).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore UpsertSummary: %w", err)
	}
	_, err := s.client.Collection(colMessages).Doc(sum.MessageID).
		Update(ctx, []firestore.Update{{Path: "summary_pending", Value: false}})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore UpsertSummary flag: %w", err)
	}
	return nil
}

func (s *Store) GetSummary(ctx context.Context, messageID string) (*chat.Summary, error) {
	snap, err := s.client.Collection(colSummaries).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetSummary: %w", err)
	}
	var doc summaryDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode summaryDoc: %w", err)
	}
	return &chat.Summary{MessageID: messageID, Summary: doc.Summary, Model: doc.Model}, nil
}

func (s *Store) ListUnsummarized(ctx context.Context, limit int) ([]*chat.Message, error) {
	q := s.client.Collection(colMessages).
		Where("summary_pending", "==", true).
		OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*chat.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListUnsummarized: %w", err)
		}
		msg, err := decodeMessage(snap)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func decodePersona(snap *firestore.DocumentSnapshot) (*chat.Persona, error) {
	var doc personaDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode personaDoc: %w", err)
	}
	return &chat.Persona{
		ID:           snap.Ref.ID,
		Code:         doc.Code,
		Name:         doc.Name,
		Description:  doc.Description,
		SystemPrompt: doc.SystemPrompt,
		Active:       doc.Active,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

func decodeSession(snap *firestore.DocumentSnapshot) (*chat.Session, error) {
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode sessionDoc: %w", err)
	}
	return &chat.Session{
		ID:             snap.Ref.ID,
		UserID:         doc.UserID,
		PersonaID:      doc.PersonaID,
		Title:          doc.Title,
		InitialContext: doc.InitialContext,
		Status:         chat.SessionStatus(doc.Status),
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

func decodeMessage(snap *firestore.DocumentSnapshot) (*chat.Message, error) {
	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode messageDoc: %w", err)
	}
	return &chat.Message{
		ID:            snap.Ref.ID,
		SessionID:     doc.SessionID,
		Role:          chat.Role(doc.Role),
		Type:          chat.MessageType(doc.Type),
		Content:       doc.Content,
		MediaURL:      doc.MediaURL,
		MediaMimeType: doc.MediaMimeType,
		Seq:           doc.Seq,
		CreatedAt:     doc.CreatedAt,
	}, nil
}
