// Package orchestrator drives one conversational turn end to end:
// session resolution, context assembly, modality decision, the chosen
// generation path, and durable message recording.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/image"
	"github.com/parley-dev/parley/internal/llm/provider"
	"github.com/parley-dev/parley/internal/media"
	"github.com/parley-dev/parley/internal/modality"
	"github.com/parley-dev/parley/internal/observability"
	"github.com/parley-dev/parley/internal/speech"
	"github.com/parley-dev/parley/internal/store"
	"github.com/parley-dev/parley/internal/summary"
	pkgobs "github.com/parley-dev/parley/pkg/observability"
)

// ErrInvalidRequest marks a turn request that never starts.
var ErrInvalidRequest = errors.New("invalid turn request")

// Downstream call budgets. Persistence is short, generation is long.
const (
	persistTimeout  = 5 * time.Second
	generateTimeout = 120 * time.Second
	mediaTimeout    = 120 * time.Second
	fragmentTimeout = 60 * time.Second
)

// defaultHistoryWindow bounds the per-turn context window.
const defaultHistoryWindow = 20

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	UserID      string
	PersonaCode string
	// SessionID, when set, pins the turn to an existing session.
	SessionID string
	Content   string
	// InitialContext seeds a session created by this turn. Ignored when
	// the turn resolves to an existing session.
	InitialContext string
	// ResponseMode is "text" or "audio".
	ResponseMode    string
	AllowImageReply bool
}

// Validate checks request invariants common to both turn paths.
func (r *TurnRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.PersonaCode) == "" {
		return fmt.Errorf("%w: personaCode is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if r.ResponseMode != "" && r.ResponseMode != "text" && r.ResponseMode != "audio" {
		return fmt.Errorf("%w: unknown responseMode %q", ErrInvalidRequest, r.ResponseMode)
	}
	return nil
}

// TurnResult is the one-shot (non-streamed) outcome of a turn.
type TurnResult struct {
	Type          chat.MessageType
	SessionID     string
	Content       string
	MediaURL      string
	MediaMimeType string
}

// Options tunes generation.
type Options struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	HistoryWindow int
}

// Deps wires the orchestrator's collaborators. Speech, Image, Prompts
// and SummaryQueue are optional; a nil entry disables that path.
type Deps struct {
	Store        store.Store
	Provider     provider.Provider
	Decider      *modality.Chain
	Speech       speech.Synthesizer
	Image        image.Generator
	Prompts      *image.PromptNormalizer
	Media        media.Store
	SummaryQueue summary.Queue
}

// Orchestrator is the per-turn hub. It holds only read-mostly
// configuration and clients, so concurrent turns need no locking here.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New creates an orchestrator
func New(deps Deps, opts Options) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaultHistoryWindow
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// turnState is everything prepare() assembles before generation.
type turnState struct {
	persona  *chat.Persona
	session  *chat.Session
	messages []provider.Message
}

// prepare resolves the session, builds the context window and
// durably records the user turn.
func (o *Orchestrator) prepare(ctx context.Context, req TurnRequest) (*turnState, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	persona, err := o.getPersona(ctx, req.PersonaCode)
	if err != nil {
		return nil, err
	}

	var explicit *chat.Session
	if id := strings.TrimSpace(req.SessionID); id != "" {
		explicit, err = o.getSession(ctx, id, req.UserID)
		if err != nil {
			return nil, err
		}
	}

	latest, err := o.latestActive(ctx, req.UserID, persona.ID)
	if err != nil {
		return nil, err
	}

	sess, createNew, err := chat.ResolveSession(explicit, latest, persona.ID)
	if err != nil {
		return nil, err
	}
	if createNew {
		sess, err = o.createSession(ctx, req.UserID, persona.ID, req.InitialContext)
		if err != nil {
			return nil, err
		}
	}

	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	history, err := o.deps.Store.ListMessages(pctx, sess.ID, o.opts.HistoryWindow)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("reading session history: %w", err)
	}

	st := &turnState{
		persona:  persona,
		session:  sess,
		messages: BuildContext(persona, sess, history, req.Content),
	}

	// The user turn is durable before any generation call, so a
	// failed turn can never lose the user's message.
	if _, err := o.appendMessage(ctx, store.AppendMessageInput{
		SessionID: sess.ID,
		Role:      chat.RoleUser,
		Type:      chat.MessageTypeText,
		Content:   req.Content,
	}); err != nil {
		return nil, err
	}

	return st, nil
}

// CompleteTurn runs the one-shot path: full completion first, then
// the image and audio branches in priority order. Image wins over
// audio; image-path failures degrade rather than failing the turn.
func (o *Orchestrator) CompleteTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()
	st, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, generateTimeout)
	res, err := o.deps.Provider.CreateCompletion(gctx, provider.CompletionRequest{
		Messages:    st.messages,
		Model:       o.opts.Model,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	})
	cancel()
	if err != nil {
		pkgobs.RecordTurn("text", "error", time.Since(start))
		return nil, fmt.Errorf("text generation: %w", err)
	}
	text := strings.TrimSpace(res.Content)
	if text == "" {
		pkgobs.RecordTurn("text", "error", time.Since(start))
		return nil, chat.ErrEmptyCompletion
	}

	if req.AllowImageReply && o.deps.Image != nil {
		result, err := o.tryImageReply(ctx, st, req.Content, text)
		if err != nil {
			pkgobs.RecordTurn("image", "error", time.Since(start))
			return nil, err
		}
		if result != nil {
			pkgobs.RecordTurn("image", "ok", time.Since(start))
			return result, nil
		}
	}

	if req.ResponseMode == "audio" && o.deps.Speech != nil {
		result, err := o.audioReply(ctx, st, text)
		if err != nil {
			pkgobs.RecordTurn("audio", "error", time.Since(start))
			return nil, err
		}
		pkgobs.RecordTurn("audio", "ok", time.Since(start))
		return result, nil
	}

	if _, err := o.appendMessage(ctx, store.AppendMessageInput{
		SessionID: st.session.ID,
		Role:      chat.RoleAssistant,
		Type:      chat.MessageTypeText,
		Content:   text,
	}); err != nil {
		pkgobs.RecordTurn("text", "error", time.Since(start))
		return nil, err
	}
	pkgobs.RecordTurn("text", "ok", time.Since(start))
	return &TurnResult{Type: chat.MessageTypeText, SessionID: st.session.ID, Content: text}, nil
}

// tryImageReply runs the modality decision and image generation.
// A nil, nil return means "stay on the audio/text path". Only a
// persistence failure after successful generation is fatal.
func (o *Orchestrator) tryImageReply(ctx context.Context, st *turnState, userInput, text string) (*TurnResult, error) {
	decision := o.deps.Decider.Decide(ctx, modality.Input{UserInput: userInput, CandidateText: text})
	if !decision.UseImage {
		return nil, nil
	}

	prompt := decision.ImagePrompt
	if prompt == "" {
		prompt = userInput
	}
	if o.deps.Prompts != nil {
		prompt = o.deps.Prompts.Normalize(ctx, prompt)
	}

	mctx, cancel := context.WithTimeout(ctx, mediaTimeout)
	artifact, err := o.deps.Image.Generate(mctx, prompt)
	cancel()
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("image generation failed, degrading",
			"session_id", st.session.ID, "error", err)
		return nil, nil
	}

	url, err := o.saveMedia(ctx, media.KindImage, st.session.ID, artifact.Ext, artifact.Data)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("image store failed, degrading",
			"session_id", st.session.ID, "error", err)
		return nil, nil
	}

	if _, err := o.appendMessage(ctx, store.AppendMessageInput{
		SessionID:     st.session.ID,
		Role:          chat.RoleAssistant,
		Type:          chat.MessageTypeImage,
		Content:       text,
		MediaURL:      url,
		MediaMimeType: artifact.MimeType,
	}); err != nil {
		return nil, err
	}

	return &TurnResult{
		Type:          chat.MessageTypeImage,
		SessionID:     st.session.ID,
		Content:       text,
		MediaURL:      url,
		MediaMimeType: artifact.MimeType,
	}, nil
}

// audioReply synthesizes and records the audio variant. Synthesis
// failure fails the turn; there is nothing to degrade to that the
// caller asked for.
func (o *Orchestrator) audioReply(ctx context.Context, st *turnState, text string) (*TurnResult, error) {
	sctx, cancel := context.WithTimeout(ctx, mediaTimeout)
	clip, err := o.deps.Speech.Synthesize(sctx, text)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("audio synthesis: %w", err)
	}

	ext := "mp3"
	switch clip.MimeType {
	case "audio/wav":
		ext = "wav"
	case "audio/flac":
		ext = "flac"
	}
	url, err := o.saveMedia(ctx, media.KindAudio, st.session.ID, ext, clip.Data)
	if err != nil {
		return nil, err
	}

	if _, err := o.appendMessage(ctx, store.AppendMessageInput{
		SessionID:     st.session.ID,
		Role:          chat.RoleAssistant,
		Type:          chat.MessageTypeAudio,
		Content:       text,
		MediaURL:      url,
		MediaMimeType: clip.MimeType,
	}); err != nil {
		return nil, err
	}

	return &TurnResult{
		Type:          chat.MessageTypeAudio,
		SessionID:     st.session.ID,
		Content:       text,
		MediaURL:      url,
		MediaMimeType: clip.MimeType,
	}, nil
}

// Restart always opens a fresh session, leaving prior history intact.
func (o *Orchestrator) Restart(ctx context.Context, userID, personaCode, initialContext string) (*chat.Session, error) {
	persona, err := o.getPersona(ctx, personaCode)
	if err != nil {
		return nil, err
	}
	return o.createSession(ctx, userID, persona.ID, initialContext)
}

// StartSession explicitly creates a session for a persona.
func (o *Orchestrator) StartSession(ctx context.Context, userID, personaCode, initialContext string) (*chat.Session, error) {
	return o.Restart(ctx, userID, personaCode, initialContext)
}

func (o *Orchestrator) getPersona(ctx context.Context, code string) (*chat.Persona, error) {
	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	persona, err := o.deps.Store.GetPersonaByCode(pctx, strings.TrimSpace(code), false)
	if errors.Is(err, store.ErrNotFound) {
		return nil, chat.ErrPersonaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up persona: %w", err)
	}
	return persona, nil
}

func (o *Orchestrator) getSession(ctx context.Context, sessionID, userID string) (*chat.Session, error) {
	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	sess, err := o.deps.Store.GetSession(pctx, sessionID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, chat.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	return sess, nil
}

func (o *Orchestrator) latestActive(ctx context.Context, userID, personaID string) (*chat.Session, error) {
	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	sess, err := o.deps.Store.LatestActiveSession(pctx, userID, personaID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up latest session: %w", err)
	}
	return sess, nil
}

func (o *Orchestrator) createSession(ctx context.Context, userID, personaID, initialContext string) (*chat.Session, error) {
	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	sess, err := o.deps.Store.CreateSession(pctx, &chat.Session{
		UserID:         userID,
		PersonaID:      personaID,
		InitialContext: strings.TrimSpace(initialContext),
		Status:         chat.SessionActive,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// appendMessage durably records a message and queues its summary.
// The summary enqueue is fire and forget.
func (o *Orchestrator) appendMessage(ctx context.Context, in store.AppendMessageInput) (*chat.Message, error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	msg, err := o.deps.Store.AppendMessage(pctx, in)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	o.enqueueSummary(ctx, msg)
	return msg, nil
}

func (o *Orchestrator) enqueueSummary(ctx context.Context, msg *chat.Message) {
	if o.deps.SummaryQueue == nil {
		return
	}
	err := o.deps.SummaryQueue.Enqueue(context.WithoutCancel(ctx), summary.Job{
		MessageID: msg.ID,
		Content:   msg.Content,
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("summary enqueue failed",
			"message_id", msg.ID, "error", err)
	}
}

func (o *Orchestrator) saveMedia(ctx context.Context, kind, sessionID, ext string, data []byte) (string, error) {
	mctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	url, err := o.deps.Media.Save(mctx, kind, sessionID, uuid.NewString(), ext, data)
	if err != nil {
		return "", fmt.Errorf("storing media: %w", err)
	}
	return url, nil
}
