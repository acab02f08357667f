package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/llm/provider"
	"github.com/parley-dev/parley/internal/observability"
	"github.com/parley-dev/parley/internal/store"
	pkgobs "github.com/parley-dev/parley/pkg/observability"
)

// StreamTurn runs the streamed text path. Resolution and user-message
// persistence happen synchronously so callers can map their errors to
// a proper status before any event is written; the returned channel
// then carries one SessionEvent, the token fragments, and exactly one
// terminal event before closing.
//
// If the caller's context ends mid-stream, consumption stops and the
// text accumulated so far is persisted best-effort.
func (o *Orchestrator) StreamTurn(ctx context.Context, req TurnRequest) (*chat.Session, <-chan Event, error) {
	st, err := o.prepare(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	events := make(chan Event, 16)
	go o.relayStream(ctx, st, events)
	return st.session, events, nil
}

type recvResult struct {
	chunk *provider.StreamChunk
	err   error
}

func (o *Orchestrator) relayStream(ctx context.Context, st *turnState, events chan<- Event) {
	defer close(events)
	start := time.Now()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(SessionEvent{SessionID: st.session.ID}) {
		return
	}

	gctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()
	stream, err := o.deps.Provider.CreateStreaming(gctx, provider.CompletionRequest{
		Messages:    st.messages,
		Model:       o.opts.Model,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	})
	if err != nil {
		pkgobs.RecordTurn("stream", "error", time.Since(start))
		emit(ErrorEvent{Err: err})
		return
	}
	defer stream.Close()

	// A single reader goroutine turns the pull API into a channel so
	// fragment timeouts and cancellation can be selected on. Closing
	// the stream unblocks it.
	rc := make(chan recvResult)
	go func() {
		defer close(rc)
		for {
			chunk, err := stream.Recv()
			select {
			case rc <- recvResult{chunk: chunk, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var acc strings.Builder
	timer := time.NewTimer(fragmentTimeout)
	defer timer.Stop()

	for {
		select {
		case r, ok := <-rc:
			if !ok {
				// Reader exited on cancellation.
				o.persistPartial(ctx, st, acc.String())
				pkgobs.RecordTurn("stream", "cancelled", time.Since(start))
				return
			}
			if errors.Is(r.err, io.EOF) {
				o.finishStream(ctx, st, acc.String(), start, emit)
				return
			}
			if r.err != nil {
				o.persistPartial(ctx, st, acc.String())
				pkgobs.RecordTurn("stream", "error", time.Since(start))
				emit(ErrorEvent{Err: r.err})
				return
			}
			if r.chunk == nil || r.chunk.Delta == "" {
				continue
			}
			acc.WriteString(r.chunk.Delta)
			if !emit(TokenEvent{Content: r.chunk.Delta}) {
				o.persistPartial(ctx, st, acc.String())
				pkgobs.RecordTurn("stream", "cancelled", time.Since(start))
				return
			}
			pkgobs.RecordStreamToken()
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(fragmentTimeout)

		case <-timer.C:
			o.persistPartial(ctx, st, acc.String())
			pkgobs.RecordTurn("stream", "timeout", time.Since(start))
			emit(ErrorEvent{Err: errors.New("timed out waiting for the next fragment")})
			return

		case <-ctx.Done():
			o.persistPartial(ctx, st, acc.String())
			pkgobs.RecordTurn("stream", "cancelled", time.Since(start))
			return
		}
	}
}

// finishStream persists the accumulated reply and emits the terminal
// event. An empty accumulation persists nothing: a turn that produced
// no output leaves no assistant row.
func (o *Orchestrator) finishStream(ctx context.Context, st *turnState, text string, start time.Time, emit func(Event) bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed != "" {
		if _, err := o.appendMessage(ctx, store.AppendMessageInput{
			SessionID: st.session.ID,
			Role:      chat.RoleAssistant,
			Type:      chat.MessageTypeText,
			Content:   trimmed,
		}); err != nil {
			pkgobs.RecordTurn("stream", "error", time.Since(start))
			emit(ErrorEvent{Err: err})
			return
		}
	}
	pkgobs.RecordTurn("stream", "ok", time.Since(start))
	emit(DoneEvent{})
}

// persistPartial records whatever text accumulated before an aborted
// stream. Best effort only.
func (o *Orchestrator) persistPartial(ctx context.Context, st *turnState, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	if _, err := o.appendMessage(ctx, store.AppendMessageInput{
		SessionID: st.session.ID,
		Role:      chat.RoleAssistant,
		Type:      chat.MessageTypeText,
		Content:   trimmed,
	}); err != nil {
		observability.LoggerFromContext(ctx).Warn("partial reply not persisted",
			"session_id", st.session.ID, "error", err)
	}
}
