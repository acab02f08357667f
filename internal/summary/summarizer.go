// Package summary is the best-effort message enrichment pipeline. It
// produces a short abstractive summary for each stored message,
// queued after the message is durably written. Nothing in here may
// ever fail the turn that triggered it.
package summary

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/llm/provider"
	"github.com/parley-dev/parley/internal/store"
)

// maxSummaryRunes clamps stored summaries.
const maxSummaryRunes = 800

const summarySystemPrompt = "You are a conversation summarization assistant. Compress the " +
	"message into a one or two sentence summary, keeping the core intent and entity " +
	"information. Do not add facts that are not in the original."

// Summarizer produces and stores message summaries.
type Summarizer struct {
	provider provider.Provider
	store    store.Store
	model    string
	// limiter caps summarization calls against the provider so the
	// side pipeline cannot starve interactive turns.
	limiter *rate.Limiter
}

// NewSummarizer creates a summarizer. ratePerSecond <= 0 disables
// throttling.
func NewSummarizer(p provider.Provider, st store.Store, model string, ratePerSecond float64) *Summarizer {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Summarizer{provider: p, store: st, model: model, limiter: limiter}
}

// Summarize generates a summary for one message and upserts it.
// A blank model reply falls back to the clamped source content, so a
// summarized message always has a non-empty summary row.
func (s *Summarizer) Summarize(ctx context.Context, messageID, content string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("summary throttle: %w", err)
		}
	}

	res, err := s.provider.CreateCompletion(ctx, provider.CompletionRequest{
		Model: s.model,
		Messages: []provider.Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: content},
		},
		Temperature: 0,
	})
	if err != nil {
		return fmt.Errorf("summary completion: %w", err)
	}

	text := clamp(strings.TrimSpace(res.Content))
	if text == "" {
		text = clamp(strings.TrimSpace(content))
	}

	if err := s.store.UpsertSummary(ctx, &chat.Summary{
		MessageID: messageID,
		Summary:   text,
		Model:     s.model,
	}); err != nil {
		return fmt.Errorf("storing summary: %w", err)
	}
	return nil
}

func clamp(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSummaryRunes {
		return s
	}
	return string(runes[:maxSummaryRunes])
}
