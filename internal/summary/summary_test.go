package summary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/llm/provider"
	"github.com/parley-dev/parley/internal/store"
	"github.com/parley-dev/parley/internal/store/memory"
)

func seedMessage(t *testing.T, st store.Store, content string) *chat.Message {
	t.Helper()
	persona, err := st.CreatePersona(context.Background(), &chat.Persona{
		Code: "helper", Name: "Helper", SystemPrompt: "be helpful", Active: true,
	})
	if err != nil {
		t.Fatalf("creating persona: %v", err)
	}
	sess, err := st.CreateSession(context.Background(), &chat.Session{
		UserID: "u1", PersonaID: persona.ID, Status: chat.SessionActive,
	})
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	msg, err := st.AppendMessage(context.Background(), store.AppendMessageInput{
		SessionID: sess.ID, Role: chat.RoleUser, Type: chat.MessageTypeText, Content: content,
	})
	if err != nil {
		t.Fatalf("appending message: %v", err)
	}
	return msg
}

func TestSummarize(t *testing.T) {
	st := memory.New()
	msg := seedMessage(t, st, "I want to plan a trip to Kyoto in November")

	mock := provider.NewMockProvider("mock")
	mock.CompletionResponses = []*provider.CompletionResponse{
		{Content: "  User plans a November trip to Kyoto.  "},
	}

	s := NewSummarizer(mock, st, "sum-model", 0)
	if err := s.Summarize(context.Background(), msg.ID, msg.Content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := st.GetSummary(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	if got.Summary != "User plans a November trip to Kyoto." {
		t.Errorf("unexpected summary %q", got.Summary)
	}
	if got.Model != "sum-model" {
		t.Errorf("unexpected model %q", got.Model)
	}
}

func TestSummarize_BlankOutputFallsBackToContent(t *testing.T) {
	st := memory.New()
	long := strings.Repeat("好", 1000)
	msg := seedMessage(t, st, long)

	mock := provider.NewMockProvider("mock")
	mock.CompletionResponses = []*provider.CompletionResponse{{Content: "   "}}

	s := NewSummarizer(mock, st, "sum-model", 0)
	if err := s.Summarize(context.Background(), msg.ID, msg.Content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := st.GetSummary(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	if runes := []rune(got.Summary); len(runes) != maxSummaryRunes {
		t.Errorf("expected summary clamped to %d runes, got %d", maxSummaryRunes, len(runes))
	}
	if !strings.HasPrefix(got.Summary, "好") {
		t.Error("fallback summary should come from the source content")
	}
}

func TestSummarize_ProviderError(t *testing.T) {
	st := memory.New()
	msg := seedMessage(t, st, "hello")

	mock := provider.NewMockProvider("mock")
	mock.CompletionErr = errors.New("rate limited")

	s := NewSummarizer(mock, st, "sum-model", 0)
	if err := s.Summarize(context.Background(), msg.ID, msg.Content); err == nil {
		t.Fatal("expected error")
	}
	if _, err := st.GetSummary(context.Background(), msg.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("no summary should be stored on failure, got %v", err)
	}
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(4)

	if err := q.Enqueue(context.Background(), Job{MessageID: "m1", Content: "hi"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.MessageID != "m1" {
		t.Errorf("unexpected job %+v", job)
	}

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Enqueue(context.Background(), Job{MessageID: "m2"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "test:jobs")

	if err := q.Enqueue(context.Background(), Job{MessageID: "m1", Content: "hello"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	n, err := q.Len(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected depth 1, got %d err %v", n, err)
	}

	job, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.MessageID != "m1" || job.Content != "hello" {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestWorkerProcessesJobs(t *testing.T) {
	st := memory.New()
	msg := seedMessage(t, st, "summarize me")

	mock := provider.NewMockProvider("mock")
	mock.CompletionResponses = []*provider.CompletionResponse{{Content: "a summary"}}

	q := NewMemoryQueue(4)
	if err := q.Enqueue(context.Background(), Job{MessageID: msg.ID, Content: msg.Content}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := NewWorker(q, NewSummarizer(mock, st, "sum-model", 0), 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if _, err := st.GetSummary(context.Background(), msg.ID); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("summary never appeared")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("worker returned error: %v", err)
	}
}

func TestBackfillSweep(t *testing.T) {
	st := memory.New()
	msg := seedMessage(t, st, "never got summarized")

	q := NewMemoryQueue(4)
	b := NewBackfill(st, q)
	if err := b.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	job, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.MessageID != msg.ID {
		t.Errorf("expected job for %s, got %+v", msg.ID, job)
	}
}
