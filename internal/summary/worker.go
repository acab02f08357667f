package summary

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parley-dev/parley/internal/observability"
	pkgobs "github.com/parley-dev/parley/pkg/observability"
)

// jobTimeout bounds one summarization job.
const jobTimeout = 30 * time.Second

// Worker drains the queue and runs the summarizer. Job failures are
// logged and counted, never propagated.
type Worker struct {
	queue      Queue
	summarizer *Summarizer
	workers    int
}

// NewWorker creates a worker pool over the queue
func NewWorker(queue Queue, summarizer *Summarizer, workers int) *Worker {
	if workers <= 0 {
		workers = 2
	}
	return &Worker{queue: queue, summarizer: summarizer, workers: workers}
}

// Run processes jobs until the context is cancelled or the queue
// closes. It always returns nil on orderly shutdown.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			for {
				job, err := w.queue.Dequeue(ctx)
				if err != nil {
					if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
						return nil
					}
					observability.Logger().Error("summary dequeue failed", "error", err)
					return nil
				}
				w.process(ctx, job)
			}
		})
	}
	return g.Wait()
}

func (w *Worker) process(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
	defer cancel()

	if err := w.summarizer.Summarize(jobCtx, job.MessageID, job.Content); err != nil {
		pkgobs.RecordSummaryJob("error")
		observability.Logger().Warn("summarization failed",
			"message_id", job.MessageID, "error", err)
		return
	}
	pkgobs.RecordSummaryJob("ok")

	if depth, err := w.queue.Len(ctx); err == nil {
		pkgobs.SetSummaryQueueDepth(depth)
	}
}
