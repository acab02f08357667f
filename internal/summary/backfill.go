package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/parley-dev/parley/internal/observability"
	"github.com/parley-dev/parley/internal/store"
)

// backfillBatch caps how many messages one sweep re-enqueues.
const backfillBatch = 50

// Backfill periodically sweeps for messages whose queued summary job
// was lost (process crash, dropped job) and re-enqueues them.
type Backfill struct {
	store store.Store
	queue Queue
	cron  *cron.Cron
}

// NewBackfill creates the backfill sweep
func NewBackfill(st store.Store, queue Queue) *Backfill {
	return &Backfill{store: st, queue: queue, cron: cron.New()}
}

// Start schedules the sweep with a cron expression and starts the
// scheduler.
func (b *Backfill) Start(schedule string) error {
	if _, err := b.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := b.Sweep(ctx); err != nil {
			observability.Logger().Warn("summary backfill sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling summary backfill: %w", err)
	}
	b.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (b *Backfill) Stop() {
	<-b.cron.Stop().Done()
}

// Sweep enqueues one batch of unsummarized messages.
func (b *Backfill) Sweep(ctx context.Context) error {
	messages, err := b.store.ListUnsummarized(ctx, backfillBatch)
	if err != nil {
		return fmt.Errorf("listing unsummarized messages: %w", err)
	}
	for _, m := range messages {
		if err := b.queue.Enqueue(ctx, Job{MessageID: m.ID, Content: m.Content}); err != nil {
			observability.Logger().Warn("summary backfill enqueue failed",
				"message_id", m.ID, "error", err)
		}
	}
	return nil
}
