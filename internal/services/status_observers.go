package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"roofcrm/internal/workflow"
)

// StatusObserver reacts to an applied transition after it has committed:
// notifications, event fan-out. Observers never affect the transition itself.
type StatusObserver interface {
	StatusChanged(ctx context.Context, rec workflow.Transition) error
}

// StatusObservers calls each observer in turn and logs failures.
type StatusObservers []StatusObserver

func (o StatusObservers) notify(ctx context.Context, res *TransitionResult) {
	if res == nil || res.Outcome != OutcomeApplied || res.Record == nil {
		return
	}
	for _, obs := range o {
		if obs == nil {
			continue
		}
		if err := obs.StatusChanged(ctx, *res.Record); err != nil {
			slog.Warn("status observer failed", "lead_id", res.LeadID, "transition_id", res.Record.ID, "err", err)
		}
	}
}

// AsyncObserver hands transitions to a wrapped observer on a background
// worker so slow deliveries (SMTP, Telegram) stay off the request path.
// When the queue is full the record is dropped and logged.
type AsyncObserver struct {
	next    StatusObserver
	timeout time.Duration
	queue   chan workflow.Transition
	done    chan struct{}
	once    sync.Once
}

func NewAsyncObserver(next StatusObserver, queueSize int, timeout time.Duration) *AsyncObserver {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	a := &AsyncObserver{
		next:    next,
		timeout: timeout,
		queue:   make(chan workflow.Transition, queueSize),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// StatusChanged enqueues rec and returns immediately.
func (a *AsyncObserver) StatusChanged(_ context.Context, rec workflow.Transition) error {
	select {
	case a.queue <- rec:
		return nil
	default:
		return fmt.Errorf("observer queue full, dropped transition %d", rec.ID)
	}
}

// Close stops accepting records and waits for queued ones to be delivered.
func (a *AsyncObserver) Close() {
	a.once.Do(func() { close(a.queue) })
	<-a.done
}

func (a *AsyncObserver) loop() {
	defer close(a.done)
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.StatusChanged(ctx, rec); err != nil {
			slog.Warn("async status observer failed", "lead_id", rec.LeadID, "transition_id", rec.ID, "err", err)
		}
		cancel()
	}
}
