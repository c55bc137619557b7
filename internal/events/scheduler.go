package events

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Reclaimer re-processes events left pending by a crashed or slow consumer.
type Reclaimer interface {
	Reclaim(ctx context.Context)
}

// Scheduler periodically sweeps the consumer group for stale pending events.
type Scheduler struct {
	cron      *cron.Cron
	reclaimer Reclaimer
	spec      string // cron spec, e.g. "@every 1m"
}

func NewScheduler(reclaimer Reclaimer, spec string) *Scheduler {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		reclaimer: reclaimer,
		spec:      spec,
	}
}

// Start registers the sweep and starts the cron loop. One sweep runs right
// away so events stranded by a previous process are not left waiting.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.reclaimer.Reclaim(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	log.Printf("[scheduler] reclaim sweep started, spec: %s", s.spec)

	go s.reclaimer.Reclaim(ctx)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[scheduler] reclaim sweep stopped")
}
