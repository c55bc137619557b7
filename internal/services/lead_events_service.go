package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"roofcrm/internal/repositories"
	"roofcrm/internal/workflow"
)

// OutcomeRejected is reported for events whose computed target failed validation.
const OutcomeRejected Outcome = "rejected"

// LeadEventService turns domain events from the quote, signature, invoice and
// payment subsystems into automated transitions. Business outcomes (applied,
// no-op, skipped, rejected) are logged and returned as results, never as
// errors, so the event that raised them is never failed by the status engine.
// Only transient failures are returned as errors; redelivering the event is
// then safe.
type LeadEventService struct {
	Transitions *StatusTransitionService
	Observers   StatusObservers
	now         func() time.Time
}

func NewLeadEventService(transitions *StatusTransitionService, observers ...StatusObserver) *LeadEventService {
	return &LeadEventService{Transitions: transitions, Observers: observers, now: time.Now}
}

func (s *LeadEventService) Handle(ctx context.Context, ev workflow.Event) (*TransitionResult, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	log := slog.With("lead_id", ev.LeadID, "event_type", ev.Type, "event_id", ev.ID)

	res, err := s.Transitions.ApplyEvent(ctx, ev)
	switch {
	case errors.Is(err, repositories.ErrLeadNotFound):
		log.Warn("status event skipped", "code", workflow.CodePreconditionNotMet, "reason", "lead not found")
		return &TransitionResult{Outcome: OutcomeSkipped, LeadID: ev.LeadID,
			Code: workflow.CodePreconditionNotMet, Reason: "lead not found"}, nil

	case errors.Is(err, workflow.ErrConcurrentModification):
		log.Error("status event failed", "err", err)
		return nil, err

	case err != nil:
		var te *workflow.TransitionError
		if errors.As(err, &te) {
			log.Error("status event rejected", "code", te.Code, "reason", te.Error())
			return &TransitionResult{Outcome: OutcomeRejected, LeadID: ev.LeadID,
				From: te.From, To: te.From, Code: te.Code, Reason: te.Error()}, nil
		}
		log.Error("status event failed", "err", err)
		return nil, err
	}

	switch res.Outcome {
	case OutcomeSkipped:
		log.Warn("status event skipped", "code", res.Code, "reason", res.Reason, "stage", res.From.String())
	case OutcomeNoOp:
		log.Info("status event already applied", "stage", res.From.String())
	case OutcomeApplied:
		log.Info("status event applied", "from", res.From.String(), "to", res.To.String(), "transition_id", res.Record.ID)
		s.Observers.notify(ctx, res)
	}
	return res, nil
}
