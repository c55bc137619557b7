package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"roofcrm/internal/models"
	"roofcrm/internal/repositories"
	"roofcrm/internal/workflow"
)

// Outcome of a transition attempt that did not fail.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoOp    Outcome = "noop"
	OutcomeSkipped Outcome = "skipped"
)

// TransitionRequest asks for a lead to be moved to Target.
type TransitionRequest struct {
	LeadID    int64
	Target    workflow.Stage
	Origin    workflow.Origin
	ChangedBy *int
	Metadata  map[string]any
}

// TransitionResult reports what happened. Record is set only when Applied;
// Code and Reason only when Skipped.
type TransitionResult struct {
	Outcome Outcome              `json:"outcome"`
	LeadID  int64                `json:"lead_id"`
	From    workflow.Stage       `json:"from"`
	To      workflow.Stage       `json:"to"`
	Record  *workflow.Transition `json:"record,omitempty"`
	Code    workflow.ErrorCode   `json:"code,omitempty"`
	Reason  string               `json:"reason,omitempty"`
}

// StatusTransitionService is the only writer of lead status. Manual requests
// and domain events both go through run, which reads the current stage under
// lock, decides, validates and writes the new stage plus one history record
// in a single unit of work.
type StatusTransitionService struct {
	store repositories.StatusStore
}

func NewStatusTransitionService(store repositories.StatusStore) *StatusTransitionService {
	return &StatusTransitionService{store: store}
}

// decision is what a caller wants done given the stage read under lock.
type decision struct {
	target   workflow.Stage
	metadata map[string]any
	skip     *workflow.TransitionError
}

// Apply moves a lead to an explicit target.
func (s *StatusTransitionService) Apply(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	switch req.Origin {
	case workflow.OriginManual:
		if req.ChangedBy == nil {
			return nil, &workflow.TransitionError{Code: workflow.CodeMissingActor, To: req.Target,
				Msg: "manual transition requires the requesting user"}
		}
	case workflow.OriginAutomated:
		req.ChangedBy = nil
	default:
		return nil, fmt.Errorf("unknown transition origin %q", req.Origin)
	}

	return s.run(ctx, req.LeadID, req.Origin, req.ChangedBy, func(workflow.Stage) decision {
		return decision{target: req.Target, metadata: req.Metadata}
	})
}

// ApplyEvent maps a domain event against the lead's locked stage and applies
// the result as an automated transition.
func (s *StatusTransitionService) ApplyEvent(ctx context.Context, ev workflow.Event) (*TransitionResult, error) {
	return s.run(ctx, ev.LeadID, workflow.OriginAutomated, nil, func(current workflow.Stage) decision {
		d := workflow.MapEvent(ev, current)
		return decision{target: d.Target, metadata: d.Metadata, skip: d.Skip}
	})
}

// CreateLead inserts a lead at the initial stage together with its creation
// record. A nil createdBy marks the lead as system-imported.
func (s *StatusTransitionService) CreateLead(ctx context.Context, lead *models.Leads, createdBy *int, metadata map[string]any) error {
	lead.Status = workflow.InitialStage.Status
	lead.SubStatus = workflow.InitialStage.SubStatus

	meta := copyMetadata(metadata)
	if _, ok := meta["trigger"]; !ok {
		meta["trigger"] = "lead_created"
	}
	return s.store.WithinTx(ctx, func(tx repositories.StatusTx) error {
		if err := tx.InsertLead(ctx, lead); err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		return tx.InsertTransition(ctx, &workflow.Transition{
			LeadID:    lead.ID,
			To:        workflow.InitialStage,
			Automated: createdBy == nil,
			ChangedBy: createdBy,
			Metadata:  meta,
		})
	})
}

// run retries the whole decide-and-apply cycle once when the lead moved
// underneath it.
func (s *StatusTransitionService) run(
	ctx context.Context,
	leadID int64,
	origin workflow.Origin,
	changedBy *int,
	decide func(current workflow.Stage) decision,
) (*TransitionResult, error) {
	res, err := s.attempt(ctx, leadID, origin, changedBy, decide)
	if errors.Is(err, repositories.ErrConcurrentModification) {
		slog.Info("lead status changed concurrently, retrying", "lead_id", leadID, "origin", origin)
		res, err = s.attempt(ctx, leadID, origin, changedBy, decide)
	}
	if errors.Is(err, repositories.ErrConcurrentModification) {
		return nil, &workflow.TransitionError{Code: workflow.CodeConcurrentModification,
			Msg: fmt.Sprintf("lead %d changed concurrently, retry later", leadID)}
	}
	return res, err
}

func (s *StatusTransitionService) attempt(
	ctx context.Context,
	leadID int64,
	origin workflow.Origin,
	changedBy *int,
	decide func(current workflow.Stage) decision,
) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.store.WithinTx(ctx, func(tx repositories.StatusTx) error {
		current, err := tx.LockStage(ctx, leadID)
		if err != nil {
			return err
		}
		d := decide(current)
		if d.skip != nil {
			res = &TransitionResult{Outcome: OutcomeSkipped, LeadID: leadID, From: current, To: current,
				Code: d.skip.Code, Reason: d.skip.Error()}
			return nil
		}
		if d.target == current {
			res = &TransitionResult{Outcome: OutcomeNoOp, LeadID: leadID, From: current, To: current}
			return nil
		}
		if err := workflow.Validate(current, d.target, origin); err != nil {
			return err
		}
		if err := tx.UpdateStage(ctx, leadID, current, d.target); err != nil {
			return err
		}
		from := current
		rec := &workflow.Transition{
			LeadID:    leadID,
			From:      &from,
			To:        d.target,
			Automated: origin == workflow.OriginAutomated,
			ChangedBy: changedBy,
			Metadata:  copyMetadata(d.metadata),
		}
		if err := tx.InsertTransition(ctx, rec); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
		res = &TransitionResult{Outcome: OutcomeApplied, LeadID: leadID, From: current, To: d.target, Record: rec}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
