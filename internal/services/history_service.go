package services

import (
	"context"
	"fmt"

	"roofcrm/internal/repositories"
	"roofcrm/internal/workflow"
)

// HistoryService reads the transition audit trail. It never writes.
type HistoryService struct {
	store repositories.StatusStore
}

func NewHistoryService(store repositories.StatusStore) *HistoryService {
	return &HistoryService{store: store}
}

// ListTransitions returns one page of a lead's history in chronological order.
// Pass the last returned id as filter.AfterID to fetch the next page.
func (s *HistoryService) ListTransitions(ctx context.Context, leadID int64, f repositories.HistoryFilter) ([]workflow.Transition, error) {
	if leadID == 0 {
		return nil, repositories.ErrLeadNotFound
	}
	f.LeadID = leadID
	return s.store.ListTransitions(ctx, f)
}

// ListAll returns one page of history across all leads, for audit reports.
func (s *HistoryService) ListAll(ctx context.Context, f repositories.HistoryFilter) ([]workflow.Transition, error) {
	return s.store.ListTransitions(ctx, f)
}

// VerifyReport compares a lead's stored stage with the stage its history replays to.
type VerifyReport struct {
	LeadID     int64          `json:"lead_id"`
	Stored     workflow.Stage `json:"stored"`
	Replayed   workflow.Stage `json:"replayed"`
	Records    int            `json:"records"`
	Consistent bool           `json:"consistent"`
	Problem    string         `json:"problem,omitempty"`
}

// Verify replays the full history of a lead from its creation record.
func (s *HistoryService) Verify(ctx context.Context, leadID int64) (*VerifyReport, error) {
	stored, err := s.store.GetStage(ctx, leadID)
	if err != nil {
		return nil, err
	}

	var all []workflow.Transition
	f := repositories.HistoryFilter{LeadID: leadID, Limit: 500}
	for {
		page, err := s.store.ListTransitions(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("list transitions: %w", err)
		}
		all = append(all, page...)
		if len(page) < f.Limit {
			break
		}
		f.AfterID = page[len(page)-1].ID
	}

	report := &VerifyReport{LeadID: leadID, Stored: stored, Records: len(all)}
	replayed, err := workflow.Replay(all)
	if err != nil {
		report.Problem = err.Error()
		return report, nil
	}
	report.Replayed = replayed
	report.Consistent = replayed == stored
	if !report.Consistent {
		report.Problem = fmt.Sprintf("history ends at %s, lead is at %s", replayed, stored)
	}
	return report, nil
}
