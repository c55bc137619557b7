package services

import (
	"context"
	"errors"

	"roofcrm/internal/models"
	"roofcrm/internal/repositories"
	"roofcrm/internal/workflow"
)

type LeadService struct {
	Repo        repositories.LeadRepository
	Transitions *StatusTransitionService
	Observers   StatusObservers
}

func NewLeadService(leadRepo repositories.LeadRepository, transitions *StatusTransitionService, observers ...StatusObserver) *LeadService {
	return &LeadService{Repo: leadRepo, Transitions: transitions, Observers: observers}
}

// Create stores a new lead at the initial stage, owned by createdBy.
func (s *LeadService) Create(ctx context.Context, lead *models.Leads, createdBy int) error {
	if lead.Title == "" {
		return errors.New("title is required")
	}
	if lead.OwnerID == 0 {
		lead.OwnerID = createdBy
	}
	return s.Transitions.CreateLead(ctx, lead, &createdBy, nil)
}

// Update edits the descriptive fields of a lead. Status fields in lead are ignored.
func (s *LeadService) Update(ctx context.Context, lead *models.Leads) error {
	return s.Repo.Update(ctx, lead)
}

func (s *LeadService) ListPaginated(ctx context.Context, limit, offset int) ([]*models.Leads, error) {
	return s.Repo.ListPaginated(ctx, limit, offset)
}

func (s *LeadService) ListMy(ctx context.Context, ownerID, limit, offset int) ([]*models.Leads, error) {
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *LeadService) FilterLeads(ctx context.Context, f models.LeadFilter) ([]*models.Leads, error) {
	return s.Repo.FilterLeads(ctx, f)
}

func (s *LeadService) GetByID(ctx context.Context, id int64) (*models.Leads, error) {
	return s.Repo.GetByID(ctx, id)
}

func (s *LeadService) Delete(ctx context.Context, id int64) error {
	return s.Repo.Delete(ctx, id)
}

func (s *LeadService) AssignOwner(ctx context.Context, id int64, assigneeID int) error {
	return s.Repo.UpdateOwner(ctx, id, assigneeID)
}

// ChangeStatus applies an operator-requested transition. The caller has
// already decided the user may make it; only legality of the move is checked.
func (s *LeadService) ChangeStatus(ctx context.Context, id int64, to workflow.Stage, userID int, note string) (*TransitionResult, error) {
	meta := map[string]any{"trigger": "manual"}
	if note != "" {
		meta["note"] = note
	}
	res, err := s.Transitions.Apply(ctx, TransitionRequest{
		LeadID:    id,
		Target:    to,
		Origin:    workflow.OriginManual,
		ChangedBy: &userID,
		Metadata:  meta,
	})
	if err != nil {
		return nil, err
	}
	s.Observers.notify(ctx, res)
	return res, nil
}

// AllowedTransitions lists the stages an operator may move the lead to.
func (s *LeadService) AllowedTransitions(ctx context.Context, id int64) (workflow.Stage, []workflow.Stage, error) {
	lead, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return workflow.Stage{}, nil, err
	}
	return lead.Stage(), workflow.AllowedTargets(lead.Stage()), nil
}
