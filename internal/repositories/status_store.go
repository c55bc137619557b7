package repositories

import (
	"context"
	"errors"
	"time"

	"roofcrm/internal/models"
	"roofcrm/internal/workflow"
)

var (
	ErrLeadNotFound           = errors.New("lead not found")
	ErrConcurrentModification = errors.New("lead status changed concurrently")
)

// StatusTx is the unit of work the status transition service runs in. All
// calls made through one StatusTx commit or roll back together.
type StatusTx interface {
	// LockStage reads the lead's stage and holds it until the unit of work ends.
	LockStage(ctx context.Context, leadID int64) (workflow.Stage, error)
	// UpdateStage moves the lead from -> to, failing with
	// ErrConcurrentModification if the lead is no longer at from.
	UpdateStage(ctx context.Context, leadID int64, from, to workflow.Stage) error
	InsertTransition(ctx context.Context, tr *workflow.Transition) error
	InsertLead(ctx context.Context, lead *models.Leads) error
}

// StatusStore owns the lead status columns and the transition history table.
type StatusStore interface {
	// WithinTx runs fn in one unit of work. fn returning an error rolls back.
	WithinTx(ctx context.Context, fn func(tx StatusTx) error) error
	GetStage(ctx context.Context, leadID int64) (workflow.Stage, error)
	ListTransitions(ctx context.Context, filter HistoryFilter) ([]workflow.Transition, error)
}

// HistoryFilter selects transition records. Zero values mean "no constraint";
// LeadID 0 spans all leads. Results are ordered by id, which is chronological
// per lead since transitions of one lead are serialized by its row lock.
// AfterID resumes a listing after the last id already seen.
type HistoryFilter struct {
	LeadID    int64
	Automated *bool
	From      time.Time
	To        time.Time
	AfterID   int64
	Limit     int
}

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// EffectiveLimit is the page size actually applied: Limit clamped to
// [1, 1000], 100 when unset.
func (f HistoryFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return defaultHistoryLimit
	case f.Limit > maxHistoryLimit:
		return maxHistoryLimit
	}
	return f.Limit
}

func (f HistoryFilter) match(tr workflow.Transition) bool {
	if f.LeadID != 0 && tr.LeadID != f.LeadID {
		return false
	}
	if f.Automated != nil && tr.Automated != *f.Automated {
		return false
	}
	if !f.From.IsZero() && tr.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tr.CreatedAt.Before(f.To) {
		return false
	}
	return tr.ID > f.AfterID
}
