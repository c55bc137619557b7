package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roofcrm/internal/models"
	"roofcrm/internal/workflow"
)

func seedLead(t *testing.T, s *MemoryStore, owner int) *models.Leads {
	t.Helper()
	lead := &models.Leads{Title: "Re-roof", OwnerID: owner,
		Status: workflow.InitialStage.Status, SubStatus: workflow.InitialStage.SubStatus}
	err := s.WithinTx(context.Background(), func(tx StatusTx) error {
		if err := tx.InsertLead(context.Background(), lead); err != nil {
			return err
		}
		return tx.InsertTransition(context.Background(), &workflow.Transition{
			LeadID: lead.ID, To: workflow.InitialStage, ChangedBy: &owner,
		})
	})
	require.NoError(t, err)
	return lead
}

func TestMemoryStore_FailedUnitOfWorkLeavesNoTrace(t *testing.T) {
	s := NewMemoryStore()
	lead := seedLead(t, s, 1)
	contacted := workflow.Stage{Status: workflow.StatusNewLead, SubStatus: workflow.SubContacted}

	boom := errors.New("boom")
	err := s.WithinTx(context.Background(), func(tx StatusTx) error {
		require.NoError(t, tx.UpdateStage(context.Background(), lead.ID, workflow.InitialStage, contacted))
		require.NoError(t, tx.InsertTransition(context.Background(), &workflow.Transition{LeadID: lead.ID, To: contacted}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stage, err := s.GetStage(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InitialStage, stage)
	recs, err := s.ListTransitions(context.Background(), HistoryFilter{LeadID: lead.ID})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMemoryStore_UpdateStageComparesAndSets(t *testing.T) {
	s := NewMemoryStore()
	lead := seedLead(t, s, 1)
	quote := workflow.Stage{Status: workflow.StatusQuote, SubStatus: workflow.SubEstimating}
	contacted := workflow.Stage{Status: workflow.StatusNewLead, SubStatus: workflow.SubContacted}

	err := s.WithinTx(context.Background(), func(tx StatusTx) error {
		return tx.UpdateStage(context.Background(), lead.ID, contacted, quote)
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	err = s.WithinTx(context.Background(), func(tx StatusTx) error {
		_, err := tx.LockStage(context.Background(), lead.ID+1)
		return err
	})
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestMemoryStore_ListTransitionsFilters(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.nowFn = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}

	a := seedLead(t, s, 1)
	b := seedLead(t, s, 2)
	err := s.WithinTx(context.Background(), func(tx StatusTx) error {
		for i := 0; i < 3; i++ {
			if err := tx.InsertTransition(context.Background(), &workflow.Transition{
				LeadID: a.ID, To: workflow.InitialStage, Automated: true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	all, err := s.ListTransitions(context.Background(), HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	onlyA, err := s.ListTransitions(context.Background(), HistoryFilter{LeadID: a.ID})
	require.NoError(t, err)
	assert.Len(t, onlyA, 4)

	auto, err := s.ListTransitions(context.Background(), HistoryFilter{Automated: ptrBool(true)})
	require.NoError(t, err)
	assert.Len(t, auto, 3)

	window, err := s.ListTransitions(context.Background(), HistoryFilter{
		From: all[1].CreatedAt, To: all[3].CreatedAt,
	})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, b.ID, window[0].LeadID)

	limited, err := s.ListTransitions(context.Background(), HistoryFilter{Limit: 2, AfterID: all[0].ID})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, all[1].ID, limited[0].ID)
}

func TestMemoryStore_ReturnedRecordsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	lead := seedLead(t, s, 1)

	recs, err := s.ListTransitions(context.Background(), HistoryFilter{LeadID: lead.ID})
	require.NoError(t, err)
	*recs[0].ChangedBy = 99

	again, err := s.ListTransitions(context.Background(), HistoryFilter{LeadID: lead.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, *again[0].ChangedBy)
}

func TestMemoryStore_SoftDeleteKeepsHistory(t *testing.T) {
	s := NewMemoryStore()
	lead := seedLead(t, s, 1)

	require.NoError(t, s.Delete(context.Background(), lead.ID))
	_, err := s.GetByID(context.Background(), lead.ID)
	assert.ErrorIs(t, err, ErrLeadNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), lead.ID), ErrLeadNotFound)

	recs, err := s.ListTransitions(context.Background(), HistoryFilter{LeadID: lead.ID})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMemoryStore_FilterLeads(t *testing.T) {
	s := NewMemoryStore()
	first := seedLead(t, s, 1)
	seedLead(t, s, 2)
	third := seedLead(t, s, 1)

	mine, err := s.ListByOwner(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	page, err := s.ListPaginated(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)

	quotes, err := s.FilterLeads(context.Background(), models.LeadFilter{Status: workflow.StatusQuote, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestMemoryStore_UpdateIgnoresStatus(t *testing.T) {
	s := NewMemoryStore()
	lead := seedLead(t, s, 1)

	edit := *lead
	edit.Title = "Full tear-off"
	edit.Status, edit.SubStatus = workflow.StatusClosed, workflow.SubWon
	require.NoError(t, s.Update(context.Background(), &edit))

	got, err := s.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Full tear-off", got.Title)
	assert.Equal(t, workflow.InitialStage, got.Stage())
}

func TestHistoryFilterLimit(t *testing.T) {
	assert.Equal(t, defaultHistoryLimit, HistoryFilter{}.EffectiveLimit())
	assert.Equal(t, 5, HistoryFilter{Limit: 5}.EffectiveLimit())
	assert.Equal(t, maxHistoryLimit, HistoryFilter{Limit: 50_000}.EffectiveLimit())
}

func ptrBool(b bool) *bool { return &b }
