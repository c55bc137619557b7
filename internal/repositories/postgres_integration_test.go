//go:build integration

// Integration tests for the Postgres status store. A postgres container is
// started with testcontainers and migrations/001_lead_status.sql applied.
// Run with:
//
//	go test -tags=integration ./internal/repositories/...
//
// Docker must be available. The tests are skipped under -short.
package repositories_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"roofcrm/internal/models"
	"roofcrm/internal/repositories"
	"roofcrm/internal/services"
	"roofcrm/internal/workflow"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("roofcrm"),
		postgres.WithUsername("roofcrm"),
		postgres.WithPassword("roofcrm"),
		postgres.WithInitScripts("../../migrations/001_lead_status.sql"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func seedUser(t *testing.T, db *sql.DB, email string) int {
	t.Helper()
	var id int
	require.NoError(t, db.QueryRow(
		`INSERT INTO users (email, role_id) VALUES ($1, 10) RETURNING id`, email,
	).Scan(&id))
	return id
}

func stage(status workflow.Status, sub workflow.SubStatus) workflow.Stage {
	return workflow.Stage{Status: status, SubStatus: sub}
}

func TestPostgresStatusStore(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	store := repositories.NewStatusHistoryRepository(db)
	svc := services.NewStatusTransitionService(store)
	owner := seedUser(t, db, "owner@roofs.test")

	contacted := stage(workflow.StatusNewLead, workflow.SubContacted)
	estimating := stage(workflow.StatusQuote, workflow.SubEstimating)

	newLead := func(t *testing.T) *models.Leads {
		t.Helper()
		lead := &models.Leads{Title: "Hail damage, 12 Elm St", OwnerID: owner}
		require.NoError(t, svc.CreateLead(ctx, lead, &owner, map[string]any{"source": "web"}))
		require.NotZero(t, lead.ID)
		return lead
	}
	history := func(t *testing.T, leadID int64) []workflow.Transition {
		t.Helper()
		recs, err := store.ListTransitions(ctx, repositories.HistoryFilter{LeadID: leadID})
		require.NoError(t, err)
		return recs
	}

	t.Run("creation and manual move round-trip", func(t *testing.T) {
		lead := newLead(t)
		res, err := svc.Apply(ctx, services.TransitionRequest{
			LeadID: lead.ID, Target: contacted, Origin: workflow.OriginManual, ChangedBy: &owner,
			Metadata: map[string]any{"note": "left voicemail", "attempt": 2, "tags": map[string]any{"storm": true}},
		})
		require.NoError(t, err)
		require.Equal(t, services.OutcomeApplied, res.Outcome)

		recs := history(t, lead.ID)
		require.Len(t, recs, 2)
		assert.Nil(t, recs[0].From)
		assert.Equal(t, workflow.InitialStage, recs[0].To)
		assert.Equal(t, "web", recs[0].Metadata["source"])

		moved := recs[1]
		assert.Equal(t, res.Record.ID, moved.ID)
		require.NotNil(t, moved.From)
		assert.Equal(t, workflow.InitialStage, *moved.From)
		assert.Equal(t, contacted, moved.To)
		assert.False(t, moved.Automated)
		require.NotNil(t, moved.ChangedBy)
		assert.Equal(t, owner, *moved.ChangedBy)
		assert.Equal(t, "left voicemail", moved.Metadata["note"])
		assert.Equal(t, 2.0, moved.Metadata["attempt"])
		assert.Equal(t, map[string]any{"storm": true}, moved.Metadata["tags"])
		assert.False(t, moved.CreatedAt.Before(recs[0].CreatedAt))

		got, err := store.GetStage(ctx, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, contacted, got)
	})

	t.Run("automated event has no actor", func(t *testing.T) {
		lead := newLead(t)
		res, err := svc.ApplyEvent(ctx, workflow.Event{
			LeadID: lead.ID, Type: workflow.EventQuoteCreated,
			Quote: &workflow.QuotePayload{QuoteID: "q-1", Total: 10825},
		})
		require.NoError(t, err)
		require.Equal(t, services.OutcomeApplied, res.Outcome)

		recs := history(t, lead.ID)
		require.Len(t, recs, 2)
		assert.True(t, recs[1].Automated)
		assert.Nil(t, recs[1].ChangedBy)

		report, err := services.NewHistoryService(store).Verify(ctx, lead.ID)
		require.NoError(t, err)
		assert.True(t, report.Consistent, report.Problem)
	})

	t.Run("stale compare-and-set rolls back", func(t *testing.T) {
		lead := newLead(t)
		err := store.WithinTx(ctx, func(tx repositories.StatusTx) error {
			if err := tx.InsertTransition(ctx, &workflow.Transition{
				LeadID: lead.ID, From: &contacted, To: estimating, Automated: true,
			}); err != nil {
				return err
			}
			return tx.UpdateStage(ctx, lead.ID, contacted, estimating)
		})
		assert.ErrorIs(t, err, repositories.ErrConcurrentModification)

		got, err := store.GetStage(ctx, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.InitialStage, got)
		assert.Len(t, history(t, lead.ID), 1, "the inserted record was rolled back")
	})

	t.Run("actor constraint rejects manual record without user", func(t *testing.T) {
		lead := newLead(t)
		err := store.WithinTx(ctx, func(tx repositories.StatusTx) error {
			return tx.InsertTransition(ctx, &workflow.Transition{
				LeadID: lead.ID, From: &workflow.InitialStage, To: contacted,
			})
		})
		assert.ErrorContains(t, err, "transitions_actor")
		assert.Len(t, history(t, lead.ID), 1)
	})

	t.Run("lock stage blocks a second writer", func(t *testing.T) {
		lead := newLead(t)
		locked, release := make(chan struct{}), make(chan struct{})
		firstDone := make(chan error, 1)
		go func() {
			firstDone <- store.WithinTx(ctx, func(tx repositories.StatusTx) error {
				if _, err := tx.LockStage(ctx, lead.ID); err != nil {
					close(locked)
					return err
				}
				close(locked)
				<-release
				return nil
			})
		}()
		<-locked

		waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		err := store.WithinTx(waitCtx, func(tx repositories.StatusTx) error {
			_, err := tx.LockStage(waitCtx, lead.ID)
			return err
		})
		assert.Error(t, err, "second LockStage should wait for the first transaction")

		close(release)
		require.NoError(t, <-firstDone)
	})

	t.Run("concurrent events apply once", func(t *testing.T) {
		lead := newLead(t)
		const workers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			outcomes = map[services.Outcome]int{}
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := svc.ApplyEvent(ctx, workflow.Event{
					LeadID: lead.ID, Type: workflow.EventQuoteCreated,
					Quote: &workflow.QuotePayload{QuoteID: "q-1"},
				})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				outcomes[res.Outcome]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, outcomes[services.OutcomeApplied])
		assert.Equal(t, workers-1, outcomes[services.OutcomeNoOp])
		assert.Len(t, history(t, lead.ID), 2)
	})

	t.Run("history filters and cursor", func(t *testing.T) {
		lead := newLead(t)
		for _, to := range []workflow.Stage{contacted, stage(workflow.StatusNewLead, workflow.SubAppointmentScheduled)} {
			_, err := svc.Apply(ctx, services.TransitionRequest{
				LeadID: lead.ID, Target: to, Origin: workflow.OriginManual, ChangedBy: &owner,
			})
			require.NoError(t, err)
		}
		_, err := svc.ApplyEvent(ctx, workflow.Event{
			LeadID: lead.ID, Type: workflow.EventQuoteCreated, Quote: &workflow.QuotePayload{QuoteID: "q-1"},
		})
		require.NoError(t, err)

		all := history(t, lead.ID)
		require.Len(t, all, 4)

		page, err := store.ListTransitions(ctx, repositories.HistoryFilter{LeadID: lead.ID, AfterID: all[1].ID, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, all[2].ID, page[0].ID)

		manual := false
		recs, err := store.ListTransitions(ctx, repositories.HistoryFilter{LeadID: lead.ID, Automated: &manual})
		require.NoError(t, err)
		assert.Len(t, recs, 3)

		window, err := store.ListTransitions(ctx, repositories.HistoryFilter{
			LeadID: lead.ID, From: all[1].CreatedAt, To: all[3].CreatedAt,
		})
		require.NoError(t, err)
		require.Len(t, window, 2)
		assert.Equal(t, all[1].ID, window[0].ID)
	})

	t.Run("history is append-only and survives soft delete", func(t *testing.T) {
		lead := newLead(t)

		_, err := db.ExecContext(ctx, `UPDATE lead_status_transitions SET automated = automated WHERE lead_id = $1`, lead.ID)
		assert.ErrorContains(t, err, "append-only")
		_, err = db.ExecContext(ctx, `DELETE FROM lead_status_transitions WHERE lead_id = $1`, lead.ID)
		assert.ErrorContains(t, err, "append-only")

		require.NoError(t, repositories.NewLeadRepository(db).Delete(ctx, lead.ID))
		_, err = store.GetStage(ctx, lead.ID)
		assert.ErrorIs(t, err, repositories.ErrLeadNotFound)
		_, err = svc.Apply(ctx, services.TransitionRequest{
			LeadID: lead.ID, Target: contacted, Origin: workflow.OriginManual, ChangedBy: &owner,
		})
		assert.ErrorIs(t, err, repositories.ErrLeadNotFound)
		assert.Len(t, history(t, lead.ID), 1)
	})
}
