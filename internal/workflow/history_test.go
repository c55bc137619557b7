package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roofcrm/internal/workflow"
)

func ptr[T any](v T) *T { return &v }

func TestReplay(t *testing.T) {
	estimating := stage(workflow.StatusQuote, workflow.SubEstimating)
	sent := stage(workflow.StatusQuote, workflow.SubQuoteSent)

	records := []workflow.Transition{
		{ID: 1, LeadID: 9, To: workflow.InitialStage, ChangedBy: ptr(3)},
		{ID: 2, LeadID: 9, From: ptr(workflow.InitialStage), To: estimating, Automated: true},
		{ID: 3, LeadID: 9, From: ptr(estimating), To: sent, ChangedBy: ptr(3)},
	}

	got, err := workflow.Replay(records)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestReplay_DetectsGap(t *testing.T) {
	records := []workflow.Transition{
		{ID: 1, To: workflow.InitialStage, Automated: true},
		{ID: 2, From: ptr(stage(workflow.StatusQuote, workflow.SubEstimating)),
			To: stage(workflow.StatusQuote, workflow.SubQuoteSent), Automated: true},
	}
	_, err := workflow.Replay(records)
	assert.Error(t, err)
}

func TestReplay_ActorInvariant(t *testing.T) {
	estimating := stage(workflow.StatusQuote, workflow.SubEstimating)

	_, err := workflow.Replay([]workflow.Transition{
		{ID: 1, To: workflow.InitialStage, ChangedBy: ptr(1)},
		{ID: 2, From: ptr(workflow.InitialStage), To: estimating, Automated: true, ChangedBy: ptr(1)},
	})
	assert.Error(t, err)

	_, err = workflow.Replay([]workflow.Transition{
		{ID: 1, To: workflow.InitialStage, ChangedBy: ptr(1)},
		{ID: 2, From: ptr(workflow.InitialStage), To: estimating},
	})
	assert.Error(t, err)
}

func TestReplay_ActorInvariantCoversCreation(t *testing.T) {
	_, err := workflow.Replay([]workflow.Transition{{ID: 1, To: workflow.InitialStage}})
	assert.ErrorContains(t, err, "manual record has no actor")

	_, err = workflow.Replay([]workflow.Transition{{ID: 1, To: workflow.InitialStage, Automated: true, ChangedBy: ptr(2)}})
	assert.ErrorContains(t, err, "automated record has an actor")

	got, err := workflow.Replay([]workflow.Transition{{ID: 1, To: workflow.InitialStage, Automated: true}})
	require.NoError(t, err)
	assert.Equal(t, workflow.InitialStage, got)
}

func TestReplay_RequiresCreationRecord(t *testing.T) {
	_, err := workflow.Replay(nil)
	assert.Error(t, err)

	_, err = workflow.Replay([]workflow.Transition{
		{ID: 5, From: ptr(workflow.InitialStage), To: stage(workflow.StatusQuote, workflow.SubEstimating), Automated: true},
	})
	assert.Error(t, err)
}
