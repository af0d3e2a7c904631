package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/models"
)

var stages = []Action{ActionApprove, ActionCollect, ActionDraft, ActionCategorize, ActionReview, ActionPublish}

func TestHappyPath(t *testing.T) {
	path := []struct {
		action Action
		want   models.TopicStatus
	}{
		{ActionApprove, models.TopicStatusApproved},
		{ActionStartCollect, models.TopicStatusProcessing},
		{ActionCollect, models.TopicStatusCollected},
		{ActionDraft, models.TopicStatusDrafted},
		{ActionCategorize, models.TopicStatusAssigned},
		{ActionReview, models.TopicStatusReady},
		{ActionPublish, models.TopicStatusPublished},
	}

	status := models.TopicStatusNew
	for _, step := range path {
		next, err := Next(status, step.action)
		require.NoError(t, err, "%s from %s", step.action, status)
		assert.Equal(t, step.want, next)
		status = next
	}
}

func TestGate(t *testing.T) {
	tests := []struct {
		status models.TopicStatus
		stage  Action
		ok     bool
	}{
		{models.TopicStatusNew, ActionApprove, true},
		{models.TopicStatusNew, ActionCollect, false},
		{models.TopicStatusApproved, ActionCollect, true},
		{models.TopicStatusProcessing, ActionCollect, true},
		{models.TopicStatusApproved, ActionDraft, false},
		{models.TopicStatusCollected, ActionDraft, true},
		{models.TopicStatusCollected, ActionReview, false},
		{models.TopicStatusAssigned, ActionReview, true},
		{models.TopicStatusDrafted, ActionPublish, false},
		{models.TopicStatusReady, ActionPublish, true},
		{models.TopicStatusDisapproved, ActionApprove, false},
		{models.TopicStatusDuplicate, ActionCollect, false},
	}

	for _, tt := range tests {
		err := Gate(tt.status, tt.stage)
		if tt.ok {
			assert.NoError(t, err, "%s from %s", tt.stage, tt.status)
			continue
		}
		require.Error(t, err, "%s from %s", tt.stage, tt.status)
		assert.ErrorIs(t, err, apperr.ErrGating)
	}
}

func TestGatingMessageNamesRequiredStatus(t *testing.T) {
	err := Gate(models.TopicStatusApproved, ActionDraft)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(models.TopicStatusCollected))
}

// Every status a stage may run from has an entry, and no stage ever lowers rank.
func TestStagesNeverMoveBackward(t *testing.T) {
	for _, stage := range stages {
		for _, status := range models.AllTopicStatuses {
			if !CanRun(status, stage) {
				continue
			}
			from := status
			if stage == ActionCollect && status == models.TopicStatusApproved {
				var err error
				from, err = Next(status, ActionStartCollect)
				require.NoError(t, err)
			}
			next, err := Next(from, stage)
			require.NoError(t, err, "%s from %s", stage, from)
			assert.GreaterOrEqual(t, Rank(next), Rank(status), "%s from %s", stage, status)
		}
	}
}

func TestCategorizeBeforeDraftKeepsCollected(t *testing.T) {
	next, err := Next(models.TopicStatusCollected, ActionCategorize)
	require.NoError(t, err)
	assert.Equal(t, models.TopicStatusCollected, next)
	assert.False(t, CanRun(next, ActionReview))

	next, err = Next(models.TopicStatusDrafted, ActionCategorize)
	require.NoError(t, err)
	assert.Equal(t, models.TopicStatusAssigned, next)
}

func TestPublishedIsSticky(t *testing.T) {
	for _, stage := range stages {
		next, err := Next(models.TopicStatusPublished, stage)
		require.NoError(t, err)
		assert.Equal(t, models.TopicStatusPublished, next)
	}

	_, err := Next(models.TopicStatusPublished, ActionDisapprove)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEscapeHatches(t *testing.T) {
	next, err := Next(models.TopicStatusNew, ActionDisapprove)
	require.NoError(t, err)
	assert.Equal(t, models.TopicStatusDisapproved, next)

	next, err = Next(models.TopicStatusDrafted, ActionMarkDuplicate)
	require.NoError(t, err)
	assert.Equal(t, models.TopicStatusDuplicate, next)

	_, err = Next(models.TopicStatusDuplicate, ActionDisapprove)
	assert.Error(t, err)
	assert.True(t, IsTerminal(models.TopicStatusDuplicate))
	assert.Equal(t, -1, Rank(models.TopicStatusDisapproved))
}

func TestFailureReverts(t *testing.T) {
	next, err := Next(models.TopicStatusProcessing, ActionCollectFailed)
	require.NoError(t, err)
	assert.Equal(t, models.TopicStatusApproved, next)

	next, err = Next(models.TopicStatusCollected, ActionDraftFailed)
	require.NoError(t, err)
	assert.Equal(t, models.TopicStatusApproved, next)

	_, err = Next(models.TopicStatusReady, ActionDraftFailed)
	assert.Error(t, err)
}

func TestFrom(t *testing.T) {
	from := From(ActionReview)
	assert.ElementsMatch(t, []models.TopicStatus{
		models.TopicStatusDrafted, models.TopicStatusAssigned,
		models.TopicStatusReady, models.TopicStatusPublished,
	}, from)
}

func TestNeedsCollectRetry(t *testing.T) {
	assert.True(t, NeedsCollectRetry(models.TopicStatusProcessing))
	assert.False(t, NeedsCollectRetry(models.TopicStatusCollected))
}
