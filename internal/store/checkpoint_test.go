package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckpoint_LatestReturnsMostRecent(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)
	mustAgent(t, s, p.ID, "agent-a")

	_, err := s.CreateCheckpoint(CreateCheckpointInput{
		ProjectID: p.ID, AgentID: "agent-a", Type: CheckpointAuto,
		Context: CheckpointContext{CompletedSteps: []string{"wrote tests"}},
	})
	require.NoError(t, err)

	second, err := s.CreateCheckpoint(CreateCheckpointInput{
		ProjectID: p.ID, AgentID: "agent-a", Type: CheckpointManual,
		Context: CheckpointContext{CompletedSteps: []string{"wrote tests", "refactored"}},
	})
	require.NoError(t, err)

	latest, err := s.LatestCheckpoint(p.ID, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Len(t, latest.Context.CompletedSteps, 2)
}

func TestLatestCheckpoint_IgnoresExpired(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)
	mustAgent(t, s, p.ID, "agent-a")

	past := time.Now().UTC().Add(-time.Hour)
	_, err := s.CreateCheckpoint(CreateCheckpointInput{
		ProjectID: p.ID, AgentID: "agent-a", Type: CheckpointContextExhaustion, ExpiresAt: &past,
	})
	require.NoError(t, err)

	_, err = s.LatestCheckpoint(p.ID, "agent-a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
