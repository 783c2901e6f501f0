package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coordinator-core/coordinator/internal/store"
)

func TestDetectOverlappingTasks_FlagsSharedFile(t *testing.T) {
	tasks := []*store.Task{
		{ID: "t1", Status: store.TaskInProgress, Assignee: "agent-a", Files: []string{"main.go"}},
		{ID: "t2", Status: store.TaskInProgress, Assignee: "agent-b", Files: []string{"main.go"}},
		{ID: "t3", Status: store.TaskInProgress, Assignee: "agent-c", Files: []string{"other.go"}},
	}

	detected := DetectOverlappingTasks(tasks)
	assert.Len(t, detected, 1)
	assert.Equal(t, "main.go", detected[0].FilePath)
	assert.ElementsMatch(t, []string{"agent-a", "agent-b"}, detected[0].Agents)
	assert.Equal(t, store.ConflictStrategyReview, detected[0].Strategy)
}

func TestDetectOverlappingTasks_IgnoresNonInProgress(t *testing.T) {
	tasks := []*store.Task{
		{ID: "t1", Status: store.TaskPending, Assignee: "agent-a", Files: []string{"main.go"}},
		{ID: "t2", Status: store.TaskCompleted, Assignee: "agent-b", Files: []string{"main.go"}},
	}

	assert.Empty(t, DetectOverlappingTasks(tasks))
}

func TestDetectOverlappingTasks_UnassignedStillCountsButContributesNoAgent(t *testing.T) {
	tasks := []*store.Task{
		{ID: "t1", Status: store.TaskInProgress, Assignee: "", Files: []string{"main.go"}},
		{ID: "t2", Status: store.TaskInProgress, Assignee: "agent-b", Files: []string{"main.go"}},
	}

	detected := DetectOverlappingTasks(tasks)
	assert.Len(t, detected, 1)
	assert.Equal(t, []string{"agent-b"}, detected[0].Agents)
}

func TestResolveStrategy_ConflictStrategyOverridesProject(t *testing.T) {
	assert.Equal(t, ResolutionWait, ResolveStrategy("", store.ConflictStrategyLock))
	assert.Equal(t, ResolutionMerge, ResolveStrategy(store.ConflictStrategyMerge, store.ConflictStrategyLock))
	assert.Equal(t, ResolutionWait, ResolveStrategy("", store.ConflictStrategyZone))
	assert.Equal(t, ResolutionHuman, ResolveStrategy(store.ConflictStrategyReview, store.ConflictStrategyLock))
}
