package coordination

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coordinator-core/coordinator/internal/store"
)

func TestBuildContextBundle_FirstClaimSetsWelcomeAndFirstTask(t *testing.T) {
	project := &store.Project{Name: "Widgets", Settings: map[string]interface{}{
		"currentFocus":     "Ship the login flow",
		"relevantPatterns": []interface{}{"use context.Context everywhere"},
	}}
	ob := &store.ProjectOnboarding{
		WelcomeMessage:        "Welcome aboard",
		ProjectGoals:          []string{"Ship v1"},
		CheckpointEveryNTasks: 3,
	}
	task := &store.Task{ID: "t1", Title: "Do the thing", Description: "details"}

	bundle := buildContextBundle(project, ob, task, []*store.Task{task}, 1)

	assert.True(t, bundle.IsFirstTask)
	assert.Equal(t, "Welcome aboard", bundle.WelcomeMessage)
	assert.Equal(t, "Ship the login flow", bundle.CurrentFocus)
	assert.Equal(t, []string{"use context.Context everywhere"}, bundle.RelevantPatterns)
	assert.False(t, bundle.CheckpointDue)
}

func TestBuildContextBundle_NotFirstClaimOmitsWelcome(t *testing.T) {
	project := &store.Project{Name: "Widgets"}
	ob := &store.ProjectOnboarding{WelcomeMessage: "Welcome aboard", CheckpointEveryNTasks: 3}
	task := &store.Task{ID: "t2", Title: "Second task"}

	bundle := buildContextBundle(project, ob, task, []*store.Task{task}, 2)

	assert.False(t, bundle.IsFirstTask)
	assert.Empty(t, bundle.WelcomeMessage)
}

func TestBuildContextBundle_CheckpointDueOnMultipleOfN(t *testing.T) {
	project := &store.Project{Name: "Widgets"}
	ob := &store.ProjectOnboarding{CheckpointEveryNTasks: 3}
	task := &store.Task{ID: "t3", Title: "Third task"}

	bundle := buildContextBundle(project, ob, task, []*store.Task{task}, 3)
	assert.True(t, bundle.CheckpointDue)

	bundle4 := buildContextBundle(project, ob, task, []*store.Task{task}, 4)
	assert.False(t, bundle4.CheckpointDue)
}

func TestRelatedTasks_IncludesDependenciesAndFileOverlap(t *testing.T) {
	current := &store.Task{
		ID:           "t1",
		Title:        "Current",
		Files:        []string{"pkg/foo.go"},
		Dependencies: []string{"t0"},
	}
	dep := &store.Task{ID: "t0", Title: "Dependency", Status: store.TaskCompleted}
	overlapping := &store.Task{ID: "t2", Title: "Overlapping", Status: store.TaskInProgress, Files: []string{"pkg/foo.go"}}
	unrelated := &store.Task{ID: "t3", Title: "Unrelated", Status: store.TaskPending, Files: []string{"pkg/bar.go"}}
	pendingOverlap := &store.Task{ID: "t4", Title: "PendingOverlap", Status: store.TaskPending, Files: []string{"pkg/foo.go"}}

	all := []*store.Task{current, dep, overlapping, unrelated, pendingOverlap}
	related := relatedTasks(current, all)

	ids := make([]string, 0, len(related))
	for _, r := range related {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, "t0")
	assert.Contains(t, ids, "t2")
	assert.NotContains(t, ids, "t3")
	assert.NotContains(t, ids, "t4")
	assert.NotContains(t, ids, "t1")
}

func TestRenderContextBundle_IncludesCheckpointSectionWhenDue(t *testing.T) {
	bundle := ContextBundle{
		ProjectName:     "Widgets",
		TaskContext:     TaskContext{Title: "Task", Description: "desc"},
		CheckpointDue:   true,
		CheckpointRules: []string{"Run tests", "Update docs"},
	}
	rendered := renderContextBundle(bundle)
	assert.Contains(t, rendered, "## Checkpoint")
	assert.Contains(t, rendered, "Run tests")
	assert.Contains(t, rendered, "Update docs")
}

func TestRenderContextBundle_OmitsCheckpointSectionWhenNotDue(t *testing.T) {
	bundle := ContextBundle{
		ProjectName: "Widgets",
		TaskContext: TaskContext{Title: "Task", Description: "desc"},
	}
	rendered := renderContextBundle(bundle)
	assert.NotContains(t, rendered, "## Checkpoint")
}
