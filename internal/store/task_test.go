package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTask(t *testing.T, s *Store, projectID, title string) *Task {
	t.Helper()
	task, err := s.CreateTask(CreateTaskInput{ProjectID: projectID, Title: title})
	require.NoError(t, err)
	return task
}

func TestCreateTask_DefaultsPriority(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)

	task, err := s.CreateTask(CreateTaskInput{ProjectID: p.ID, Title: "Fix bug"})
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, task.Priority)
	assert.Equal(t, TaskPending, task.Status)
}

func TestCreateTask_ResolvesDependencyChain(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)

	a := mustTask(t, s, p.ID, "A")
	b, err := s.CreateTask(CreateTaskInput{ProjectID: p.ID, Title: "B", Dependencies: []string{a.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, b.Dependencies)

	c, err := s.CreateTask(CreateTaskInput{ProjectID: p.ID, Title: "C", Dependencies: []string{a.ID, b.ID}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, c.Dependencies)
}

func TestImportBeads_AcceptsCycleBetweenImportedBeads(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)
	dir := t.TempDir()
	writeBeadFile(t, dir, "bead-a", bead{ID: "bead-a", Title: "A", DependsOn: []string{"bead-b"}})
	writeBeadFile(t, dir, "bead-b", bead{ID: "bead-b", Title: "B", DependsOn: []string{"bead-a"}})

	// The dependency-resolution pass only rewrites ids it can resolve; a
	// cycle between two beads in the same batch does not error (the SQL
	// column has no cycle constraint), it simply leaves both tasks
	// pointing at one another. Confirm both tasks are created.
	result, err := s.ImportBeads(p.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	tasks, err := s.ListTasks(p.ID, TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestClaimTask_OnlyOneWinner(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)
	task := mustTask(t, s, p.ID, "Contested")

	const agents = 8
	var wg sync.WaitGroup
	wins := make([]bool, agents)
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ok, err := s.ClaimTask(task.ID, agentName(idx))
			assert.NoError(t, err)
			wins[idx] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	fetched, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskClaimed, fetched.Status)
	assert.NotEmpty(t, fetched.Assignee)
}

func agentName(i int) string {
	return "agent-" + string(rune('a'+i))
}

func TestClaimTask_AlreadyClaimedFails(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)
	task := mustTask(t, s, p.ID, "Single")

	ok, err := s.ClaimTask(task.ID, "agent-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimTask(task.ID, "agent-b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateTask_ValidTransition(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)
	task := mustTask(t, s, p.ID, "Workable")
	_, err := s.ClaimTask(task.ID, "agent-a")
	require.NoError(t, err)

	updated, err := s.UpdateTask(task.ID, TaskUpdate{Status: TaskInProgress})
	require.NoError(t, err)
	assert.Equal(t, TaskInProgress, updated.Status)
	require.NotNil(t, updated.StartedAt)

	completed, err := s.UpdateTask(task.ID, TaskUpdate{Status: TaskCompleted, TokensUsed: 500})
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, completed.Status)
	assert.Equal(t, int64(500), completed.ActualTokens)
	require.NotNil(t, completed.CompletedAt)
}

func TestUpdateTask_InvalidTransitionRejected(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)
	task := mustTask(t, s, p.ID, "Pending task")

	// pending -> completed skips claimed/in_progress entirely.
	_, err := s.UpdateTask(task.ID, TaskUpdate{Status: TaskCompleted})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestUpdateTask_MergesNotesNonDestructively(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)
	task := mustTask(t, s, p.ID, "Noted")

	_, err := s.UpdateTask(task.ID, TaskUpdate{Notes: "started digging"})
	require.NoError(t, err)
	updated, err := s.UpdateTask(task.ID, TaskUpdate{Notes: "found the bug"})
	require.NoError(t, err)

	notes, ok := updated.Metadata["notes"].([]interface{})
	require.True(t, ok)
	assert.Len(t, notes, 2)
}

func TestReassignTask_ClearsPreviousHolderLocks(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)
	task := mustTask(t, s, p.ID, "Locked work")

	ok, err := s.ClaimTask(task.ID, "agent-a")
	require.NoError(t, err)
	require.True(t, ok)

	acquired, err := s.AcquireLock(p.ID, "main.go", "agent-a", 60)
	require.NoError(t, err)
	require.True(t, acquired)

	updated, err := s.ReassignTask(task.ID, "agent-b")
	require.NoError(t, err)
	assert.Equal(t, "agent-b", updated.Assignee)
	assert.Equal(t, TaskClaimed, updated.Status)
	assert.Equal(t, float64(1), updated.Metadata["reassignmentCount"])
	assert.Equal(t, "agent-a", updated.Metadata["lastReassignedFrom"])

	status, err := s.CheckLock(p.ID, "main.go")
	require.NoError(t, err)
	assert.False(t, status.Locked)
}

func TestListTasks_OrdersByPriorityThenCreation(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)

	low, err := s.CreateTask(CreateTaskInput{ProjectID: p.ID, Title: "Low", Priority: PriorityLow})
	require.NoError(t, err)
	critical, err := s.CreateTask(CreateTaskInput{ProjectID: p.ID, Title: "Critical", Priority: PriorityCritical})
	require.NoError(t, err)

	tasks, err := s.ListTasks(p.ID, TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, critical.ID, tasks[0].ID)
	assert.Equal(t, low.ID, tasks[1].ID)
}
