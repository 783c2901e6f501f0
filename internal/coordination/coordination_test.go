package coordination

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coordinator-core/coordinator/internal/events"
	"github.com/coordinator-core/coordinator/internal/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store, *store.Project) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "coordinator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	project, err := st.CreateProject(store.CreateProjectInput{
		OrganizationID: "org-1",
		Name:           "Widgets",
		Slug:           "widgets",
	})
	require.NoError(t, err)

	return NewCoordinator(st, events.NewBus(nil)), st, project
}

func mustAgent(t *testing.T, st *store.Store, projectID, id string) *store.Agent {
	t.Helper()
	a, err := st.RegisterAgent(store.RegisterAgentInput{
		ID:                   id,
		ProjectID:            projectID,
		Name:                 id,
		InputCostPerMillion:  3.0,
		OutputCostPerMillion: 15.0,
	})
	require.NoError(t, err)
	return a
}

func mustTask(t *testing.T, st *store.Store, projectID, title string) *store.Task {
	t.Helper()
	task, err := st.CreateTask(store.CreateTaskInput{
		ProjectID: projectID,
		Title:     title,
	})
	require.NoError(t, err)
	return task
}
