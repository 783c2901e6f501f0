package coordination

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coordinator-core/coordinator/internal/events"
	"github.com/coordinator-core/coordinator/internal/store"
)

func TestProjectStatus_CountsTasksByStatus(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "coordinator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	project, err := st.CreateProject(store.CreateProjectInput{
		OrganizationID: "org-1", Name: "Widgets", Slug: "widgets",
	})
	require.NoError(t, err)

	c := NewCoordinator(st, events.NewBus(nil))

	done, err := st.CreateTask(store.CreateTaskInput{ProjectID: project.ID, Title: "Done"})
	require.NoError(t, err)
	_, err = st.UpdateTask(done.ID, store.TaskUpdate{Status: store.TaskClaimed})
	require.NoError(t, err)

	_, err = st.CreateTask(store.CreateTaskInput{ProjectID: project.ID, Title: "Pending"})
	require.NoError(t, err)

	status, err := c.ProjectStatus(project.ID)
	require.NoError(t, err)
	require.Equal(t, 2, status.Tasks.Total)
	require.Equal(t, 1, status.Tasks.Pending)
	require.Equal(t, 1, status.Tasks.Claimed)
	require.Nil(t, status.Budget)
}

func TestProjectStatus_ReportsBudgetSnapshotWhenConfigured(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "coordinator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	project, err := st.CreateProject(store.CreateProjectInput{
		OrganizationID: "org-1", Name: "Widgets", Slug: "widgets",
		Budget: &store.Budget{Total: 100, AlertThreshold: 0.8},
	})
	require.NoError(t, err)

	c := NewCoordinator(st, events.NewBus(nil))

	status, err := c.ProjectStatus(project.ID)
	require.NoError(t, err)
	require.NotNil(t, status.Budget)
	require.Equal(t, 100.0, status.Budget.Total)
	require.Equal(t, 0.8, status.Budget.AlertThreshold)
}
