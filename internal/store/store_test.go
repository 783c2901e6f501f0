package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coordinator.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustProject(t *testing.T, s *Store) *Project {
	t.Helper()
	p, err := s.CreateProject(CreateProjectInput{
		OrganizationID: "org-1",
		Name:           "Widgets",
		Slug:           "widgets",
	})
	require.NoError(t, err)
	return p
}

func mustAgent(t *testing.T, s *Store, projectID, name string) *Agent {
	t.Helper()
	a, err := s.RegisterAgent(RegisterAgentInput{
		ID:        name,
		ProjectID: projectID,
		Name:      name,
		Provider:  "claude-code",
	})
	require.NoError(t, err)
	return a
}
