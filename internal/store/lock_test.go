package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock_SecondHolderBlocked(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)

	ok, err := s.AcquireLock(p.ID, "main.go", "agent-a", 60)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(p.ID, "main.go", "agent-b", 60)
	require.NoError(t, err)
	assert.False(t, ok)

	status, err := s.CheckLock(p.ID, "main.go")
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, "agent-a", status.Holder)
}

func TestAcquireLock_ExpiredLockIsLazilyReclaimed(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)

	ok, err := s.AcquireLock(p.ID, "main.go", "agent-a", -1)
	require.NoError(t, err)
	require.True(t, ok)

	// TTL already in the past: the next acquire attempt GCs it first.
	ok, err = s.AcquireLock(p.ID, "main.go", "agent-b", 60)
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := s.CheckLock(p.ID, "main.go")
	require.NoError(t, err)
	assert.Equal(t, "agent-b", status.Holder)
}

func TestReleaseLock_NonHolderIsNoOp(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)

	_, err := s.AcquireLock(p.ID, "main.go", "agent-a", 60)
	require.NoError(t, err)

	require.NoError(t, s.ReleaseLock(p.ID, "main.go", "agent-b"))

	status, err := s.CheckLock(p.ID, "main.go")
	require.NoError(t, err)
	assert.True(t, status.Locked, "release by a non-holder must not free the lock")

	require.NoError(t, s.ReleaseLock(p.ID, "main.go", "agent-a"))
	status, err = s.CheckLock(p.ID, "main.go")
	require.NoError(t, err)
	assert.False(t, status.Locked)
}

func TestCleanupStaleLocks(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)

	_, err := s.AcquireLock(p.ID, "a.go", "agent-a", -5)
	require.NoError(t, err)
	_, err = s.AcquireLock(p.ID, "b.go", "agent-a", 60)
	require.NoError(t, err)

	removed, err := s.CleanupStaleLocks(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	active, err := s.ListActiveLocks(p.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b.go", active[0].FilePath)
}

func TestCheckLock_ExpiresAtIsReturned(t *testing.T) {
	s := newTestStore(t)
	p := mustProject(t, s)

	before := time.Now().UTC()
	_, err := s.AcquireLock(p.ID, "main.go", "agent-a", 30)
	require.NoError(t, err)

	status, err := s.CheckLock(p.ID, "main.go")
	require.NoError(t, err)
	require.NotNil(t, status.ExpiresAt)
	assert.True(t, status.ExpiresAt.After(before))
}
