package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, maxConcurrent int, autoCleanup bool) *Manager {
	t.Helper()
	provider := NewLocalProvider(t.TempDir())
	return NewManager(provider, maxConcurrent, autoCleanup)
}

func TestCreateSandbox_FailsFastAtCapacity(t *testing.T) {
	m := newTestManager(t, 1, false)
	ctx := context.Background()

	_, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)

	_, err = m.CreateSandbox(ctx, "proj-1", "agent-2", nil, 0)
	require.Error(t, err)
}

func TestCreateSandbox_EmitsCreatedAndStartedEvents(t *testing.T) {
	m := newTestManager(t, 0, false)
	ctx := context.Background()

	var mu sync.Mutex
	var types []LifecycleEventType
	m.Subscribe(func(ev LifecycleEvent) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, ev.Type)
	})

	_, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []LifecycleEventType{LifecycleCreated, LifecycleStarted}, types)
}

func TestSandboxDeadline_TransitionsToTimeout(t *testing.T) {
	m := newTestManager(t, 0, false)
	ctx := context.Background()

	done := make(chan LifecycleEventType, 4)
	m.Subscribe(func(ev LifecycleEvent) { done <- ev.Type })

	sb, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 1)
	require.NoError(t, err)

	<-done // created
	<-done // started

	select {
	case ev := <-done:
		assert.Equal(t, LifecycleTimeout, ev)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for sandbox timeout event")
	}

	got, ok := m.Get(sb.ID)
	require.True(t, ok)
	assert.Equal(t, StatusTimeout, got.Status)
}

func TestSubscriberPanic_DoesNotAffectSandboxState(t *testing.T) {
	m := newTestManager(t, 0, false)
	ctx := context.Background()
	m.Subscribe(func(ev LifecycleEvent) { panic("boom") })

	sb, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)

	got, ok := m.Get(sb.ID)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestExecuteCommand_RunsAndUpdatesActivity(t *testing.T) {
	m := newTestManager(t, 0, false)
	ctx := context.Background()

	sb, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)
	before := sb.LastActivityAt

	result, err := m.ExecuteCommand(ctx, sb.ID, "echo hello", ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello")

	got, _ := m.Get(sb.ID)
	assert.True(t, !got.LastActivityAt.Before(before))
}

func TestExecuteCommandStreaming_DeliversChunksAndComplete(t *testing.T) {
	m := newTestManager(t, 0, false)
	ctx := context.Background()

	sb, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)

	var stdout []byte
	var completed *CompleteInfo
	result, err := m.ExecuteCommandStreaming(ctx, sb.ID, "echo streamed", ExecOptions{}, StreamCallbacks{
		OnStdout: func(b []byte) { stdout = append(stdout, b...) },
		OnComplete: func(info CompleteInfo) {
			c := info
			completed = &c
		},
	})
	require.NoError(t, err)
	assert.Contains(t, string(stdout), "streamed")
	require.NotNil(t, completed)
	assert.Equal(t, result.ExitCode, completed.ExitCode)
}

func TestFileOperation_WriteReadExistsDelete(t *testing.T) {
	m := newTestManager(t, 0, false)
	ctx := context.Background()

	sb, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)

	writeRes, err := m.FileOperation(ctx, sb.ID, FileOpRequest{Type: FileOpWrite, Path: "out.txt", Content: []byte("hi")})
	require.NoError(t, err)
	assert.True(t, writeRes.Success)

	readRes, err := m.FileOperation(ctx, sb.ID, FileOpRequest{Type: FileOpRead, Path: "out.txt"})
	require.NoError(t, err)
	assert.True(t, readRes.Success)
	assert.Equal(t, "hi", string(readRes.Content))

	existsRes, err := m.FileOperation(ctx, sb.ID, FileOpRequest{Type: FileOpExists, Path: "out.txt"})
	require.NoError(t, err)
	assert.True(t, existsRes.Exists)

	deleteRes, err := m.FileOperation(ctx, sb.ID, FileOpRequest{Type: FileOpDelete, Path: "out.txt"})
	require.NoError(t, err)
	assert.True(t, deleteRes.Success)

	missingRes, err := m.FileOperation(ctx, sb.ID, FileOpRequest{Type: FileOpExists, Path: "out.txt"})
	require.NoError(t, err)
	assert.False(t, missingRes.Exists)
}

func TestFileOperation_WriteWithMissingContentDefaultsEmpty(t *testing.T) {
	m := newTestManager(t, 0, false)
	ctx := context.Background()

	sb, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)

	writeRes, err := m.FileOperation(ctx, sb.ID, FileOpRequest{Type: FileOpWrite, Path: "empty.txt"})
	require.NoError(t, err)
	assert.True(t, writeRes.Success)

	readRes, err := m.FileOperation(ctx, sb.ID, FileOpRequest{Type: FileOpRead, Path: "empty.txt"})
	require.NoError(t, err)
	assert.Empty(t, readRes.Content)
}

func TestFileOperation_ReadMissingCapturesErrorNotRaise(t *testing.T) {
	m := newTestManager(t, 0, false)
	ctx := context.Background()

	sb, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)

	res, err := m.FileOperation(ctx, sb.ID, FileOpRequest{Type: FileOpRead, Path: "missing.txt"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestCleanup_RemovesOnlyNonRunningSandboxes(t *testing.T) {
	m := newTestManager(t, 0, false)
	ctx := context.Background()

	running, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)
	stopped, err := m.CreateSandbox(ctx, "proj-1", "agent-2", nil, 0)
	require.NoError(t, err)
	require.NoError(t, m.StopSandbox(ctx, stopped.ID))

	m.Cleanup()

	_, stillThere := m.Get(running.ID)
	assert.True(t, stillThere)
	_, goneNow := m.Get(stopped.ID)
	assert.False(t, goneNow)
}

func TestStopSandbox_AutoCleanupRemovesRecordAfterStop(t *testing.T) {
	m := newTestManager(t, 0, true)
	ctx := context.Background()

	sb, err := m.CreateSandbox(ctx, "proj-1", "agent-1", nil, 0)
	require.NoError(t, err)
	require.NoError(t, m.StopSandbox(ctx, sb.ID))

	_, ok := m.Get(sb.ID)
	assert.False(t, ok)
}
