package sandbox

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Manager owns a bounded set of sandboxes and enforces the policies in
// a concurrency ceiling, absolute deadlines, and a single
// lifecycle-event subscriber.
type Manager struct {
	mu            sync.Mutex
	provider      Provider
	maxConcurrent int
	sem           *semaphore.Weighted // nil when maxConcurrent <= 0 (unbounded)
	sandboxes     map[string]*Sandbox
	timers        map[string]*time.Timer
	autoCleanup   bool
	subscriber    LifecycleCallback
}

// NewManager builds a Manager bounded at maxConcurrent running sandboxes.
// autoCleanup, when true, runs Cleanup automatically after every stop.
func NewManager(provider Provider, maxConcurrent int, autoCleanup bool) *Manager {
	m := &Manager{
		provider:      provider,
		maxConcurrent: maxConcurrent,
		sandboxes:     make(map[string]*Sandbox),
		timers:        make(map[string]*time.Timer),
		autoCleanup:   autoCleanup,
	}
	if maxConcurrent > 0 {
		m.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return m
}

// releaseSlot frees the concurrency slot held by a sandbox that has just
// left StatusRunning. Safe to call even when unbounded (sem is nil) or on
// a sandbox that never held a slot (double-release would panic the
// semaphore, so callers must only invoke this once per running sandbox).
func (m *Manager) releaseSlot() {
	if m.sem != nil {
		m.sem.Release(1)
	}
}

// Subscribe registers the single lifecycle event subscriber, replacing any
// previous one.
func (m *Manager) Subscribe(cb LifecycleCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriber = cb
}

func (m *Manager) emit(ev LifecycleEvent) {
	m.mu.Lock()
	cb := m.subscriber
	m.mu.Unlock()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SANDBOX] lifecycle subscriber panicked: %v", r)
		}
	}()
	cb(ev)
}

// CreateSandbox provisions a new sandbox for projectID, optionally tagged
// with agentID. deadlineSeconds of 0 means no timer; a positive value
// flips the sandbox to timeout (not stopped) when it elapses; no kill
// attempt is made, the underlying service handles teardown.
func (m *Manager) CreateSandbox(ctx context.Context, projectID, agentID string, env map[string]string, deadlineSeconds int) (*Sandbox, error) {
	if m.sem != nil && !m.sem.TryAcquire(1) {
		return nil, fmt.Errorf("sandbox: at capacity (%d running)", m.maxConcurrent)
	}

	id := uuid.New().String()
	if err := m.provider.Create(ctx, id, env); err != nil {
		m.releaseSlot()
		return nil, fmt.Errorf("sandbox: create %s: %w", id, err)
	}

	now := time.Now().UTC()
	sb := &Sandbox{
		ID:             id,
		ProjectID:      projectID,
		AgentID:        agentID,
		Status:         StatusRunning,
		Env:            env,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if deadlineSeconds > 0 {
		deadline := now.Add(time.Duration(deadlineSeconds) * time.Second)
		sb.DeadlineAt = &deadline
	}

	m.mu.Lock()
	m.sandboxes[id] = sb
	if deadlineSeconds > 0 {
		m.timers[id] = time.AfterFunc(time.Duration(deadlineSeconds)*time.Second, func() { m.onDeadline(id) })
	}
	m.mu.Unlock()

	m.emit(LifecycleEvent{Type: LifecycleCreated, SandboxID: id, ProjectID: projectID, AgentID: agentID, At: now})
	m.emit(LifecycleEvent{Type: LifecycleStarted, SandboxID: id, ProjectID: projectID, AgentID: agentID, At: now})
	return sb, nil
}

func (m *Manager) onDeadline(id string) {
	m.mu.Lock()
	sb, ok := m.sandboxes[id]
	if !ok || sb.Status != StatusRunning {
		m.mu.Unlock()
		return
	}
	sb.Status = StatusTimeout
	delete(m.timers, id)
	m.mu.Unlock()
	m.releaseSlot()

	m.emit(LifecycleEvent{Type: LifecycleTimeout, SandboxID: sb.ID, ProjectID: sb.ProjectID, AgentID: sb.AgentID, At: time.Now().UTC()})
	if m.autoCleanup {
		m.Cleanup()
	}
}

// Get returns the in-memory record for a sandbox id.
func (m *Manager) Get(id string) (*Sandbox, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sb, ok := m.sandboxes[id]
	return sb, ok
}

func (m *Manager) touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sb, ok := m.sandboxes[id]; ok {
		sb.LastActivityAt = time.Now().UTC()
	}
}

// ExecuteCommand forwards cmd to the sandbox's provider and records
// activity on return, regardless of outcome.
func (m *Manager) ExecuteCommand(ctx context.Context, id, cmd string, opts ExecOptions) (*ExecResult, error) {
	defer m.touch(id)
	return m.provider.Exec(ctx, id, cmd, opts)
}

// ExecuteCommandStreaming threads byte chunks through callbacks as the
// command runs. Errors are delivered to OnError AND returned to the caller.
func (m *Manager) ExecuteCommandStreaming(ctx context.Context, id, cmd string, opts ExecOptions, callbacks StreamCallbacks) (*ExecResult, error) {
	defer m.touch(id)

	if callbacks.OnStart != nil {
		callbacks.OnStart()
	}
	result, err := m.provider.ExecStreaming(ctx, id, cmd, opts, func(chunk OutputChunk) {
		if callbacks.OnOutput != nil {
			callbacks.OnOutput(chunk)
		}
		switch chunk.Type {
		case "stdout":
			if callbacks.OnStdout != nil {
				callbacks.OnStdout(chunk.Data)
			}
		case "stderr":
			if callbacks.OnStderr != nil {
				callbacks.OnStderr(chunk.Data)
			}
		}
	})
	if err != nil {
		if callbacks.OnError != nil {
			callbacks.OnError(err)
		}
		return nil, err
	}
	if callbacks.OnComplete != nil {
		callbacks.OnComplete(CompleteInfo{ExitCode: result.ExitCode, DurationMs: result.DurationMs})
	}
	return result, nil
}

// FileOperation runs a file operation against id's workspace. Every
// failure is captured into the result rather than returned as an error.
func (m *Manager) FileOperation(ctx context.Context, id string, req FileOpRequest) (*FileOpResult, error) {
	defer m.touch(id)
	res, err := m.provider.FileOp(ctx, id, req)
	if err != nil {
		return &FileOpResult{Success: false, Error: err.Error()}, nil
	}
	return res, nil
}

// StopSandbox marks a sandbox stopped, cancels any pending deadline timer,
// and emits a stopped event. If autoCleanup is set, Cleanup runs
// afterward.
func (m *Manager) StopSandbox(ctx context.Context, id string) error {
	m.mu.Lock()
	sb, ok := m.sandboxes[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("sandbox: unknown id %s", id)
	}
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
	wasRunning := sb.Status == StatusRunning
	sb.Status = StatusStopped
	m.mu.Unlock()
	if wasRunning {
		m.releaseSlot()
	}

	if err := m.provider.Destroy(ctx, id); err != nil {
		log.Printf("[SANDBOX] destroy %s: %v", id, err)
	}
	m.emit(LifecycleEvent{Type: LifecycleStopped, SandboxID: sb.ID, ProjectID: sb.ProjectID, AgentID: sb.AgentID, At: time.Now().UTC()})
	if m.autoCleanup {
		m.Cleanup()
	}
	return nil
}

// FailSandbox marks a sandbox failed and emits a failed event, for setup
// or execution errors the caller has already decided are fatal.
func (m *Manager) FailSandbox(ctx context.Context, id string) error {
	m.mu.Lock()
	sb, ok := m.sandboxes[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("sandbox: unknown id %s", id)
	}
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
	wasRunning := sb.Status == StatusRunning
	sb.Status = StatusFailed
	m.mu.Unlock()
	if wasRunning {
		m.releaseSlot()
	}

	if err := m.provider.Destroy(ctx, id); err != nil {
		log.Printf("[SANDBOX] destroy %s: %v", id, err)
	}
	m.emit(LifecycleEvent{Type: LifecycleFailed, SandboxID: sb.ID, ProjectID: sb.ProjectID, AgentID: sb.AgentID, At: time.Now().UTC()})
	if m.autoCleanup {
		m.Cleanup()
	}
	return nil
}

// Cleanup removes every in-memory record whose status is not running.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sb := range m.sandboxes {
		if sb.Status != StatusRunning {
			delete(m.sandboxes, id)
		}
	}
}

// List returns every sandbox currently tracked, running or not.
func (m *Manager) List() []*Sandbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Sandbox, 0, len(m.sandboxes))
	for _, sb := range m.sandboxes {
		out = append(out, sb)
	}
	return out
}
