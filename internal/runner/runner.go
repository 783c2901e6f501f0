package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coordinator-core/coordinator/internal/events"
	"github.com/coordinator-core/coordinator/internal/sandbox"
)

// Runner drives AgentRunner's lifecycle on top of a sandbox.Manager: it
// decides what to install and run for a given AgentType, and tracks which
// agent owns which sandbox.
type Runner struct {
	sandboxes *sandbox.Manager
	bus       *events.Bus

	mu      sync.Mutex
	running map[string]RunningAgent // agentID -> record
}

// NewRunner wires a Runner over sandboxes, subscribing to its lifecycle
// events so agent records are dropped whenever the owning sandbox stops,
// fails, or times out — regardless of whether StopAgent was called
// explicitly. bus may be nil.
func NewRunner(sandboxes *sandbox.Manager, bus *events.Bus) *Runner {
	r := &Runner{
		sandboxes: sandboxes,
		bus:       bus,
		running:   make(map[string]RunningAgent),
	}
	sandboxes.Subscribe(r.onSandboxLifecycle)
	return r
}

func (r *Runner) onSandboxLifecycle(ev sandbox.LifecycleEvent) {
	switch ev.Type {
	case sandbox.LifecycleStopped, sandbox.LifecycleFailed, sandbox.LifecycleTimeout:
		if ev.AgentID != "" {
			r.mu.Lock()
			delete(r.running, ev.AgentID)
			r.mu.Unlock()
		}
	}
	r.publishEvent(ev)
}

func (r *Runner) publishEvent(ev sandbox.LifecycleEvent) {
	if r.bus == nil {
		return
	}
	var eventType events.EventType
	switch ev.Type {
	case sandbox.LifecycleCreated:
		eventType = events.EventSandboxCreated
	case sandbox.LifecycleStarted:
		eventType = events.EventSandboxStarted
	case sandbox.LifecycleStopped:
		eventType = events.EventSandboxStopped
	case sandbox.LifecycleFailed:
		eventType = events.EventSandboxFailed
	case sandbox.LifecycleTimeout:
		eventType = events.EventSandboxTimeout
	default:
		return
	}
	r.bus.Publish(events.NewEvent(eventType, "runner", ev.ProjectID, events.PriorityNormal, map[string]interface{}{
		"sandboxId": ev.SandboxID,
		"agentId":   ev.AgentID,
	}))
}

// IsAgentRunning reports whether agentID has a live sandbox.
func (r *Runner) IsAgentRunning(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[agentID]
	return ok
}

// GetRunningAgent returns agentID's running record, if any.
func (r *Runner) GetRunningAgent(agentID string) (RunningAgent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ra, ok := r.running[agentID]
	return ra, ok
}

// ListRunningAgents returns every currently tracked running agent.
func (r *Runner) ListRunningAgents() []RunningAgent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunningAgent, 0, len(r.running))
	for _, ra := range r.running {
		out = append(out, ra)
	}
	return out
}

// startAgent provisions a sandbox for cfg and runs its setup: clone (if
// configured), the type's install recipe, then any caller-supplied setup
// commands. On any step's failure it tears the sandbox down before
// returning the error.
func (r *Runner) startAgent(ctx context.Context, cfg StartConfig) (*sandbox.Sandbox, error) {
	if r.IsAgentRunning(cfg.AgentID) {
		return nil, fmt.Errorf("runner: agent %s is already running", cfg.AgentID)
	}

	env := map[string]string{
		"MCP_URL":    cfg.MCPURL,
		"AGENT_ID":   cfg.AgentID,
		"PROJECT_ID": cfg.ProjectID,
	}
	for k, v := range cfg.Env {
		env[k] = v
	}

	sb, err := r.sandboxes.CreateSandbox(ctx, cfg.ProjectID, cfg.AgentID, env, 0)
	if err != nil {
		return nil, fmt.Errorf("runner: create sandbox: %w", err)
	}

	r.mu.Lock()
	r.running[cfg.AgentID] = RunningAgent{
		AgentID:   cfg.AgentID,
		SandboxID: sb.ID,
		ProjectID: cfg.ProjectID,
		Type:      cfg.AgentType,
		StartedAt: time.Now().UTC(),
	}
	r.mu.Unlock()

	if err := r.runSetup(ctx, sb.ID, cfg); err != nil {
		r.mu.Lock()
		delete(r.running, cfg.AgentID)
		r.mu.Unlock()
		_ = r.sandboxes.FailSandbox(ctx, sb.ID)
		return nil, err
	}
	return sb, nil
}

func (r *Runner) runSetup(ctx context.Context, sandboxID string, cfg StartConfig) error {
	if cfg.GitRepo != "" {
		cmd := gitCloneCommand(cfg.GitRepo, cfg.GitBranch, cfg.WorkDir)
		if _, err := r.sandboxes.ExecuteCommand(ctx, sandboxID, cmd, sandbox.ExecOptions{TimeoutSeconds: gitCloneTimeoutSeconds}); err != nil {
			return fmt.Errorf("runner: clone %s: %w", cfg.GitRepo, err)
		}
	}

	for _, setupCmd := range setupCommandsFor(cfg.AgentType) {
		if _, err := r.sandboxes.ExecuteCommand(ctx, sandboxID, setupCmd, sandbox.ExecOptions{Cwd: cfg.WorkDir}); err != nil {
			// Tolerant of failure: install steps may legitimately fail
			// (already installed, offline mirror) without sinking the run.
			log.Printf("[RUNNER] setup command %q for sandbox %s failed (tolerated): %v", setupCmd, sandboxID, err)
		}
	}

	for _, customCmd := range cfg.SetupCommands {
		if _, err := r.sandboxes.ExecuteCommand(ctx, sandboxID, customCmd, sandbox.ExecOptions{Cwd: cfg.WorkDir}); err != nil {
			return fmt.Errorf("runner: custom setup command %q: %w", customCmd, err)
		}
	}
	return nil
}

func gitCloneCommand(repo, branch, workDir string) string {
	if branch != "" {
		return fmt.Sprintf("git clone -b %s %s %s", shQuote(branch), shQuote(repo), shQuote(workDir))
	}
	return fmt.Sprintf("git clone %s %s", shQuote(repo), shQuote(workDir))
}

func shQuote(s string) string {
	return "'" + s + "'"
}

// RunAgent starts cfg's agent, executes its run command, and ALWAYS tears
// the sandbox down afterward, success or failure.
func (r *Runner) RunAgent(ctx context.Context, cfg StartConfig) (*RunResult, error) {
	sb, err := r.startAgent(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer r.teardown(ctx, cfg.AgentID, sb.ID)

	runCmd, err := runCommandFor(cfg.AgentType, cfg.RunCommand)
	if err != nil {
		return nil, err
	}
	result, err := r.sandboxes.ExecuteCommand(ctx, sb.ID, runCmd, sandbox.ExecOptions{Cwd: cfg.WorkDir})
	if err != nil {
		return nil, fmt.Errorf("runner: run command: %w", err)
	}
	return &RunResult{Stdout: result.Stdout, Stderr: result.Stderr, ExitCode: result.ExitCode, DurationMs: result.DurationMs}, nil
}

// RunAgentStreaming is RunAgent with output threaded through callbacks as
// the run command executes.
func (r *Runner) RunAgentStreaming(ctx context.Context, cfg StartConfig, callbacks sandbox.StreamCallbacks) (*RunResult, error) {
	sb, err := r.startAgent(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer r.teardown(ctx, cfg.AgentID, sb.ID)

	runCmd, err := runCommandFor(cfg.AgentType, cfg.RunCommand)
	if err != nil {
		return nil, err
	}
	result, err := r.sandboxes.ExecuteCommandStreaming(ctx, sb.ID, runCmd, sandbox.ExecOptions{Cwd: cfg.WorkDir}, callbacks)
	if err != nil {
		return nil, fmt.Errorf("runner: run command: %w", err)
	}
	return &RunResult{Stdout: result.Stdout, Stderr: result.Stderr, ExitCode: result.ExitCode, DurationMs: result.DurationMs}, nil
}

func (r *Runner) teardown(ctx context.Context, agentID, sandboxID string) {
	r.mu.Lock()
	delete(r.running, agentID)
	r.mu.Unlock()
	if err := r.sandboxes.StopSandbox(ctx, sandboxID); err != nil {
		log.Printf("[RUNNER] teardown sandbox %s: %v", sandboxID, err)
	}
}

// ExecuteInAgent runs a one-shot command against an already-running
// agent's sandbox.
func (r *Runner) ExecuteInAgent(ctx context.Context, agentID, cmd string, opts sandbox.ExecOptions) (*RunResult, error) {
	ra, ok := r.GetRunningAgent(agentID)
	if !ok {
		return nil, fmt.Errorf("runner: agent %s is not running", agentID)
	}
	result, err := r.sandboxes.ExecuteCommand(ctx, ra.SandboxID, cmd, opts)
	if err != nil {
		return nil, err
	}
	return &RunResult{Stdout: result.Stdout, Stderr: result.Stderr, ExitCode: result.ExitCode, DurationMs: result.DurationMs}, nil
}

// ExecuteInAgentStreaming is ExecuteInAgent with streamed output.
func (r *Runner) ExecuteInAgentStreaming(ctx context.Context, agentID, cmd string, opts sandbox.ExecOptions, callbacks sandbox.StreamCallbacks) (*RunResult, error) {
	ra, ok := r.GetRunningAgent(agentID)
	if !ok {
		return nil, fmt.Errorf("runner: agent %s is not running", agentID)
	}
	result, err := r.sandboxes.ExecuteCommandStreaming(ctx, ra.SandboxID, cmd, opts, callbacks)
	if err != nil {
		return nil, err
	}
	return &RunResult{Stdout: result.Stdout, Stderr: result.Stderr, ExitCode: result.ExitCode, DurationMs: result.DurationMs}, nil
}

// StopAgent tears down agentID's sandbox and drops its running record.
func (r *Runner) StopAgent(ctx context.Context, agentID string) error {
	ra, ok := r.GetRunningAgent(agentID)
	if !ok {
		return fmt.Errorf("runner: agent %s is not running", agentID)
	}
	r.teardown(ctx, agentID, ra.SandboxID)
	return nil
}

// StopAllAgents tears down every running agent's sandbox.
func (r *Runner) StopAllAgents(ctx context.Context) {
	for _, ra := range r.ListRunningAgents() {
		r.teardown(ctx, ra.AgentID, ra.SandboxID)
	}
}
