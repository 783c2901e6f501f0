// Package runner sits on top of internal/sandbox and encodes the
// per-agent-type installation and run recipe: claude-code,
// aider, copilot, crush, zencoder/zai, and custom.
package runner

import "time"

// AgentType identifies which CLI coding agent a sandbox is running.
type AgentType string

const (
	TypeClaudeCode AgentType = "claude-code"
	TypeAider      AgentType = "aider"
	TypeCopilot    AgentType = "copilot"
	TypeCrush      AgentType = "crush"
	TypeZencoder   AgentType = "zencoder"
	TypeZai        AgentType = "zai" // alias of zencoder
	TypeCustom     AgentType = "custom"
)

// normalize resolves the zencoder/zai alias to one canonical key.
func (t AgentType) normalize() AgentType {
	if t == TypeZai {
		return TypeZencoder
	}
	return t
}

// StartConfig describes one agent run request.
type StartConfig struct {
	AgentID       string
	ProjectID     string
	AgentType     AgentType
	MCPURL        string
	GitRepo       string
	GitBranch     string
	WorkDir       string
	Env           map[string]string
	SetupCommands []string // appended after the type's own setup script
	RunCommand    string   // overrides the type's default run command when set (required for custom)
}

// RunningAgent is the agent-id -> sandbox-id mapping Runner maintains.
type RunningAgent struct {
	AgentID   string
	SandboxID string
	ProjectID string
	Type      AgentType
	StartedAt time.Time
}

// RunResult is returned by RunAgent/ExecuteInAgent once the command
// completes.
type RunResult struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
}

const gitCloneTimeoutSeconds = 120
