package runner

import "fmt"

// typeRecipe is the per-agent-type installation and run recipe. Setup
// commands are tolerant of failure (a missing optional dependency or an
// already-installed tool shouldn't sink the whole startup).
type typeRecipe struct {
	SetupCommands []string
	RunCommand    string
}

var recipes = map[AgentType]typeRecipe{
	TypeClaudeCode: {
		SetupCommands: []string{"npm install -g @anthropic-ai/claude-code"},
		RunCommand:    "claude --print --dangerously-skip-permissions",
	},
	TypeAider: {
		SetupCommands: []string{"pip install --quiet aider-chat"},
		RunCommand:    "aider --yes --no-check-update",
	},
	TypeCopilot: {
		SetupCommands: []string{"npm install -g @githubnext/github-copilot-cli"},
		RunCommand:    "github-copilot-cli suggest",
	},
	TypeCrush: {
		SetupCommands: []string{"npm install -g @charmbracelet/crush"},
		RunCommand:    "crush run",
	},
	TypeZencoder: {
		SetupCommands: []string{"npm install -g @zencoder/cli"},
		RunCommand:    "zencoder run",
	},
}

// setupCommandsFor returns the install recipe for an agent type; custom
// agents have no built-in setup of their own, only caller-supplied
// SetupCommands.
func setupCommandsFor(t AgentType) []string {
	r, ok := recipes[t.normalize()]
	if !ok {
		return nil
	}
	return r.SetupCommands
}

// runCommandFor returns the default run command for an agent type, or an
// error for custom/unrecognized types with no override supplied.
func runCommandFor(t AgentType, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	r, ok := recipes[t.normalize()]
	if !ok {
		return "", fmt.Errorf("runner: agent type %q requires an explicit run command", t)
	}
	return r.RunCommand, nil
}
