package coordination

import (
	"fmt"
	"strings"

	"github.com/coordinator-core/coordinator/internal/store"
)

// RelatedTask is a minimal projection of a task referenced from another
// task's context bundle.
type RelatedTask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// TaskContext is the task-scoped portion of a ContextBundle.
type TaskContext struct {
	TaskID        string        `json:"taskId"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	ExpectedFiles []string      `json:"expectedFiles"`
	RelatedTasks  []RelatedTask `json:"relatedTasks"`
}

// ContextBundle is returned on claim_task and refresh_context: everything
// an agent needs to orient itself without a separate round trip.
type ContextBundle struct {
	ProjectName        string      `json:"projectName"`
	CurrentFocus       string      `json:"currentFocus,omitempty"`
	ProjectGoals       []string    `json:"projectGoals"`
	AgentInstructions  string      `json:"agentInstructions,omitempty"`
	StyleGuide         string      `json:"styleGuide,omitempty"`
	CheckpointRules    []string    `json:"checkpointRules"`
	AllowedPaths       []string    `json:"allowedPaths"`
	DeniedPaths        []string    `json:"deniedPaths"`
	RelevantPatterns   []string    `json:"relevantPatterns"`
	TaskContext        TaskContext `json:"taskContext"`
	IsFirstTask        bool        `json:"isFirstTask"`
	CheckpointDue      bool        `json:"-"`
	WelcomeMessage     string      `json:"-"`
}

// buildContextBundle assembles a ContextBundle for task from project's
// onboarding config and the set of tasks currently in flight for the
// project. currentFocus and relevantPatterns have no dedicated onboarding
// columns; they are read from project.Settings, the catch-all for bundle
// fields that had no other natural home.
func buildContextBundle(project *store.Project, ob *store.ProjectOnboarding, task *store.Task, allTasks []*store.Task, claimCount int) ContextBundle {
	bundle := ContextBundle{
		ProjectName:       project.Name,
		ProjectGoals:      ob.ProjectGoals,
		AgentInstructions: ob.AgentInstructions,
		StyleGuide:        ob.StyleGuide,
		CheckpointRules:   ob.CheckpointRules,
		AllowedPaths:      ob.AllowedPaths,
		DeniedPaths:       ob.DeniedPaths,
		TaskContext: TaskContext{
			TaskID:        task.ID,
			Title:         task.Title,
			Description:   task.Description,
			ExpectedFiles: task.Files,
			RelatedTasks:  relatedTasks(task, allTasks),
		},
		IsFirstTask: claimCount == 1,
	}
	if v, ok := project.Settings["currentFocus"].(string); ok {
		bundle.CurrentFocus = v
	}
	if v, ok := project.Settings["relevantPatterns"].([]interface{}); ok {
		for _, p := range v {
			if s, ok := p.(string); ok {
				bundle.RelevantPatterns = append(bundle.RelevantPatterns, s)
			}
		}
	}
	if bundle.IsFirstTask {
		bundle.WelcomeMessage = ob.WelcomeMessage
	}
	everyN := ob.CheckpointEveryNTasks
	if everyN <= 0 {
		everyN = 3
	}
	bundle.CheckpointDue = claimCount > 0 && claimCount%everyN == 0
	return bundle
}

// relatedTasks computes task dependencies union other in-progress/claimed
// tasks sharing any file, deduplicated, current task excluded.
func relatedTasks(task *store.Task, allTasks []*store.Task) []RelatedTask {
	seen := map[string]bool{task.ID: true}
	var out []RelatedTask

	byID := make(map[string]*store.Task, len(allTasks))
	for _, t := range allTasks {
		byID[t.ID] = t
	}
	for _, depID := range task.Dependencies {
		if seen[depID] {
			continue
		}
		if dep, ok := byID[depID]; ok {
			seen[depID] = true
			out = append(out, RelatedTask{ID: dep.ID, Title: dep.Title, Status: dep.Status})
		}
	}

	fileSet := make(map[string]bool, len(task.Files))
	for _, f := range task.Files {
		fileSet[f] = true
	}
	for _, t := range allTasks {
		if seen[t.ID] {
			continue
		}
		if t.Status != store.TaskInProgress && t.Status != store.TaskClaimed {
			continue
		}
		for _, f := range t.Files {
			if fileSet[f] {
				seen[t.ID] = true
				out = append(out, RelatedTask{ID: t.ID, Title: t.Title, Status: t.Status})
				break
			}
		}
	}
	return out
}

// renderContextBundle formats a bundle as the markdown document
// claim_task and refresh_context return as their tool text.
func renderContextBundle(b ContextBundle) string {
	var sb strings.Builder

	if b.WelcomeMessage != "" {
		sb.WriteString(b.WelcomeMessage)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", b.ProjectName)
	if b.CurrentFocus != "" {
		fmt.Fprintf(&sb, "**Current focus:** %s\n\n", b.CurrentFocus)
	}
	if len(b.ProjectGoals) > 0 {
		sb.WriteString("## Project goals\n")
		for _, g := range b.ProjectGoals {
			fmt.Fprintf(&sb, "- %s\n", g)
		}
		sb.WriteString("\n")
	}
	if b.AgentInstructions != "" {
		fmt.Fprintf(&sb, "## Agent instructions\n%s\n\n", b.AgentInstructions)
	}
	if b.StyleGuide != "" {
		fmt.Fprintf(&sb, "## Style guide\n%s\n\n", b.StyleGuide)
	}
	if len(b.AllowedPaths) > 0 || len(b.DeniedPaths) > 0 {
		sb.WriteString("## Path rules\n")
		for _, p := range b.AllowedPaths {
			fmt.Fprintf(&sb, "- allowed: %s\n", p)
		}
		for _, p := range b.DeniedPaths {
			fmt.Fprintf(&sb, "- denied: %s\n", p)
		}
		sb.WriteString("\n")
	}
	if len(b.RelevantPatterns) > 0 {
		sb.WriteString("## Relevant patterns\n")
		for _, p := range b.RelevantPatterns {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "## Task: %s\n\n%s\n\n", b.TaskContext.Title, b.TaskContext.Description)
	if len(b.TaskContext.ExpectedFiles) > 0 {
		sb.WriteString("Expected files:\n")
		for _, f := range b.TaskContext.ExpectedFiles {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("\n")
	}
	if len(b.TaskContext.RelatedTasks) > 0 {
		sb.WriteString("Related tasks:\n")
		for _, rt := range b.TaskContext.RelatedTasks {
			fmt.Fprintf(&sb, "- [%s] %s (%s)\n", rt.ID, rt.Title, rt.Status)
		}
		sb.WriteString("\n")
	}

	if b.CheckpointDue && len(b.CheckpointRules) > 0 {
		sb.WriteString("## Checkpoint\n")
		for _, r := range b.CheckpointRules {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
		sb.WriteString("\n")
	} else if b.CheckpointDue {
		sb.WriteString("## Checkpoint\nReview your progress before continuing.\n\n")
	}

	return sb.String()
}
