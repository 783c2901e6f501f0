package coordination

import (
	"time"

	"github.com/coordinator-core/coordinator/internal/health"
	"github.com/coordinator-core/coordinator/internal/store"
)

// TaskCounts tallies a project's tasks by status for the status resource.
type TaskCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Claimed    int `json:"claimed"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Blocked    int `json:"blocked"`
}

// BudgetSnapshot is the status resource's budget projection; nil when the
// project has no budget configured.
type BudgetSnapshot struct {
	Spent          float64 `json:"spent"`
	Total          float64 `json:"total"`
	PercentUsed    float64 `json:"percentUsed"`
	AlertThreshold float64 `json:"alertThreshold"`
	Remaining      float64 `json:"remaining"`
}

// ProjectStatus is the JSON snapshot served at project://<id>/status.
type ProjectStatus struct {
	Project       *store.Project  `json:"project"`
	Tasks         TaskCounts      `json:"tasks"`
	Agents        []*store.Agent  `json:"agents"`
	Budget        *BudgetSnapshot `json:"budget"`
	OrphanedTasks []string        `json:"orphanedTasks"`
}

// ProjectStatus combines project metadata, task counts by status, the
// agent roster, and remaining budget into one snapshot.
func (c *Coordinator) ProjectStatus(projectID string) (*ProjectStatus, error) {
	project, err := c.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := c.store.ListTasks(projectID, store.TaskFilter{})
	if err != nil {
		return nil, err
	}
	agents, err := c.store.ListAgents(projectID)
	if err != nil {
		return nil, err
	}

	counts := TaskCounts{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case store.TaskPending:
			counts.Pending++
		case store.TaskClaimed:
			counts.Claimed++
		case store.TaskInProgress:
			counts.InProgress++
		case store.TaskCompleted:
			counts.Completed++
		case store.TaskFailed:
			counts.Failed++
		case store.TaskBlocked:
			counts.Blocked++
		}
	}

	var budget *BudgetSnapshot
	if project.Budget != nil {
		status, err := c.store.GetBudget(projectID)
		if err != nil {
			return nil, err
		}
		budget = &BudgetSnapshot{
			Spent:          status.Spent,
			Total:          status.Total,
			PercentUsed:    status.PercentUsed,
			AlertThreshold: project.Budget.AlertThreshold,
			Remaining:      status.Remaining,
		}
	}

	return &ProjectStatus{
		Project:       project,
		Tasks:         counts,
		Agents:        agents,
		Budget:        budget,
		OrphanedTasks: orphanedTasks(tasks, agents),
	}, nil
}

// orphanedTasks flags claimed/in-progress tasks whose assignee's agent has
// gone offline per HealthMonitor's classification — work nobody is coming
// back to finish. Reuses health.Classify directly against the roster
// rather than duplicating liveness logic here.
func orphanedTasks(tasks []*store.Task, agents []*store.Agent) []string {
	byID := make(map[string]*store.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	thresholds := health.DefaultThresholds()
	now := time.Now().UTC()

	var out []string
	for _, t := range tasks {
		if t.Status != store.TaskClaimed && t.Status != store.TaskInProgress {
			continue
		}
		if t.Assignee == "" {
			continue
		}
		agent, ok := byID[t.Assignee]
		if !ok {
			continue
		}
		if health.Classify(agent.LastHeartbeat, now, thresholds) == health.Offline {
			out = append(out, t.ID)
		}
	}
	return out
}
