package coordination

import (
	"errors"
	"fmt"
	"time"

	"github.com/coordinator-core/coordinator/internal/events"
	"github.com/coordinator-core/coordinator/internal/health"
	"github.com/coordinator-core/coordinator/internal/store"
)

// RegisterTools populates reg with every tool the coordination surface exposes, each
// delegating to c.
func RegisterTools(reg *ToolRegistry, c *Coordinator) {
	reg.Register(ToolDefinition{
		Name:        "list_tasks",
		Description: "List tasks in the project, optionally filtered by status, priority, or assignee.",
		Parameters: map[string]ParameterDef{
			"status":     {Type: "string", Description: "Filter by task status"},
			"priority":   {Type: "string", Description: "Filter by task priority"},
			"assignedTo": {Type: "string", Description: "Filter by assignee agent id"},
		},
		Handler: c.listTasks,
	})

	reg.Register(ToolDefinition{
		Name:        "get_task",
		Description: "Fetch a single task by id.",
		Parameters: map[string]ParameterDef{
			"taskId": {Type: "string", Required: true},
		},
		Handler: c.getTask,
	})

	reg.Register(ToolDefinition{
		Name:        "claim_task",
		Description: "Claim a pending task and receive its onboarding context bundle.",
		Parameters: map[string]ParameterDef{
			"taskId":    {Type: "string", Required: true},
			"agentId":   {Type: "string", Required: true},
			"agentType": {Type: "string", Required: true},
		},
		Handler: c.claimTask,
	})

	reg.Register(ToolDefinition{
		Name:        "update_task",
		Description: "Update a task's status, notes, token usage, or blockers.",
		Parameters: map[string]ParameterDef{
			"taskId":     {Type: "string", Required: true},
			"status":     {Type: "string", Required: true},
			"notes":      {Type: "string"},
			"tokensUsed": {Type: "number"},
			"blockedBy":  {Type: "array"},
		},
		Handler: c.updateTask,
	})

	reg.Register(ToolDefinition{
		Name:        "lock_file",
		Description: "Acquire an exclusive lock on a file path for a bounded TTL.",
		Parameters: map[string]ParameterDef{
			"filePath":   {Type: "string", Required: true},
			"agentId":    {Type: "string", Required: true},
			"ttlSeconds": {Type: "number", Required: true},
		},
		Handler: c.lockFile,
	})

	reg.Register(ToolDefinition{
		Name:        "unlock_file",
		Description: "Release a file lock held by agentId.",
		Parameters: map[string]ParameterDef{
			"filePath": {Type: "string", Required: true},
			"agentId":  {Type: "string", Required: true},
		},
		Handler: c.unlockFile,
	})

	reg.Register(ToolDefinition{
		Name:        "check_locks",
		Description: "Report the lock state of a set of file paths.",
		Parameters: map[string]ParameterDef{
			"filePaths": {Type: "array", Required: true},
		},
		Handler: c.checkLocks,
	})

	reg.Register(ToolDefinition{
		Name:        "report_usage",
		Description: "Record token usage for an agent and return the updated budget status.",
		Parameters: map[string]ParameterDef{
			"agentId":      {Type: "string", Required: true},
			"tokensInput":  {Type: "number", Required: true},
			"tokensOutput": {Type: "number", Required: true},
			"taskId":       {Type: "string"},
		},
		Handler: c.reportUsage,
	})

	reg.Register(ToolDefinition{
		Name:        "get_budget",
		Description: "Return the project's current spend, total, and percent used.",
		Parameters:  map[string]ParameterDef{},
		Handler:     c.getBudget,
	})

	reg.Register(ToolDefinition{
		Name:        "heartbeat",
		Description: "Record a liveness heartbeat for an agent, optionally updating its status.",
		Parameters: map[string]ParameterDef{
			"agentId": {Type: "string", Required: true},
			"status":  {Type: "string"},
		},
		Handler: c.heartbeat,
	})

	reg.Register(ToolDefinition{
		Name:        "list_agents",
		Description: "List every agent registered to the project with its live heartbeat timestamp.",
		Parameters:  map[string]ParameterDef{},
		Handler:     c.listAgents,
	})

	reg.Register(ToolDefinition{
		Name:        "request_access",
		Description: "Request a role in the project; idempotent on an existing pending request.",
		Parameters: map[string]ParameterDef{
			"agentId":       {Type: "string", Required: true},
			"agentName":     {Type: "string"},
			"agentType":     {Type: "string"},
			"capabilities":  {Type: "array"},
			"requestedRole": {Type: "string", Required: true},
		},
		Handler: c.requestAccess,
	})

	reg.Register(ToolDefinition{
		Name:        "check_access",
		Description: "Report an agent's access status: APPROVED, PENDING, DENIED, EXPIRED, or none.",
		Parameters: map[string]ParameterDef{
			"agentId": {Type: "string", Required: true},
		},
		Handler: c.checkAccess,
	})

	reg.Register(ToolDefinition{
		Name:        "refresh_context",
		Description: "Re-render the context bundle for an agent's current task.",
		Parameters: map[string]ParameterDef{
			"agentId":   {Type: "string", Required: true},
			"agentType": {Type: "string", Required: true},
		},
		Handler: c.refreshContext,
	})

	reg.Register(ToolDefinition{
		Name:        "get_onboarding_config",
		Description: "Return the project's onboarding configuration, or \"none\" if unset.",
		Parameters:  map[string]ParameterDef{},
		Handler:     c.getOnboardingConfig,
	})

	reg.Register(ToolDefinition{
		Name:        "get_zones",
		Description: "List the project's file ownership zones.",
		Parameters:  map[string]ParameterDef{},
		Handler:     c.getZones,
	})

	reg.Register(ToolDefinition{
		Name:        "health_status",
		Description: "Classify every agent's liveness from its last heartbeat.",
		Parameters:  map[string]ParameterDef{},
		Handler:     c.healthStatus,
	})
}

func (c *Coordinator) listTasks(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	filter := store.TaskFilter{
		Status:     paramString(params, "status"),
		Priority:   paramString(params, "priority"),
		AssignedTo: paramString(params, "assignedTo"),
	}
	return c.store.ListTasks(projectID, filter)
}

func (c *Coordinator) getTask(_, _ string, params map[string]interface{}) (interface{}, error) {
	return c.store.GetTask(paramString(params, "taskId"))
}

func (c *Coordinator) claimTask(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	taskID := paramString(params, "taskId")
	agentID := paramString(params, "agentId")

	ok, err := c.store.ClaimTask(taskID, agentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: task %s is not claimable by %s", store.ErrConflict, taskID, agentID)
	}
	if err := c.store.RecordClaim(projectID, agentID, taskID); err != nil {
		return nil, err
	}
	c.publish(events.EventTaskClaimed, projectID, map[string]interface{}{"taskId": taskID, "agentId": agentID})

	bundle, err := c.renderBundleForTask(projectID, agentID, taskID)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (c *Coordinator) renderBundleForTask(projectID, agentID, taskID string) (string, error) {
	task, err := c.store.GetTask(taskID)
	if err != nil {
		return "", err
	}
	project, err := c.store.GetProject(projectID)
	if err != nil {
		return "", err
	}
	ob, err := c.store.GetOnboarding(projectID)
	if err != nil {
		if !isNotFound(err) {
			return "", err
		}
		ob = &store.ProjectOnboarding{ProjectID: projectID, CheckpointEveryNTasks: 3}
	}
	allTasks, err := c.store.ListTasks(projectID, store.TaskFilter{})
	if err != nil {
		return "", err
	}
	claimCount, err := c.store.ClaimCount(projectID, agentID)
	if err != nil {
		return "", err
	}
	bundle := buildContextBundle(project, ob, task, allTasks, claimCount)
	return renderContextBundle(bundle), nil
}

func (c *Coordinator) updateTask(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	update := store.TaskUpdate{
		Status:     paramString(params, "status"),
		Notes:      paramString(params, "notes"),
		TokensUsed: paramInt64(params, "tokensUsed"),
		BlockedBy:  paramStringSlice(params, "blockedBy"),
	}
	taskID := paramString(params, "taskId")
	task, err := c.store.UpdateTask(taskID, update)
	if err != nil {
		return nil, err
	}
	if task.Status == store.TaskCompleted {
		c.publish(events.EventTaskCompleted, projectID, map[string]interface{}{"taskId": taskID})
	}
	return fmt.Sprintf("task %s updated to %s", taskID, task.Status), nil
}

func (c *Coordinator) lockFile(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	filePath := paramString(params, "filePath")
	agentID := paramString(params, "agentId")
	ttl := paramInt(params, "ttlSeconds", 0)

	acquired, err := c.store.AcquireLock(projectID, filePath, agentID, ttl)
	if err != nil {
		return nil, err
	}
	if !acquired {
		status, err := c.store.CheckLock(projectID, filePath)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"success":   false,
			"filePath":  filePath,
			"holder":    status.Holder,
			"expiresAt": status.ExpiresAt,
		}, nil
	}
	c.publish(events.EventLockAcquired, projectID, map[string]interface{}{"filePath": filePath, "agentId": agentID})
	return map[string]interface{}{"success": true, "filePath": filePath}, nil
}

func (c *Coordinator) unlockFile(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	filePath := paramString(params, "filePath")
	agentID := paramString(params, "agentId")
	if err := c.store.ReleaseLock(projectID, filePath, agentID); err != nil {
		return nil, err
	}
	c.publish(events.EventLockReleased, projectID, map[string]interface{}{"filePath": filePath, "agentId": agentID})
	return fmt.Sprintf("released lock on %s", filePath), nil
}

func (c *Coordinator) checkLocks(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	paths := paramStringSlice(params, "filePaths")
	out := make(map[string]*store.LockStatus, len(paths))
	for _, p := range paths {
		status, err := c.store.CheckLock(projectID, p)
		if err != nil {
			return nil, err
		}
		out[p] = status
	}
	return out, nil
}

func (c *Coordinator) reportUsage(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	agentID := paramString(params, "agentId")
	agent, err := c.store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	tokensIn := paramInt64(params, "tokensInput")
	tokensOut := paramInt64(params, "tokensOutput")
	costUSD := float64(tokensIn)/1_000_000*agent.InputCostPerMillion + float64(tokensOut)/1_000_000*agent.OutputCostPerMillion

	if _, err := c.store.RecordCost(store.RecordCostInput{
		ProjectID:    projectID,
		AgentID:      agentID,
		TaskID:       paramString(params, "taskId"),
		Model:        agent.Model,
		InputTokens:  tokensIn,
		OutputTokens: tokensOut,
		CostUSD:      costUSD,
	}); err != nil {
		return nil, err
	}
	return c.store.GetBudget(projectID)
}

func (c *Coordinator) getBudget(projectID, _ string, _ map[string]interface{}) (interface{}, error) {
	return c.store.GetBudget(projectID)
}

func (c *Coordinator) heartbeat(_, _ string, params map[string]interface{}) (interface{}, error) {
	agentID := paramString(params, "agentId")
	if err := c.store.Heartbeat(agentID, paramString(params, "status")); err != nil {
		return nil, err
	}
	return fmt.Sprintf("heartbeat recorded for %s", agentID), nil
}

func (c *Coordinator) listAgents(projectID, _ string, _ map[string]interface{}) (interface{}, error) {
	return c.store.ListAgents(projectID)
}

func (c *Coordinator) requestAccess(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	in := store.CreateAccessRequestInput{
		ProjectID:     projectID,
		AgentID:       paramString(params, "agentId"),
		AgentName:     paramString(params, "agentName"),
		Capabilities:  paramStringSlice(params, "capabilities"),
		RequestedRole: paramString(params, "requestedRole"),
	}
	req, err := c.store.CreateAccessRequest(in)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case store.AccessApproved:
		return map[string]interface{}{"status": "APPROVED", "requestId": req.ID}, nil
	case store.AccessDenied:
		return map[string]interface{}{"status": "DENIED", "reason": req.DenialReason}, nil
	default:
		pos, err := c.store.QueuePosition(projectID, req.ID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "PENDING", "requestId": req.ID, "queuePosition": pos}, nil
	}
}

func (c *Coordinator) checkAccess(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	agentID := paramString(params, "agentId")
	req, err := c.store.LatestAccessRequest(projectID, agentID)
	if err != nil {
		if isNotFound(err) {
			return map[string]interface{}{"status": "none"}, nil
		}
		return nil, err
	}
	switch req.Status {
	case store.AccessPending:
		pos, err := c.store.QueuePosition(projectID, req.ID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "PENDING", "queuePosition": pos}, nil
	case store.AccessApproved:
		return map[string]interface{}{"status": "APPROVED", "expiresAt": req.ExpiresAt}, nil
	case store.AccessDenied:
		return map[string]interface{}{"status": "DENIED", "reason": req.DenialReason}, nil
	case store.AccessExpired:
		return map[string]interface{}{"status": "EXPIRED"}, nil
	default:
		return map[string]interface{}{"status": "none"}, nil
	}
}

func (c *Coordinator) refreshContext(projectID, _ string, params map[string]interface{}) (interface{}, error) {
	agentID := paramString(params, "agentId")
	tasks, err := c.store.ListTasks(projectID, store.TaskFilter{AssignedTo: agentID})
	if err != nil {
		return nil, err
	}
	var current *store.Task
	for _, t := range tasks {
		if t.Status == store.TaskInProgress || t.Status == store.TaskClaimed {
			current = t
			break
		}
	}
	if current == nil {
		return nil, fmt.Errorf("%w: agent %s has no active task to refresh context for", store.ErrNotFound, agentID)
	}
	return c.renderBundleForTask(projectID, agentID, current.ID)
}

func (c *Coordinator) getOnboardingConfig(projectID, _ string, _ map[string]interface{}) (interface{}, error) {
	ob, err := c.store.GetOnboarding(projectID)
	if err != nil {
		if isNotFound(err) {
			return "none", nil
		}
		return nil, err
	}
	return ob, nil
}

func (c *Coordinator) getZones(projectID, _ string, _ map[string]interface{}) (interface{}, error) {
	ob, err := c.store.GetOnboarding(projectID)
	if err != nil {
		if isNotFound(err) {
			return []store.Zone{}, nil
		}
		return nil, err
	}
	return ob.Zones, nil
}

func (c *Coordinator) healthStatus(projectID, _ string, _ map[string]interface{}) (interface{}, error) {
	agents, err := c.store.ListAgents(projectID)
	if err != nil {
		return nil, err
	}
	thresholds := health.DefaultThresholds()
	now := time.Now().UTC()

	type row struct {
		AgentID               string                  `json:"agentId"`
		Status                health.Classification   `json:"status"`
		SecondsSinceHeartbeat *int64                  `json:"secondsSinceHeartbeat"`
	}
	out := make([]row, 0, len(agents))
	for _, a := range agents {
		out = append(out, row{
			AgentID:               a.ID,
			Status:                health.Classify(a.LastHeartbeat, now, thresholds),
			SecondsSinceHeartbeat: health.SecondsSinceHeartbeat(a.LastHeartbeat, now),
		})
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
