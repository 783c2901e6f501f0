package nats

import "time"

// Subject pattern constants for NATS messaging
const (
	// SubjectAgentHeartbeat is the pattern for agent heartbeat messages
	// Use fmt.Sprintf(SubjectAgentHeartbeat, agentID) to create specific subjects
	SubjectAgentHeartbeat = "agent.%s.heartbeat"

	// SubjectAgentStatus is the pattern for agent status updates
	SubjectAgentStatus = "agent.%s.status"

	// SubjectAgentCommand is the pattern for commands sent to specific agents
	SubjectAgentCommand = "agent.%s.command"

	// SubjectAgentShutdown is the pattern for agent shutdown requests
	SubjectAgentShutdown = "agent.%s.shutdown"

	// SubjectAllHeartbeats subscribes to all agent heartbeats
	SubjectAllHeartbeats = "agent.*.heartbeat"

	// SubjectAllStatus subscribes to all agent status updates
	SubjectAllStatus = "agent.*.status"

	// SubjectToolCall is used for coordination tool-call requests, an
	// alternative transport to the HTTP RPC surface for agents that already
	// hold a NATS connection.
	SubjectToolCall = "tools.call"

	// SubjectRunnerStatus is used for AgentRunner status broadcasts
	// (the agents it has running and the operation it is currently performing).
	SubjectRunnerStatus = "runner.status"

	// SubjectRunnerCommands is used for coordination-originated commands to
	// AgentRunner (spawn_agent, stop_agent, stop_all).
	SubjectRunnerCommands = "runner.commands"

	// SubjectObserverState is used for coordination state snapshots pushed
	// to connected observers, mirroring the websocket hub's broadcast.
	SubjectObserverState = "observer.state"

	// SubjectObserverAlert is used for alert messages pushed to observers
	// (health transitions, budget thresholds, lock conflicts).
	SubjectObserverAlert = "observer.alert"

	// SubjectSystemBroadcast is used for system-wide announcements
	SubjectSystemBroadcast = "system.broadcast"

	// SubjectAccessRequestCreate is used when an agent files an access
	// request via request_access.
	SubjectAccessRequestCreate = "access.request.create"

	// SubjectAccessRequestForward is used when the coordinator forwards a
	// pending access request to human reviewers.
	SubjectAccessRequestForward = "access.request.forward"

	// SubjectAccessResponse is the pattern for a reviewer's decision.
	// Use fmt.Sprintf(SubjectAccessResponse, requestID) to create specific subjects
	SubjectAccessResponse = "access.response.%s"
)

// HeartbeatMessage represents an agent heartbeat message
type HeartbeatMessage struct {
	AgentID     string    `json:"agent_id"`
	ProjectID   string    `json:"project_id"`
	SandboxID   string    `json:"sandbox_id,omitempty"`
	Status      string    `json:"status"`
	CurrentTask string    `json:"current_task,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// StatusMessage represents an agent status update
type StatusMessage struct {
	AgentID   string    `json:"agent_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandMessage represents a command sent to an agent
type CommandMessage struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// ShutdownMessage represents a shutdown request or notification
type ShutdownMessage struct {
	Reason   string `json:"reason"`
	Approved bool   `json:"approved"`
	Force    bool   `json:"force"`
}

// ToolCallRequest represents a request to execute a coordination tool
type ToolCallRequest struct {
	RequestID string                 `json:"request_id"`
	ProjectID string                 `json:"project_id"`
	AgentID   string                 `json:"agent_id"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolCallResponse represents the response from a tool execution
type ToolCallResponse struct {
	RequestID string      `json:"request_id"`
	Success   bool        `json:"success"`
	Result    interface{} `json:"result"`
	Error     string      `json:"error,omitempty"`
}

// RunnerStatusMessage represents AgentRunner's status update
type RunnerStatusMessage struct {
	Status         string    `json:"status"` // idle, busy, error
	RunningAgents  int       `json:"running_agents"`
	CurrentOp      string    `json:"current_op,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// RunnerCommandMessage represents commands sent to AgentRunner from the
// coordinator
type RunnerCommandMessage struct {
	Type    string                 `json:"type"` // spawn_agent, stop_agent, stop_all
	Payload map[string]interface{} `json:"payload"`
	From    string                 `json:"from"` // client ID of sender
}

// AccessRequestCreateMessage represents an agent filing a request_access
// call
type AccessRequestCreateMessage struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	AgentID       string    `json:"agent_id"`
	AgentName     string    `json:"agent_name"`
	RequestedRole string    `json:"requested_role"`
	Timestamp     time.Time `json:"timestamp"`
}

// AccessRequestForwardMessage represents the coordinator forwarding a
// pending access request to human reviewers
type AccessRequestForwardMessage struct {
	ID            string    `json:"id"`
	AgentID       string    `json:"agent_id"`
	RequestedRole string    `json:"requested_role"`
	QueuePosition int       `json:"queue_position"`
	Timestamp     time.Time `json:"timestamp"`
}

// AccessResponseMessage represents a reviewer's decision on an access
// request
type AccessResponseMessage struct {
	ID        string    `json:"id"`
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	From      string    `json:"from"` // "human" or client ID
	Timestamp time.Time `json:"timestamp"`
}

// SystemBroadcastMessage represents system-wide announcements
type SystemBroadcastMessage struct {
	Type      string                 `json:"type"` // shutdown, sandbox_reaped, config_change
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
