package store

import "time"

// Task status values. pending has no assignee; every other non-terminal
// status has exactly one.
const (
	TaskPending    = "pending"
	TaskClaimed    = "claimed"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
	TaskBlocked    = "blocked"
	TaskCancelled  = "cancelled"
)

// Task priority values, ranked critical > high > medium > low.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Agent status values.
const (
	AgentIdle    = "idle"
	AgentWorking = "working"
	AgentBlocked = "blocked"
	AgentOffline = "offline"
)

// Project conflict strategies.
const (
	ConflictStrategyLock   = "lock"
	ConflictStrategyMerge  = "merge"
	ConflictStrategyZone   = "zone"
	ConflictStrategyReview = "review"
)

// AccessRequest roles.
const (
	RoleLead        = "lead"
	RoleContributor = "contributor"
	RoleReviewer    = "reviewer"
	RoleObserver    = "observer"
)

// AccessRequest status values.
const (
	AccessPending  = "pending"
	AccessApproved = "approved"
	AccessDenied   = "denied"
	AccessExpired  = "expired"
)

// Checkpoint types.
const (
	CheckpointManual            = "manual"
	CheckpointAuto              = "auto"
	CheckpointContextExhaustion = "context_exhaustion"
)

// FileConflict resolution values.
const (
	ResolutionAccepted = "accepted"
	ResolutionRejected = "rejected"
	ResolutionMerged   = "merged"
	ResolutionWaiting  = "waiting"
)

// priorityRank orders priorities for list() default ordering: critical first.
var priorityRank = map[string]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Budget carries a project's spend tracking. Total of zero/nil means unbounded.
type Budget struct {
	Total          float64 `json:"total"`
	Spent          float64 `json:"spent"`
	Currency       string  `json:"currency"`
	AlertThreshold float64 `json:"alertThreshold"`
}

// Project is the top-level container for agents and tasks.
type Project struct {
	ID               string                 `json:"id"`
	OrganizationID   string                 `json:"organizationId"`
	Name             string                 `json:"name"`
	Slug             string                 `json:"slug"`
	RootPath         string                 `json:"rootPath,omitempty"`
	GitRemote        string                 `json:"gitRemote,omitempty"`
	GitBranch        string                 `json:"gitBranch,omitempty"`
	ConflictStrategy string                 `json:"conflictStrategy"`
	Budget           *Budget                `json:"budget,omitempty"`
	Settings         map[string]interface{} `json:"settings"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// Agent is a persistent logical worker identity bound to one project.
type Agent struct {
	ID                   string     `json:"id"`
	ProjectID            string     `json:"projectId"`
	Name                 string     `json:"name"`
	Provider             string     `json:"provider,omitempty"`
	Model                string     `json:"model,omitempty"`
	Status               string     `json:"status"`
	Capabilities         []string   `json:"capabilities"`
	InputCostPerMillion  float64    `json:"inputCostPerMillion"`
	OutputCostPerMillion float64    `json:"outputCostPerMillion"`
	Quota                *float64   `json:"quota,omitempty"`
	LastHeartbeat        *time.Time `json:"lastHeartbeat,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Task is a unit of work tracked through the lifecycle state machine
// encoded by validTaskTransitions in task.go.
type Task struct {
	ID              string                 `json:"id"`
	ProjectID       string                 `json:"projectId"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description,omitempty"`
	Status          string                 `json:"status"`
	Priority        string                 `json:"priority"`
	Assignee        string                 `json:"assignee,omitempty"`
	ClaimedAt       *time.Time             `json:"claimedAt,omitempty"`
	StartedAt       *time.Time             `json:"startedAt,omitempty"`
	CompletedAt     *time.Time             `json:"completedAt,omitempty"`
	Dependencies    []string               `json:"dependencies"`
	BlockedBy       []string               `json:"blockedBy"`
	Files           []string               `json:"files"`
	Tags            []string               `json:"tags"`
	EstimatedTokens int64                  `json:"estimatedTokens"`
	ActualTokens    int64                  `json:"actualTokens"`
	Metadata        map[string]interface{} `json:"metadata"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// FileLock grants exclusive modification rights on a path within a project.
type FileLock struct {
	ProjectID string    `json:"projectId"`
	FilePath  string    `json:"filePath"`
	Holder    string    `json:"holder"`
	LockedAt  time.Time `json:"lockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FileConflict records detected contention over a file between agents.
type FileConflict struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	FilePath   string    `json:"filePath"`
	Agents     []string  `json:"agents"`
	Strategy   string    `json:"strategy"`
	Resolution string    `json:"resolution,omitempty"`
	Resolver   string    `json:"resolver,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CostEvent is an append-only record of token usage billed to a project.
type CostEvent struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	AgentID      string    `json:"agentId"`
	TaskID       string    `json:"taskId,omitempty"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	CostUSD      float64   `json:"costUsd"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AccessRequest tracks an agent's bid to join a project at a given role.
type AccessRequest struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	AgentID        string     `json:"agentId"`
	AgentName      string     `json:"agentName,omitempty"`
	Capabilities   []string   `json:"capabilities"`
	RequestedRole  string     `json:"requestedRole"`
	Status         string     `json:"status"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	Reviewer       string     `json:"reviewer,omitempty"`
	DenialReason   string     `json:"denialReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CheckpointContext is the serialized payload of an AgentCheckpoint.
type CheckpointContext struct {
	FilesModified  []string `json:"filesModified"`
	CompletedSteps []string `json:"completedSteps"`
	NextSteps      []string `json:"nextSteps"`
	Blockers       []string `json:"blockers"`
	TokenCount     int64    `json:"tokenCount"`
}

// AgentCheckpoint is a serialized snapshot of an agent's in-flight work.
type AgentCheckpoint struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"projectId"`
	AgentID   string            `json:"agentId"`
	TaskID    string            `json:"taskId,omitempty"`
	Type      string            `json:"type"`
	Stage     string            `json:"stage,omitempty"`
	Context   CheckpointContext `json:"context"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// AgentTaskHistory is an append-only record of each claim, used to drive
// first-task detection and checkpoint cadence.
type AgentTaskHistory struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	AgentID   string    `json:"agentId"`
	TaskID    string    `json:"taskId"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// Zone is a glob-bounded ownership rule, persisted as part of a project's
// onboarding config.
type Zone struct {
	Pattern  string `json:"pattern" yaml:"pattern"`
	Owner    string `json:"owner,omitempty" yaml:"owner,omitempty"`
	ReadOnly bool   `json:"readonly,omitempty" yaml:"readonly,omitempty"`
}

// ProjectOnboarding carries the configuration surfaced in context bundles:
// welcome copy, zone ownership, and checkpoint cadence.
type ProjectOnboarding struct {
	ProjectID             string   `json:"projectId"`
	WelcomeMessage        string   `json:"welcomeMessage,omitempty"`
	ProjectGoals          []string `json:"projectGoals"`
	AgentInstructions     string   `json:"agentInstructions,omitempty"`
	StyleGuide            string   `json:"styleGuide,omitempty"`
	CheckpointRules       []string `json:"checkpointRules"`
	CheckpointEveryNTasks int      `json:"checkpointEveryNTasks"`
	AllowedPaths          []string `json:"allowedPaths"`
	DeniedPaths           []string `json:"deniedPaths"`
	Zones                 []Zone   `json:"zones"`
	AutoRefreshContext    bool     `json:"autoRefreshContext"`
}

// TaskFilter narrows ListTasks; zero values mean "don't filter on this field".
type TaskFilter struct {
	Status     string
	Priority   string
	AssignedTo string
	Limit      int
	Offset     int
}
