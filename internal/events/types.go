package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of a coordinator lifecycle event.
type EventType string

// Event type constants cover every transition a subscriber needs to
// observe: sandbox lifecycle, agent health classification, task state
// changes, and lock contention.
const (
	EventSandboxCreated  EventType = "sandbox:created"
	EventSandboxStarted  EventType = "sandbox:started"
	EventSandboxStopped  EventType = "sandbox:stopped"
	EventSandboxFailed   EventType = "sandbox:failed"
	EventSandboxTimeout  EventType = "sandbox:timeout"
	EventHealthHealthy   EventType = "status:healthy"
	EventHealthWarning   EventType = "status:warning"
	EventHealthCritical  EventType = "status:critical"
	EventHealthOffline   EventType = "status:offline"
	EventTaskClaimed     EventType = "task:claimed"
	EventTaskReassigned  EventType = "task:reassigned"
	EventTaskCompleted   EventType = "task:completed"
	EventLockAcquired    EventType = "lock:acquired"
	EventLockReleased    EventType = "lock:released"
	EventConflictFlagged EventType = "conflict:flagged"
)

// Priority constants for events.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event represents a system event that can be published and subscribed to.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewEvent creates a new event with auto-generated ID and timestamp.
func NewEvent(eventType EventType, source, target string, priority int, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// AllEventTypes returns all defined event types.
func AllEventTypes() []EventType {
	return []EventType{
		EventSandboxCreated, EventSandboxStarted, EventSandboxStopped, EventSandboxFailed, EventSandboxTimeout,
		EventHealthHealthy, EventHealthWarning, EventHealthCritical, EventHealthOffline,
		EventTaskClaimed, EventTaskReassigned, EventTaskCompleted,
		EventLockAcquired, EventLockReleased, EventConflictFlagged,
	}
}
