package external

import (
	"fmt"
	"strings"

	"github.com/coordinator-core/coordinator/internal/events"
)

// shouldNotify applies the priority/event-type filter every webhook and
// email notifier in this package uses: notify only at or above minPriority
// (0 disables the check, since PriorityLow is the highest int value — see
// events.PriorityLow), and only for the configured event types (empty
// means all).
func shouldNotify(minPriority int, eventTypes []events.EventType, event events.Event) bool {
	if minPriority > 0 && event.Priority > minPriority {
		return false
	}
	if len(eventTypes) == 0 {
		return true
	}
	for _, t := range eventTypes {
		if event.Type == t {
			return true
		}
	}
	return false
}

// priorityString renders an events.Priority* constant for display.
func priorityString(priority int) string {
	switch priority {
	case events.PriorityCritical:
		return "Critical"
	case events.PriorityHigh:
		return "High"
	case events.PriorityNormal:
		return "Normal"
	case events.PriorityLow:
		return "Low"
	default:
		return fmt.Sprintf("Unknown (%d)", priority)
	}
}

// eventLabel turns a coordinator EventType ("task:claimed",
// "conflict:flagged") into a human-readable label ("Task Claimed",
// "Conflict Flagged") for notification titles.
func eventLabel(t events.EventType) string {
	parts := strings.Split(string(t), ":")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
