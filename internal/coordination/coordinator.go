package coordination

import (
	"github.com/coordinator-core/coordinator/internal/conflict"
	"github.com/coordinator-core/coordinator/internal/events"
	"github.com/coordinator-core/coordinator/internal/store"
)

// Coordinator holds the dependencies every tool handler needs. It has no
// state of its own beyond these references — all authority lives in the
// store.
type Coordinator struct {
	store *store.Store
	bus   *events.Bus
}

// NewCoordinator wires a Coordinator against the durable store and the
// event bus used to notify websocket observers and notification channels.
func NewCoordinator(st *store.Store, bus *events.Bus) *Coordinator {
	return &Coordinator{store: st, bus: bus}
}

// Bus returns the coordinator's event bus, so the HTTP server can subscribe
// its websocket hub to coordination activity.
func (c *Coordinator) Bus() *events.Bus {
	return c.bus
}

func (c *Coordinator) publish(eventType events.EventType, projectID string, payload map[string]interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.NewEvent(eventType, "coordination", projectID, events.PriorityNormal, payload))
}

// zoneManagerFor loads a project's onboarding config and builds a
// ZoneManager from its zones, or nil if no onboarding config is set.
func (c *Coordinator) zoneManagerFor(projectID string) *conflict.ZoneManager {
	ob, err := c.store.GetOnboarding(projectID)
	if err != nil {
		return nil
	}
	return conflict.NewZoneManager(ob.Zones)
}
