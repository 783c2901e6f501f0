package notifications

import (
	"log"
	"sync"

	"github.com/coordinator-core/coordinator/internal/events"
)

// NotificationChannel is a destination the coordinator can alert through —
// Slack, Discord, email (internal/notifications/external), or any future
// integration a human reviewer or on-call agent watches.
type NotificationChannel interface {
	// Name returns the channel name
	Name() string

	// ShouldNotify checks if an event should trigger a notification on this channel
	ShouldNotify(event events.Event) bool

	// Send sends a notification to the channel
	Send(event events.Event) error
}

// Router fans bus events (sandbox failures, health transitions, conflicts —
// see internal/events/types.go) out to every registered NotificationChannel,
// so a human reviewer gets paged the same way whichever channel they watch.
type Router struct {
	channels []NotificationChannel
	mu       sync.RWMutex
}

// NewRouter creates a new notification router with the provided channels
func NewRouter(channels []NotificationChannel) *Router {
	if channels == nil {
		channels = []NotificationChannel{}
	}
	return &Router{
		channels: channels,
	}
}

// AddChannel adds a notification channel to the router
func (r *Router) AddChannel(channel NotificationChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels = append(r.channels, channel)
}

// RemoveChannel removes a notification channel by name
func (r *Router) RemoveChannel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	filtered := make([]NotificationChannel, 0, len(r.channels))
	for _, ch := range r.channels {
		if ch.Name() != name {
			filtered = append(filtered, ch)
		}
	}
	r.channels = filtered
}

// Route sends an event to all matching notification channels asynchronously.
// It returns immediately and logs per-channel failures rather than
// propagating them. The coordination daemon's event pump calls it for every
// event published on the bus.
func (r *Router) Route(event events.Event) {
	r.dispatch(event, nil)
}

// RouteWithWait routes an event and blocks until every channel has either
// sent or failed, for callers that need delivery to have at least been
// attempted before proceeding.
func (r *Router) RouteWithWait(event events.Event) {
	var wg sync.WaitGroup
	r.dispatch(event, &wg)
	wg.Wait()
}

// dispatch sends event to every registered channel that wants it, one
// goroutine per channel. When wg is non-nil each goroutine calls Add/Done
// against it so RouteWithWait can block on completion; Route passes nil and
// returns before any goroutine runs.
func (r *Router) dispatch(event events.Event, wg *sync.WaitGroup) {
	r.mu.RLock()
	channels := make([]NotificationChannel, len(r.channels))
	copy(channels, r.channels)
	r.mu.RUnlock()

	if wg != nil {
		wg.Add(len(channels))
	}

	for _, ch := range channels {
		go func(channel NotificationChannel) {
			if wg != nil {
				defer wg.Done()
			}

			if !channel.ShouldNotify(event) {
				return
			}

			if err := channel.Send(event); err != nil {
				log.Printf("[NOTIFY-ROUTER] failed to send event %s to channel %s: %v", event.ID, channel.Name(), err)
			}
		}(ch)
	}
}

// GetChannels returns a list of all registered channel names
func (r *Router) GetChannels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.Name()
	}
	return names
}
