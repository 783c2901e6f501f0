package health

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coordinator-core/coordinator/internal/events"
	"github.com/coordinator-core/coordinator/internal/store"
)

const (
	// DefaultScanIntervalMs is how often HealthMonitor re-classifies every
	// tracked project's agents.
	DefaultScanIntervalMs = 30_000

	webhookAlertDedupWindow = 5 * time.Minute
	webhookTimeout          = 5 * time.Second
)

// AgentLister is the store surface HealthMonitor scans. Satisfied by
// *store.Store.
type AgentLister interface {
	ListAgents(projectID string) ([]*store.Agent, error)
	UpdateAgentStatus(agentID, status string) error
}

// Config configures a Monitor.
type Config struct {
	Store          AgentLister
	Bus            *events.Bus // optional; transitions are published when set
	ProjectIDs     func() []string
	Thresholds     Thresholds
	ScanIntervalMs int
	WebhookURL     string // optional; critical/offline transitions POST here
	HTTPClient     *http.Client
	Logger         *log.Logger
}

// Monitor periodically classifies agent liveness and emits transition
// events. It tracks the previous classification per agent
// so identical classifications across scans never re-emit.
type Monitor struct {
	store      AgentLister
	bus        *events.Bus
	projectIDs func() []string
	thresholds Thresholds
	interval   time.Duration
	webhookURL string
	httpClient *http.Client
	logger     *log.Logger

	mu       sync.Mutex
	previous map[string]Classification // agentID -> last classification
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	alertMu      sync.Mutex
	recentAlerts map[string]time.Time // dedup key -> last-sent
}

// NewMonitor builds a Monitor from cfg, filling in default thresholds for any
// zero-valued field.
func NewMonitor(cfg Config) *Monitor {
	thresholds := cfg.Thresholds.normalized()
	interval := time.Duration(cfg.ScanIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = DefaultScanIntervalMs * time.Millisecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: webhookTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		store:        cfg.Store,
		bus:          cfg.Bus,
		projectIDs:   cfg.ProjectIDs,
		thresholds:   thresholds,
		interval:     interval,
		webhookURL:   cfg.WebhookURL,
		httpClient:   httpClient,
		logger:       logger,
		previous:     make(map[string]Classification),
		recentAlerts: make(map[string]time.Time),
	}
}

// Start runs an immediate scan, then schedules periodic scans every
// interval. Calling Start while already running is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.mu.Unlock()

	m.scanAll()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				m.scanAll()
			}
		}
	}()
}

// Stop cancels the periodic scan and blocks until the scan loop exits.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()
	<-doneCh
}

// RunOnce triggers an immediate, synchronous scan of every tracked project
// outside the periodic schedule, for manual triggering and tests.
func (m *Monitor) RunOnce() {
	m.scanAll()
}

func (m *Monitor) scanAll() {
	if m.projectIDs == nil {
		return
	}
	for _, projectID := range m.projectIDs() {
		m.scanProject(projectID)
	}
}

// scanProject classifies every agent in projectID and emits events for
// classifications that differ from the previous scan.
func (m *Monitor) scanProject(projectID string) {
	agents, err := m.store.ListAgents(projectID)
	if err != nil {
		m.logger.Printf("[HEALTH] list agents for project %s: %v", projectID, err)
		return
	}

	now := time.Now().UTC()
	for _, agent := range agents {
		current := Classify(agent.LastHeartbeat, now, m.thresholds)

		m.mu.Lock()
		previous, seen := m.previous[agent.ID]
		m.previous[agent.ID] = current
		m.mu.Unlock()

		if seen && previous == current {
			continue
		}
		m.handleTransition(projectID, agent, previous, seen, current, now)
	}
}

func (m *Monitor) handleTransition(projectID string, agent *store.Agent, previous Classification, hadPrevious bool, current Classification, now time.Time) {
	if current == Offline && agent.Status != store.AgentOffline {
		if err := m.store.UpdateAgentStatus(agent.ID, store.AgentOffline); err != nil {
			m.logger.Printf("[HEALTH] mark agent %s offline: %v", agent.ID, err)
		}
	}

	m.publish(projectID, agent, previous, hadPrevious, current, now)

	if current == Critical || current == Offline {
		m.sendWebhookAlert(projectID, agent, current, now)
	}
}

func (m *Monitor) publish(projectID string, agent *store.Agent, previous Classification, hadPrevious bool, current Classification, now time.Time) {
	if m.bus == nil {
		return
	}
	var eventType events.EventType
	switch current {
	case Healthy:
		eventType = events.EventHealthHealthy
	case Warning:
		eventType = events.EventHealthWarning
	case Critical:
		eventType = events.EventHealthCritical
	case Offline:
		eventType = events.EventHealthOffline
	default:
		return
	}

	var previousStatus interface{}
	if hadPrevious {
		previousStatus = string(previous)
	}
	var secondsSince interface{}
	if s := SecondsSinceHeartbeat(agent.LastHeartbeat, now); s != nil {
		secondsSince = *s
	}

	payload := map[string]interface{}{
		"agentId":               agent.ID,
		"previousStatus":        previousStatus,
		"currentStatus":         string(current),
		"secondsSinceHeartbeat": secondsSince,
	}
	m.bus.Publish(events.NewEvent(eventType, "health-monitor", projectID, events.PriorityNormal, payload))
}

// sendWebhookAlert POSTs an agent_health_alert payload, deduped per
// (agentID, classification) within a 5-minute window. Webhook failures are
// logged only — they must never affect classification.
func (m *Monitor) sendWebhookAlert(projectID string, agent *store.Agent, current Classification, now time.Time) {
	if m.webhookURL == "" {
		return
	}
	key := agent.ID + ":" + string(current)
	if !m.shouldAlert(key, now) {
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"type":      "agent_health_alert",
		"agentId":   agent.ID,
		"projectId": projectID,
		"status":    string(current),
		"at":        now,
	})
	if err != nil {
		m.logger.Printf("[HEALTH] marshal webhook alert for agent %s: %v", agent.ID, err)
		return
	}

	go func() {
		resp, err := m.httpClient.Post(m.webhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			m.logger.Printf("[HEALTH] webhook alert for agent %s failed: %v", agent.ID, err)
			return
		}
		resp.Body.Close()
	}()
}

// shouldAlert reports whether key has not fired within the dedup window,
// recording it if so.
func (m *Monitor) shouldAlert(key string, now time.Time) bool {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()

	for k, t := range m.recentAlerts {
		if now.Sub(t) > webhookAlertDedupWindow {
			delete(m.recentAlerts, k)
		}
	}
	if _, exists := m.recentAlerts[key]; exists {
		return false
	}
	m.recentAlerts[key] = now
	return true
}

// Classification returns the last-scanned classification for agentID, and
// whether one has been recorded yet.
func (m *Monitor) Classification(agentID string) (Classification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.previous[agentID]
	return c, ok
}
