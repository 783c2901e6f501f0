package nats

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServerConfig holds configuration for the embedded NATS server
type EmbeddedServerConfig struct {
	Port          int    // Port to listen on
	WebSocketPort int    // WebSocket port to listen on (0 to disable)
	JetStream     bool   // Enable JetStream
	DataDir       string // Data directory for JetStream storage
}

// EmbeddedServer wraps the NATS server this coordinator runs in-process so
// agents and AgentRunner can reach it without a separate broker deployment.
// It also tracks agent presence — the last heartbeat subject seen per
// agent — as a cheap secondary signal alongside the store's own
// last-heartbeat column, since a heartbeat that reaches the NATS bridge at
// all proves the transport is live even before HealthMonitor next polls.
type EmbeddedServer struct {
	server     *server.Server
	config     EmbeddedServerConfig
	mu         sync.RWMutex
	running    bool
	agentSeen  map[string]time.Time // agentID -> last heartbeat timestamp
}

// NewEmbeddedServer creates a new embedded NATS server instance
func NewEmbeddedServer(config EmbeddedServerConfig) (*EmbeddedServer, error) {
	if config.Port <= 0 {
		config.Port = 4222 // Default NATS port
	}

	if config.JetStream && config.DataDir == "" {
		return nil, fmt.Errorf("DataDir is required when JetStream is enabled")
	}

	return &EmbeddedServer{
		config:    config,
		agentSeen: make(map[string]time.Time),
	}, nil
}

// Start starts the embedded NATS server, with JetStream when config.JetStream is set
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("server already running")
	}

	// Create server options
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: e.config.Port,
		// Disable logging to stdout by default for cleaner test output
		NoLog:  true,
		NoSigs: true,
		MaxPayload: 1024 * 1024, // 1MB max payload
	}

	// Configure WebSocket if enabled
	if e.config.WebSocketPort > 0 {
		opts.Websocket = server.WebsocketOpts{
			Host:  "127.0.0.1",
			Port:  e.config.WebSocketPort,
			NoTLS: true, // localhost doesn't need TLS
		}
	}

	// Configure JetStream if enabled
	if e.config.JetStream {
		opts.JetStream = true
		opts.StoreDir = e.config.DataDir
	}

	// Create and start the server
	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}

	e.server = ns

	// Start server in background
	go ns.Start()

	// Wait for server to be ready
	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("server not ready for connections")
	}

	e.running = true

	log.Printf("[NATS-SERVER] Listening on nats://127.0.0.1:%d", e.config.Port)

	// Log WebSocket status
	if e.config.WebSocketPort > 0 {
		log.Printf("[NATS-SERVER] WebSocket enabled on ws://127.0.0.1:%d", e.config.WebSocketPort)
	}

	return nil
}

// Shutdown gracefully shuts down the NATS server
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.server == nil {
		return
	}

	e.server.Shutdown()

	// Wait for shutdown to complete
	e.server.WaitForShutdown()

	e.running = false
	e.server = nil
}

// URL returns the connection URL for the NATS server
func (e *EmbeddedServer) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return fmt.Sprintf("nats://127.0.0.1:%d", e.config.Port)
}

// WebSocketURL returns the WebSocket connection URL for the NATS server
// Returns empty string if WebSocket is not enabled
func (e *EmbeddedServer) WebSocketURL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.config.WebSocketPort <= 0 {
		return ""
	}

	return fmt.Sprintf("ws://127.0.0.1:%d", e.config.WebSocketPort)
}

// IsRunning returns whether the server is currently running
func (e *EmbeddedServer) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.running
}

// RecordAgentSeen notes that agentID's heartbeat reached the NATS bridge at
// the current time. The coordinator daemon calls this from its heartbeat
// handler alongside the store's own Heartbeat update.
func (e *EmbeddedServer) RecordAgentSeen(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.agentSeen[agentID] = time.Now()
}

// ForgetAgent drops an agent's presence record, e.g. once it has been
// reaped for missing too many heartbeats.
func (e *EmbeddedServer) ForgetAgent(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.agentSeen, agentID)
}

// AgentLastSeen returns the last time agentID's heartbeat reached the
// bridge, and false if none has.
func (e *EmbeddedServer) AgentLastSeen(agentID string) (time.Time, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.agentSeen[agentID]
	return t, ok
}

// ConnectedAgents returns every agent ID the bridge has seen a heartbeat
// from, in no particular order.
func (e *EmbeddedServer) ConnectedAgents() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	agents := make([]string, 0, len(e.agentSeen))
	for agentID := range e.agentSeen {
		agents = append(agents, agentID)
	}
	return agents
}
