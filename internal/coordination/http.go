package coordination

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coordinator-core/coordinator/internal/events"
)

// RPCRequest is a JSON-RPC 2.0 request envelope, used for tools/list and
// tools/call.
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// RPCResponse is the corresponding reply envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a JSON-RPC error code/message pair.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server mounts the coordination tool surface, the project status
// resource, a websocket hub for live event notifications, and a
// Prometheus metrics endpoint.
type Server struct {
	coordinator *Coordinator
	tools       *ToolRegistry
	hub         *Hub
	metrics     *Metrics
}

// NewServer builds a Server over coordinator, registering every tool in
// the tool surface's table.
func NewServer(coordinator *Coordinator) *Server {
	reg := NewToolRegistry()
	RegisterTools(reg, coordinator)
	s := &Server{
		coordinator: coordinator,
		tools:       reg,
		hub:         NewHub(),
		metrics:     NewMetrics(),
	}
	go s.hub.Run()
	if bus := coordinator.Bus(); bus != nil {
		go s.pumpEvents(bus)
	}
	return s
}

// pumpEvents forwards every coordination event onto the websocket hub so
// connected observers see task claims, lock changes, and completions live.
func (s *Server) pumpEvents(bus *events.Bus) {
	ch := bus.Subscribe("all", nil)
	for ev := range ch {
		s.hub.BroadcastJSON(ev)
	}
}

// RegisterRoutes wires the coordination surface onto r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/projects/{projectId}/rpc", s.handleRPC).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectId}/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]
	agentID := r.Header.Get("X-Agent-ID")
	if agentID == "" {
		agentID = r.URL.Query().Get("agent_id")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeRPCError(w, nil, -32700, "parse error")
		return
	}

	switch req.Method {
	case "tools/list":
		s.writeRPCResult(w, req.ID, map[string]interface{}{"tools": s.tools.List()})
	case "tools/call":
		s.handleToolsCall(w, projectID, agentID, &req)
	default:
		s.writeRPCError(w, req.ID, -32601, "method not found: "+req.Method)
	}
}

func (s *Server) handleToolsCall(w http.ResponseWriter, projectID, agentID string, req *RPCRequest) {
	params, _ := req.Params.(map[string]interface{})
	toolName, _ := params["name"].(string)
	toolArgs, _ := params["arguments"].(map[string]interface{})
	if toolName == "" {
		s.writeRPCError(w, req.ID, -32602, "tool name required")
		return
	}

	s.metrics.toolCalls.WithLabelValues(toolName).Inc()
	result := s.tools.Execute(toolName, projectID, agentID, toolArgs)
	if result.IsError {
		s.metrics.toolErrors.WithLabelValues(toolName).Inc()
	}
	s.writeRPCResult(w, req.ID, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]
	status, err := s.coordinator.ProjectStatus(projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, status)
}

func (s *Server) writeRPCResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeRPCError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("coordination: encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
