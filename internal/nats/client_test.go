package nats

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// startTestServer starts a bare NATS server (no JetStream, no coordinator
// wiring) on a random port, for tests that only need a broker behind the
// Client API.
func startTestServer(t *testing.T) (*server.Server, string) {
	opts := &server.Options{
		Host:           "127.0.0.1",
		Port:           -1, // Random port
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	return ns, ns.ClientURL()
}

// TestClient_PublishHeartbeat_DeliversToPerAgentSubject verifies
// PublishHeartbeat lands on the per-agent subject a subscriber to that
// exact agent's heartbeats would use.
func TestClient_PublishHeartbeat_DeliversToPerAgentSubject(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	agent, err := NewClient(url)
	if err != nil {
		t.Fatalf("agent client: %v", err)
	}
	defer agent.Close()

	monitor, err := NewClient(url)
	if err != nil {
		t.Fatalf("monitor client: %v", err)
	}
	defer monitor.Close()

	received := make(chan HeartbeatMessage, 1)
	_, err = monitor.Subscribe(SubjectAllHeartbeats, func(msg *Message) {
		var hb HeartbeatMessage
		if err := json.Unmarshal(msg.Data, &hb); err == nil {
			received <- hb
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	want := HeartbeatMessage{
		AgentID:     "agent-claude-1",
		ProjectID:   "proj-9",
		Status:      "working",
		CurrentTask: "implement retry logic",
		Timestamp:   time.Now(),
	}
	if err := agent.PublishHeartbeat(want); err != nil {
		t.Fatalf("PublishHeartbeat: %v", err)
	}
	agent.Flush()

	select {
	case got := <-received:
		if got.AgentID != want.AgentID || got.ProjectID != want.ProjectID || got.CurrentTask != want.CurrentTask {
			t.Errorf("got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
}

// TestClient_RequestToolCall_RoundTrips drives a tool-call request/reply
// the way an agent connected over NATS (rather than the HTTP RPC surface)
// would.
func TestClient_RequestToolCall_RoundTrips(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	worker, err := NewClient(url)
	if err != nil {
		t.Fatalf("worker client: %v", err)
	}
	defer worker.Close()

	agent, err := NewClient(url)
	if err != nil {
		t.Fatalf("agent client: %v", err)
	}
	defer agent.Close()

	_, err = worker.Subscribe(SubjectToolCall, func(msg *Message) {
		var req ToolCallRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		resp := ToolCallResponse{
			RequestID: req.RequestID,
			Success:   true,
			Result:    map[string]interface{}{"claimed": req.Tool == "claim_task"},
		}
		worker.PublishJSON(msg.Reply, resp)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	req := ToolCallRequest{
		RequestID: "req-77",
		ProjectID: "proj-1",
		AgentID:   "agent-claude-1",
		Tool:      "claim_task",
		Arguments: map[string]interface{}{"taskId": "task-3"},
	}
	resp, err := agent.RequestToolCall(req, 2*time.Second)
	if err != nil {
		t.Fatalf("RequestToolCall: %v", err)
	}
	if !resp.Success || resp.RequestID != "req-77" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

// TestClient_AccessRequestForwardAndResponse_RoundTrips drives the
// request_access review flow: the coordinator forwards a pending request
// to reviewers, and a reviewer's decision reaches the subject the
// requester is listening on.
func TestClient_AccessRequestForwardAndResponse_RoundTrips(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	coordinator, err := NewClient(url)
	if err != nil {
		t.Fatalf("coordinator client: %v", err)
	}
	defer coordinator.Close()

	reviewer, err := NewClient(url)
	if err != nil {
		t.Fatalf("reviewer client: %v", err)
	}
	defer reviewer.Close()

	requester, err := NewClient(url)
	if err != nil {
		t.Fatalf("requester client: %v", err)
	}
	defer requester.Close()

	const requestID = "access-req-42"

	forwarded := make(chan AccessRequestForwardMessage, 1)
	_, err = reviewer.Subscribe(SubjectAccessRequestForward, func(msg *Message) {
		var fwd AccessRequestForwardMessage
		if err := json.Unmarshal(msg.Data, &fwd); err == nil {
			forwarded <- fwd
		}
	})
	if err != nil {
		t.Fatalf("subscribe forward: %v", err)
	}

	var decided sync.WaitGroup
	decided.Add(1)
	var gotResponse AccessResponseMessage
	if _, err := requester.SubscribeAccessResponse(requestID, func(resp AccessResponseMessage) {
		gotResponse = resp
		decided.Done()
	}); err != nil {
		t.Fatalf("SubscribeAccessResponse: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := coordinator.PublishAccessRequestForward(AccessRequestForwardMessage{
		ID:            requestID,
		AgentID:       "agent-gemini-2",
		RequestedRole: "write:src/payments",
		QueuePosition: 1,
		Timestamp:     time.Now(),
	}); err != nil {
		t.Fatalf("PublishAccessRequestForward: %v", err)
	}

	select {
	case fwd := <-forwarded:
		if fwd.ID != requestID || fwd.AgentID != "agent-gemini-2" {
			t.Errorf("unexpected forward: %+v", fwd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forward")
	}

	if err := reviewer.PublishAccessResponse(AccessResponseMessage{
		ID:       requestID,
		Approved: true,
		From:     "human",
	}); err != nil {
		t.Fatalf("PublishAccessResponse: %v", err)
	}

	waitOrTimeout(t, &decided, 2*time.Second)
	if !gotResponse.Approved || gotResponse.ID != requestID {
		t.Errorf("unexpected response: %+v", gotResponse)
	}
}

// TestClient_PublishRunnerCommand_DeliversToRunnerSubject verifies a
// spawn/stop command issued by the coordinator reaches AgentRunner.
func TestClient_PublishRunnerCommand_DeliversToRunnerSubject(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	coordinator, err := NewClient(url)
	if err != nil {
		t.Fatalf("coordinator client: %v", err)
	}
	defer coordinator.Close()

	agentRunner, err := NewClient(url)
	if err != nil {
		t.Fatalf("runner client: %v", err)
	}
	defer agentRunner.Close()

	received := make(chan RunnerCommandMessage, 1)
	_, err = agentRunner.Subscribe(SubjectRunnerCommands, func(msg *Message) {
		var cmd RunnerCommandMessage
		if err := json.Unmarshal(msg.Data, &cmd); err == nil {
			received <- cmd
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	cmd := RunnerCommandMessage{
		Type:    "spawn_agent",
		Payload: map[string]interface{}{"agentType": "claude", "projectId": "proj-1"},
		From:    "coordinatord",
	}
	if err := coordinator.PublishRunnerCommand(cmd); err != nil {
		t.Fatalf("PublishRunnerCommand: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != "spawn_agent" || got.From != "coordinatord" {
			t.Errorf("unexpected command: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runner command")
	}
}

// TestClient_IsConnected verifies connection state tracking across Close.
func TestClient_IsConnected(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	client, err := NewClient(url)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !client.IsConnected() {
		t.Error("client should be connected")
	}
	client.Close()
	_ = client.IsConnected() // must not panic post-Close
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for group")
	}
}
