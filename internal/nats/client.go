package nats

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	nc "github.com/nats-io/nats.go"
)

// Message represents a NATS message with subject, reply, and data
type Message struct {
	Subject string
	Reply   string
	Data    []byte
}

// Client wraps a NATS connection with the subject/message vocabulary this
// coordinator speaks: heartbeats, tool calls, runner commands, and access
// request lifecycle messages (see messages.go). The generic Publish/
// Subscribe/Request primitives below remain exported for handler.go's
// subscription loop and for any transport not yet given a typed wrapper.
type Client struct {
	conn *nc.Conn
}

// NewClient creates a new NATS client with reconnect handling
func NewClient(url string) (*Client, error) {
	opts := []nc.Option{
		nc.ReconnectWait(2 * time.Second),
		nc.MaxReconnects(-1), // Reconnect indefinitely
		nc.DisconnectErrHandler(func(conn *nc.Conn, err error) {
			if err != nil {
				log.Printf("[NATS-CLIENT] Disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			log.Printf("[NATS-CLIENT] Reconnected to %s", conn.ConnectedUrl())
		}),
		nc.ClosedHandler(func(conn *nc.Conn) {
			log.Printf("[NATS-CLIENT] Connection closed")
		}),
	}

	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Publish publishes data to a subject
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishJSON publishes a JSON-encoded message to a subject
func (c *Client) PublishJSON(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return c.Publish(subject, data)
}

// Subscribe creates an asynchronous subscription
func (c *Client) Subscribe(subject string, handler func(*Message)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(&Message{
			Subject: msg.Subject,
			Reply:   msg.Reply,
			Data:    msg.Data,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Request sends a request and waits for a reply
func (c *Client) Request(subject string, data []byte, timeout time.Duration) (*Message, error) {
	msg, err := c.conn.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", subject, err)
	}
	return &Message{
		Subject: msg.Subject,
		Reply:   msg.Reply,
		Data:    msg.Data,
	}, nil
}

// RequestJSON sends a JSON request and decodes the JSON response
func (c *Client) RequestJSON(subject string, req interface{}, resp interface{}, timeout time.Duration) error {
	reqData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	msg, err := c.Request(subject, reqData, timeout)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// QueueSubscribe creates a load-balanced queue subscription
func (c *Client) QueueSubscribe(subject, queue string, handler func(*Message)) (*nc.Subscription, error) {
	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nc.Msg) {
		handler(&Message{
			Subject: msg.Subject,
			Reply:   msg.Reply,
			Data:    msg.Data,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Flush flushes the buffered data to the server
func (c *Client) Flush() error {
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// RawConn returns the underlying NATS connection for advanced use cases
func (c *Client) RawConn() *nc.Conn {
	return c.conn
}

// PublishHeartbeat publishes an agent's heartbeat to its per-agent subject.
func (c *Client) PublishHeartbeat(hb HeartbeatMessage) error {
	return c.PublishJSON(fmt.Sprintf(SubjectAgentHeartbeat, hb.AgentID), hb)
}

// PublishStatus publishes an agent's status update to its per-agent subject.
func (c *Client) PublishStatus(sm StatusMessage) error {
	return c.PublishJSON(fmt.Sprintf(SubjectAgentStatus, sm.AgentID), sm)
}

// PublishRunnerStatus publishes AgentRunner's status to SubjectRunnerStatus.
func (c *Client) PublishRunnerStatus(rs RunnerStatusMessage) error {
	return c.PublishJSON(SubjectRunnerStatus, rs)
}

// PublishRunnerCommand sends a command to AgentRunner.
func (c *Client) PublishRunnerCommand(cmd RunnerCommandMessage) error {
	return c.PublishJSON(SubjectRunnerCommands, cmd)
}

// PublishAccessRequestCreate announces a newly filed access request.
func (c *Client) PublishAccessRequestCreate(msg AccessRequestCreateMessage) error {
	return c.PublishJSON(SubjectAccessRequestCreate, msg)
}

// PublishAccessRequestForward forwards a pending access request to human
// reviewers.
func (c *Client) PublishAccessRequestForward(msg AccessRequestForwardMessage) error {
	return c.PublishJSON(SubjectAccessRequestForward, msg)
}

// PublishAccessResponse publishes a reviewer's decision to the
// request-specific response subject.
func (c *Client) PublishAccessResponse(resp AccessResponseMessage) error {
	return c.PublishJSON(fmt.Sprintf(SubjectAccessResponse, resp.ID), resp)
}

// PublishSystemBroadcast announces a system-wide event.
func (c *Client) PublishSystemBroadcast(msg SystemBroadcastMessage) error {
	return c.PublishJSON(SubjectSystemBroadcast, msg)
}

// RequestToolCall performs a coordination tool call over NATS, for agents
// that hold a live connection rather than calling the HTTP RPC surface.
func (c *Client) RequestToolCall(req ToolCallRequest, timeout time.Duration) (*ToolCallResponse, error) {
	var resp ToolCallResponse
	if err := c.RequestJSON(SubjectToolCall, req, &resp, timeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubscribeAccessResponse subscribes to the response subject for a single
// access request, invoking handler once a reviewer decides.
func (c *Client) SubscribeAccessResponse(requestID string, handler func(AccessResponseMessage)) (*nc.Subscription, error) {
	subject := fmt.Sprintf(SubjectAccessResponse, requestID)
	return c.Subscribe(subject, func(msg *Message) {
		var resp AccessResponseMessage
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			log.Printf("[NATS-CLIENT] Invalid access response on %s: %v", subject, err)
			return
		}
		handler(resp)
	})
}
