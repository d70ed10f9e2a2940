package models

import (
	"encoding/json"
)

// Command message names carried in the frame payload
const (
	MessageGetNamespaces = "get-namespaces"
	MessageGetPods       = "get-pods"
	MessageTailLogs      = "tail-logs"
	MessageHeartbeat     = "heartbeat"
)

// Frame is the outbound WebSocket envelope sent to an agent:
// { "call_id": "...", "payload": { "message": "get-pods", ... } }
type Frame struct {
	CallID  string         `json:"call_id"`
	Payload CommandPayload `json:"payload"`
}

// CommandPayload carries the command name plus command-specific fields.
type CommandPayload struct {
	Message   string `json:"message"`
	Namespace string `json:"namespace,omitempty"`
	Pod       string `json:"pod,omitempty"`
	Container string `json:"container,omitempty"`
	Lines     int    `json:"lines,omitempty"`
}

// InboundFrame is the decoded shape of any frame received from an agent.
// A frame with Result or Error set is a reply to an outstanding call; a frame
// with a Payload is an unsolicited event (currently only heartbeats).
type InboundFrame struct {
	CallID  string          `json:"call_id"`
	Result  string          `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventPayload is the decoded payload of an unsolicited inbound frame.
type EventPayload struct {
	Message string `json:"message"`
}

// IsReply reports whether the frame answers an outstanding call.
func (f *InboundFrame) IsReply() bool {
	return f.CallID != "" && (f.Result != "" || f.Error != "")
}

// Typed command results as the agent encodes them in the reply's result string

type NamespacesResult struct {
	Namespaces []string `json:"namespaces"`
}

type PodsResult struct {
	Namespace string   `json:"namespace"`
	Pods      []string `json:"pods"`
}

type LogsResult struct {
	Namespace string   `json:"namespace"`
	Pod       string   `json:"pod"`
	Container string   `json:"container,omitempty"`
	Lines     []string `json:"lines"`
}
