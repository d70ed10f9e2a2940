package models

// CommandRequest is published on the command_requests queue when a command is
// relayed through an intermediary service instead of a direct session.
type CommandRequest struct {
	CallID  string         `json:"call_id"`
	AgentID string         `json:"agent_id"`
	Payload CommandPayload `json:"payload"`
}

// CommandResult is consumed from the command_results queue.
type CommandResult struct {
	CallID string `json:"call_id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
