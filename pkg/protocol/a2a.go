package protocol

import "encoding/json"

// Negotiation roles carried in task metadata. A task sent by the requesting
// side is tagged RoleInitiator; the counterpart answers as RoleResponder.
const (
	RoleInitiator = "initiator"
	RoleResponder = "responder"
	RoleUser      = "user"
)

// MetadataRoleKey is the metadata field naming the sender's negotiation role.
const MetadataRoleKey = "agent_role"

// TaskSendParams are the parameters of a tasks/send call.
type TaskSendParams struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	Message   Message           `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Role returns the sender's negotiation role, defaulting to RoleUser.
func (p TaskSendParams) Role() string {
	if r, ok := p.Metadata[MetadataRoleKey]; ok && r != "" {
		return r
	}
	return RoleUser
}

// TaskQueryParams are the parameters of a tasks/get call.
// HistoryLength, when positive, trims the returned history to the last N entries.
type TaskQueryParams struct {
	ID            string `json:"id"`
	HistoryLength int    `json:"historyLength,omitempty"`
}

// Request is the JSON-RPC-shaped envelope peers exchange.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Methods accepted on the task endpoint.
const (
	MethodSendTask = "tasks/send"
	MethodGetTask  = "tasks/get"
)

// ErrorBody carries a structured error in a Response.
type ErrorBody struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// Response is the envelope returned for every Request.
// Exactly one of Result or Error is set.
type Response struct {
	ID     string     `json:"id"`
	Result *Task      `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}
