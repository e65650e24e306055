package domain

import "time"

// EventType identifies a step on the conversation timeline.
type EventType string

const (
	EventThinking         EventType = "thinking"
	EventPermissionCheck  EventType = "permission_check"
	EventDenied           EventType = "denied"
	EventRouting          EventType = "routing"
	EventAwaitingApproval EventType = "awaiting_approval"
	EventFulfilled        EventType = "fulfilled"
	EventResponding       EventType = "responding"
	EventApproved         EventType = "approved"
	EventError            EventType = "error"

	// EventKeepalive is synthesized by the stream transport for idle
	// subscribers; the orchestrator never emits it.
	EventKeepalive EventType = "keepalive"
)

// Event is one immutable entry on a conversation's live timeline. Events are
// advisory and UI-facing; the approval ledger and the chat response are the
// systems of record.
type Event struct {
	Type       EventType `json:"type"`
	Agent      string    `json:"agent"`
	Timestamp  time.Time `json:"timestamp"`
	Target     string    `json:"target,omitempty"`
	Message    string    `json:"message,omitempty"`
	ApprovalID string    `json:"approval_id,omitempty"`
	Data       string    `json:"data,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
}
