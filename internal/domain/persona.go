package domain

import "context"

// PersonaSpec describes a named conversational role: its instructions,
// model, allowed tools, the data types it owns or may request, and the
// persona slugs it may route requests to.
type PersonaSpec struct {
	Slug         string   `json:"slug" yaml:"slug"`
	Name         string   `json:"name" yaml:"name"`
	Role         string   `json:"role" yaml:"role"`
	Description  string   `json:"description" yaml:"description"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	SystemPrompt string   `json:"-" yaml:"system_prompt"`
	Tools        []string `json:"tools" yaml:"tools"`
	DataAccess   []string `json:"data_access" yaml:"data_access"`
	Routing      []string `json:"routing" yaml:"routing"`
}

// Permissions is the editable view of a persona's access configuration.
type Permissions struct {
	DataAccess []string `json:"dataAccess"`
	Tools      []string `json:"tools"`
	Routing    []string `json:"routing"`
}

// Permissions returns the editable permission block for the spec.
func (s *PersonaSpec) Permissions() Permissions {
	return Permissions{
		DataAccess: s.DataAccess,
		Tools:      s.Tools,
		Routing:    s.Routing,
	}
}

// ApprovalPolicy is a rule attached to a data type requiring sign-off by a
// higher authority before the requester may see the result.
type ApprovalPolicy struct {
	Level  string `json:"level"`
	Reason string `json:"reason"`
}

// RouteDecision is the answer to "can source request dataType, who owns it,
// and does it need approval".
type RouteDecision struct {
	Allowed   bool
	OwnerSlug string
	Policy    *ApprovalPolicy // nil when no approval is required
}

// PermissionResolver answers routing questions against the permission graph.
// Implementations may fail; callers decide the fallback policy.
type PermissionResolver interface {
	Resolve(ctx context.Context, sourceSlug, dataType string) (RouteDecision, error)
}

// RequestStatus classifies the outcome of a nested inter-persona request.
type RequestStatus string

const (
	RequestSuccess         RequestStatus = "success"
	RequestDenied          RequestStatus = "denied"
	RequestError           RequestStatus = "error"
	RequestPendingApproval RequestStatus = "pending_approval"
)

// RequestOutcome is what a persona receives back from a nested data request.
// For pending approvals the data stays behind in the approval ledger and only
// the approval id crosses back.
type RequestOutcome struct {
	Status     RequestStatus `json:"status"`
	Message    string        `json:"message,omitempty"`
	Data       string        `json:"data,omitempty"`
	ApprovalID string        `json:"approval_id,omitempty"`
	DataType   string        `json:"data_type,omitempty"`
}

// RequestDispatcher is the capability handed to a persona execution so it can
// issue inter-persona data requests. The call blocks until the request is
// resolved or known to be pending approval.
type RequestDispatcher interface {
	RouteNestedRequest(ctx context.Context, targetSlug, dataType, ask string) RequestOutcome
}

// Executor turns a persona's instructions plus a user message into a text
// response. It must tolerate arbitrary latency and return an error on failure.
type Executor interface {
	Execute(ctx context.Context, spec *PersonaSpec, message string, dispatcher RequestDispatcher) (string, error)
}

// ChatResult is the terminal result of one chat turn.
type ChatResult struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Agent          string `json:"agent"`
	TraceID        string `json:"trace_id,omitempty"`
}
