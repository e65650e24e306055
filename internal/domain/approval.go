package domain

import "time"

// ApprovalStatus is the lifecycle state of an approval request.
// Transitions are monotonic: pending -> approved|denied, approved -> fulfilled.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalDenied    ApprovalStatus = "denied"
	ApprovalFulfilled ApprovalStatus = "fulfilled"
)

// Valid reports whether s is a known status value.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalDenied, ApprovalFulfilled:
		return true
	}
	return false
}

// ApprovalRequest tracks one gated inter-persona data request. StoredPayload
// holds the target persona's already-computed result; it is set exactly once
// at creation and released to the requester only at fulfillment.
type ApprovalRequest struct {
	ID                string
	SourceAgent       string
	TargetAgent       string
	DataType          string
	SensitivityReason string
	ConversationID    string
	Ask               string
	Status            ApprovalStatus
	CreatedAt         time.Time
	ResolvedAt        *time.Time
	StoredPayload     string
}

// Record returns the external view of the request. The stored payload is
// deliberately excluded; it is only released via request fulfillment.
func (r *ApprovalRequest) Record() ApprovalRecord {
	rec := ApprovalRecord{
		ID:                r.ID,
		SourceAgent:       r.SourceAgent,
		TargetAgent:       r.TargetAgent,
		DataType:          r.DataType,
		SensitivityReason: r.SensitivityReason,
		Status:            r.Status,
		CreatedAt:         r.CreatedAt,
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		rec.ResolvedAt = &t
	}
	return rec
}

// ApprovalRecord is the payload-free summary returned by list, approve and
// deny operations.
type ApprovalRecord struct {
	ID                string         `json:"id"`
	SourceAgent       string         `json:"source_agent"`
	TargetAgent       string         `json:"target_agent"`
	DataType          string         `json:"data_type"`
	SensitivityReason string         `json:"sensitivity_reason"`
	Status            ApprovalStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
}

// FulfillmentStatus classifies the result of releasing an approved request.
type FulfillmentStatus string

const (
	FulfillmentDone     FulfillmentStatus = "fulfilled"
	FulfillmentNotFound FulfillmentStatus = "not_found"
)

// FulfillmentResult carries the released payload for an approved request, or
// the current status plus a diagnostic when the release is not possible.
type FulfillmentResult struct {
	Status   string `json:"status"`
	Data     string `json:"data,omitempty"`
	DataType string `json:"data_type,omitempty"`
	Message  string `json:"message,omitempty"`
}
