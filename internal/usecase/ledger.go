package usecase

import (
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agentorg/internal/domain"
)

// Ledger owns the lifecycle of approval requests for gated inter-persona data
// flows. All state lives in one mutex-guarded map; transitions are atomic with
// respect to concurrent chat turns, so a second caller racing a transition
// observes a no-op. Requests are never expired or deleted.
type Ledger struct {
	mu       sync.Mutex
	requests map[string]*domain.ApprovalRequest
	logger   *slog.Logger
}

// NewLedger creates an empty approval ledger.
func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{
		requests: make(map[string]*domain.ApprovalRequest),
		logger:   logger,
	}
}

func newApprovalID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Create registers a new pending request carrying the target persona's
// already-computed result as its stored payload. The payload is set here,
// exactly once, and never rewritten.
func (l *Ledger) Create(sourceAgent, targetAgent, dataType, sensitivityReason, conversationID, ask, payload string) *domain.ApprovalRequest {
	req := &domain.ApprovalRequest{
		ID:                newApprovalID(),
		SourceAgent:       sourceAgent,
		TargetAgent:       targetAgent,
		DataType:          dataType,
		SensitivityReason: sensitivityReason,
		ConversationID:    conversationID,
		Ask:               ask,
		Status:            domain.ApprovalPending,
		CreatedAt:         time.Now().UTC(),
		StoredPayload:     payload,
	}

	l.mu.Lock()
	l.requests[req.ID] = req
	l.mu.Unlock()

	l.logger.Info("approval request created",
		"approval_id", req.ID,
		"source", sourceAgent,
		"target", targetAgent,
		"data_type", dataType,
	)
	return req
}

// Get returns a copy of the request, or nil if the id is unknown.
func (l *Ledger) Get(id string) *domain.ApprovalRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[id]
	if !ok {
		return nil
	}
	cp := *req
	return &cp
}

// Approve transitions pending -> approved. Any other current status leaves the
// request unchanged (the copy still reflects it). Returns nil for unknown ids.
func (l *Ledger) Approve(id string) *domain.ApprovalRequest {
	req, _ := l.transition(id, domain.ApprovalPending, domain.ApprovalApproved, true)
	return req
}

// Deny transitions pending -> denied, symmetric to Approve.
func (l *Ledger) Deny(id string) *domain.ApprovalRequest {
	req, _ := l.transition(id, domain.ApprovalPending, domain.ApprovalDenied, true)
	return req
}

// Fulfill transitions approved -> fulfilled and reports whether this call
// performed the transition. Callers release the stored payload only on a true
// report, so racing fulfills of the same request release it exactly once.
// No resolvedAt update; the request was already resolved when it was approved.
func (l *Ledger) Fulfill(id string) (*domain.ApprovalRequest, bool) {
	return l.transition(id, domain.ApprovalApproved, domain.ApprovalFulfilled, false)
}

// transition performs the from -> to status change atomically and reports
// whether this call made it. A request in any other state is left unchanged.
func (l *Ledger) transition(id string, from, to domain.ApprovalStatus, stampResolved bool) (*domain.ApprovalRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[id]
	if !ok {
		return nil, false
	}
	transitioned := req.Status == from
	if transitioned {
		req.Status = to
		if stampResolved {
			now := time.Now().UTC()
			req.ResolvedAt = &now
		}
		l.logger.Info("approval request transitioned",
			"approval_id", id,
			"from", string(from),
			"to", string(to),
		)
	}
	cp := *req
	return &cp, transitioned
}

// ListByStatus returns payload-free summaries, oldest first. An empty status
// returns everything; an unknown status matches nothing.
func (l *Ledger) ListByStatus(status domain.ApprovalStatus) []domain.ApprovalRecord {
	l.mu.Lock()
	records := make([]domain.ApprovalRecord, 0, len(l.requests))
	for _, req := range l.requests {
		if status != "" && req.Status != status {
			continue
		}
		records = append(records, req.Record())
	}
	l.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}
