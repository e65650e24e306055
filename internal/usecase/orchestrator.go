package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agentorg/internal/domain"
	"agentorg/internal/infra/tracer"
	"agentorg/internal/usecase/eventbus"
)

// Orchestrator is the routing engine: it accepts chat turns, executes the
// addressed persona, intercepts nested inter-persona data requests, consults
// the permission gate and the approval ledger, and emits the conversation
// timeline through the broadcaster.
//
// All collaborators are injected at construction; nothing here is global, so
// tests run against isolated instances.
type Orchestrator struct {
	registry    *Registry
	ledger      *Ledger
	gate        *Gate
	broadcaster *eventbus.Broadcaster
	executor    domain.Executor
	logger      *slog.Logger
}

// NewOrchestrator wires the routing engine.
func NewOrchestrator(
	registry *Registry,
	ledger *Ledger,
	gate *Gate,
	broadcaster *eventbus.Broadcaster,
	executor domain.Executor,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		ledger:      ledger,
		gate:        gate,
		broadcaster: broadcaster,
		executor:    executor,
		logger:      logger,
	}
}

func newConversationID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// HandleChat runs one chat turn against the named persona. Failures never
// propagate to the caller: an unknown persona or a failed execution is
// surfaced as an error-shaped response text so one bad turn cannot take the
// service down. A missing conversation id is assigned here.
func (o *Orchestrator) HandleChat(ctx context.Context, message, personaSlug, conversationID string) domain.ChatResult {
	if conversationID == "" {
		conversationID = newConversationID()
	}

	ctx, span := tracer.StartSpan(ctx, "chat.turn",
		trace.WithAttributes(
			attribute.String("persona", personaSlug),
			attribute.String("conversation_id", conversationID),
		),
	)
	defer span.End()
	traceID := span.SpanContext().TraceID().String()

	spec, err := o.registry.Get(personaSlug)
	if err != nil {
		return domain.ChatResult{
			Response:       fmt.Sprintf("Unknown persona: %s", personaSlug),
			ConversationID: conversationID,
			Agent:          "system",
			TraceID:        traceID,
		}
	}

	o.emit(conversationID, domain.Event{
		Type:    domain.EventThinking,
		Agent:   spec.Slug,
		Message: fmt.Sprintf("%s is thinking...", spec.Name),
		TraceID: traceID,
	})

	dispatcher := &turnDispatcher{
		orch:           o,
		source:         spec,
		conversationID: conversationID,
		traceID:        traceID,
	}

	responseText, err := o.executor.Execute(ctx, spec, message, dispatcher)
	if err != nil {
		o.logger.Error("persona execution failed", "persona", spec.Slug, "error", err)
		tracer.RecordError(span, err)
		o.emit(conversationID, domain.Event{
			Type:    domain.EventError,
			Agent:   spec.Slug,
			Message: err.Error(),
			TraceID: traceID,
		})
		responseText = fmt.Sprintf("I encountered an error: %v", err)
	} else {
		tracer.SetOK(span)
	}

	o.emit(conversationID, domain.Event{
		Type:    domain.EventResponding,
		Agent:   spec.Slug,
		Message: "Response ready",
		TraceID: traceID,
	})

	return domain.ChatResult{
		Response:       responseText,
		ConversationID: conversationID,
		Agent:          spec.Slug,
		TraceID:        traceID,
	}
}

// FulfillApprovedRequest releases the stored payload of an approved request
// and transitions it to fulfilled. The ledger decides both atomically, so
// concurrent fulfills of the same request release the payload exactly once.
// Unknown ids report not_found; any other state reports its current status
// with a diagnostic. A fulfilled request is not re-releasable.
func (o *Orchestrator) FulfillApprovedRequest(approvalID string) domain.FulfillmentResult {
	req, released := o.ledger.Fulfill(approvalID)
	if req == nil {
		return domain.FulfillmentResult{Status: string(domain.FulfillmentNotFound)}
	}
	if !released {
		return domain.FulfillmentResult{
			Status:  string(req.Status),
			Message: "Request is not in approved state",
		}
	}

	return domain.FulfillmentResult{
		Status:   string(domain.FulfillmentDone),
		Data:     req.StoredPayload,
		DataType: req.DataType,
	}
}

// Broadcaster exposes the event broadcaster for transports that stream the
// timeline or emit control-plane events (approve/deny notifications).
func (o *Orchestrator) Broadcaster() *eventbus.Broadcaster { return o.broadcaster }

// Ledger exposes the approval ledger for control-plane transports.
func (o *Orchestrator) Ledger() *Ledger { return o.ledger }

// Registry exposes the persona registry for config transports.
func (o *Orchestrator) Registry() *Registry { return o.registry }

func (o *Orchestrator) emit(conversationID string, event domain.Event) {
	o.broadcaster.Emit(conversationID, event)
}

// turnDispatcher is the per-turn capability object handed into persona
// execution. It closes over the source persona and conversation so nested
// requests need no shared mutable state.
type turnDispatcher struct {
	orch           *Orchestrator
	source         *domain.PersonaSpec
	conversationID string
	traceID        string
}

// RouteNestedRequest runs the request state machine for one inter-persona
// data request:
//
//	permission_check -> denied | routing -> target execution ->
//	awaiting_approval | fulfilled
//
// The call blocks the requesting persona until the outcome is known; a gated
// result suspends as pending_approval and only the approval id crosses back.
func (d *turnDispatcher) RouteNestedRequest(ctx context.Context, targetSlug, dataType, ask string) domain.RequestOutcome {
	o := d.orch

	o.emit(d.conversationID, domain.Event{
		Type:    domain.EventPermissionCheck,
		Agent:   d.source.Slug,
		Target:  targetSlug,
		Message: fmt.Sprintf("Checking if %s can access %s", d.source.Slug, dataType),
		TraceID: d.traceID,
	})

	decision := o.gate.Resolve(ctx, d.source.Slug, dataType, targetSlug)

	if !decision.Allowed {
		o.emit(d.conversationID, domain.Event{
			Type:    domain.EventDenied,
			Agent:   d.source.Slug,
			Message: fmt.Sprintf("%s does not have permission to access %s", d.source.Slug, dataType),
			TraceID: d.traceID,
		})
		return domain.RequestOutcome{
			Status:  domain.RequestDenied,
			Message: fmt.Sprintf("Permission denied: %s cannot access %s", d.source.Slug, dataType),
		}
	}

	o.emit(d.conversationID, domain.Event{
		Type:    domain.EventRouting,
		Agent:   d.source.Slug,
		Target:  decision.OwnerSlug,
		Message: fmt.Sprintf("Routing request to %s for %s", decision.OwnerSlug, dataType),
		TraceID: d.traceID,
	})

	targetSpec, err := o.registry.Get(decision.OwnerSlug)
	if err != nil {
		return domain.RequestOutcome{
			Status:  domain.RequestError,
			Message: fmt.Sprintf("Unknown agent: %s", decision.OwnerSlug),
		}
	}

	prompt := fmt.Sprintf("Please provide the %s data. Specific request: %s", dataType, ask)
	// The target persona gets no dispatcher: one hop per nested request.
	targetResponse, err := o.executor.Execute(ctx, targetSpec, prompt, nil)
	if err != nil {
		o.logger.Error("target persona failed",
			"source", d.source.Slug,
			"target", targetSpec.Slug,
			"error", err,
		)
		return domain.RequestOutcome{Status: domain.RequestError, Message: err.Error()}
	}

	if decision.Policy != nil {
		o.emit(d.conversationID, domain.Event{
			Type:    domain.EventAwaitingApproval,
			Agent:   d.source.Slug,
			Target:  targetSpec.Slug,
			Message: fmt.Sprintf("Approval required: %s", decision.Policy.Reason),
			TraceID: d.traceID,
		})

		req := o.ledger.Create(
			d.source.Slug,
			targetSpec.Slug,
			dataType,
			decision.Policy.Reason,
			d.conversationID,
			ask,
			targetResponse,
		)

		return domain.RequestOutcome{
			Status:     domain.RequestPendingApproval,
			ApprovalID: req.ID,
			Message: fmt.Sprintf(
				"This data requires approval. Reason: %s. Approval ID: %s. The request is pending review.",
				decision.Policy.Reason, req.ID,
			),
		}
	}

	o.emit(d.conversationID, domain.Event{
		Type:    domain.EventFulfilled,
		Agent:   d.source.Slug,
		Target:  targetSpec.Slug,
		Message: fmt.Sprintf("Data delivered from %s", targetSpec.Slug),
		TraceID: d.traceID,
	})

	return domain.RequestOutcome{Status: domain.RequestSuccess, Data: targetResponse}
}
