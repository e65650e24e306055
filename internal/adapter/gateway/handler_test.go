package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorg/internal/domain"
	"agentorg/internal/usecase"
	"agentorg/internal/usecase/eventbus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gatedExecutor makes the source persona request pnl from the accountant,
// which the canned resolver gates behind an approval policy. Target runs
// (nil dispatcher) return the raw payload.
type gatedExecutor struct{}

func (gatedExecutor) Execute(ctx context.Context, spec *domain.PersonaSpec, message string, dispatcher domain.RequestDispatcher) (string, error) {
	if dispatcher == nil {
		return "PNL DATA", nil
	}
	outcome := dispatcher.RouteNestedRequest(ctx, "accountant", "pnl", message)
	return outcome.Message, nil
}

type cannedResolver struct{ decision domain.RouteDecision }

func (c cannedResolver) Resolve(_ context.Context, _, _ string) (domain.RouteDecision, error) {
	return c.decision, nil
}

func newTestServer(t *testing.T) (*Server, *usecase.Orchestrator) {
	t.Helper()
	logger := testLogger()
	personas := []domain.PersonaSpec{
		{Slug: "finance-manager", Name: "fm_agent", Role: "Finance Manager", SystemPrompt: "secret prompt", Tools: []string{"request_from_agent"}, Routing: []string{"accountant"}},
		{Slug: "accountant", Name: "acct_agent", Role: "Accountant", DataAccess: []string{"pnl"}},
	}
	resolver := cannedResolver{decision: domain.RouteDecision{
		Allowed:   true,
		OwnerSlug: "accountant",
		Policy:    &domain.ApprovalPolicy{Level: "ceo", Reason: "sensitive financial data"},
	}}
	orch := usecase.NewOrchestrator(
		usecase.NewRegistry(personas, logger),
		usecase.NewLedger(logger),
		usecase.NewGate(resolver, logger),
		eventbus.NewBroadcaster(logger),
		gatedExecutor{},
		logger,
	)
	return NewServer(orch, "127.0.0.1:0", 50*time.Millisecond, logger), orch
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.routes(), http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestChatValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	routes := srv.routes()

	rec := doJSON(t, routes, http.MethodPost, "/api/chat", map[string]string{"persona": "finance-manager"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatUnknownPersonaStillOK(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.routes(), http.MethodPost, "/api/chat", map[string]string{
		"message": "hi", "persona": "nobody",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[domain.ChatResult](t, rec)
	assert.Equal(t, "system", result.Agent)
	assert.Equal(t, "Unknown persona: nobody", result.Response)
}

func TestListAgentsHidesSystemPrompt(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.routes(), http.MethodGet, "/api/agents", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret prompt")

	agents := decodeBody[[]agentView](t, rec)
	require.Len(t, agents, 2)
	assert.Equal(t, "accountant", agents[0].Slug)
	assert.Equal(t, "finance-manager", agents[1].Slug)
}

func TestGetAgent(t *testing.T) {
	srv, _ := newTestServer(t)
	routes := srv.routes()

	rec := doJSON(t, routes, http.MethodGet, "/api/agents/accountant", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	agent := decodeBody[agentView](t, rec)
	assert.Equal(t, "Accountant", agent.Role)
	assert.Equal(t, []string{"pnl"}, agent.Permissions.DataAccess)

	rec = doJSON(t, routes, http.MethodGet, "/api/agents/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePermissions(t *testing.T) {
	srv, _ := newTestServer(t)
	routes := srv.routes()

	rec := doJSON(t, routes, http.MethodPut, "/api/agents/accountant/permissions", domain.Permissions{
		DataAccess: []string{"pnl", "budget"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	agent := decodeBody[agentView](t, rec)
	assert.Equal(t, []string{"pnl", "budget"}, agent.Permissions.DataAccess)

	rec = doJSON(t, routes, http.MethodPut, "/api/agents/nobody/permissions", domain.Permissions{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// startGatedChat drives one chat turn that parks a request in the ledger and
// returns its approval id.
func startGatedChat(t *testing.T, routes http.Handler, orch *usecase.Orchestrator) string {
	t.Helper()
	rec := doJSON(t, routes, http.MethodPost, "/api/chat", map[string]string{
		"message": "get me the pnl", "persona": "finance-manager", "conversation_id": "conv-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	pending := orch.Ledger().ListByStatus(domain.ApprovalPending)
	require.Len(t, pending, 1)
	return pending[0].ID
}

func TestApprovalLifecycleOverHTTP(t *testing.T) {
	srv, orch := newTestServer(t)
	routes := srv.routes()
	id := startGatedChat(t, routes, orch)

	// Fulfill before approval must not release the payload.
	rec := doJSON(t, routes, http.MethodPost, "/api/approvals/"+id+"/fulfill", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[domain.FulfillmentResult](t, rec)
	assert.Equal(t, string(domain.ApprovalPending), result.Status)
	assert.Empty(t, result.Data)

	rec = doJSON(t, routes, http.MethodPost, "/api/approvals/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	record := decodeBody[domain.ApprovalRecord](t, rec)
	assert.Equal(t, domain.ApprovalApproved, record.Status)
	assert.NotNil(t, record.ResolvedAt)
	assert.NotContains(t, rec.Body.String(), "PNL DATA", "records never carry the payload")

	rec = doJSON(t, routes, http.MethodPost, "/api/approvals/"+id+"/fulfill", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result = decodeBody[domain.FulfillmentResult](t, rec)
	assert.Equal(t, string(domain.FulfillmentDone), result.Status)
	assert.Equal(t, "PNL DATA", result.Data)
	assert.Equal(t, "pnl", result.DataType)

	// Re-fulfill reports the terminal status without data.
	rec = doJSON(t, routes, http.MethodPost, "/api/approvals/"+id+"/fulfill", nil)
	result = decodeBody[domain.FulfillmentResult](t, rec)
	assert.Equal(t, string(domain.ApprovalFulfilled), result.Status)
	assert.Empty(t, result.Data)
}

func TestDenyOverHTTP(t *testing.T) {
	srv, orch := newTestServer(t)
	routes := srv.routes()
	id := startGatedChat(t, routes, orch)

	rec := doJSON(t, routes, http.MethodPost, "/api/approvals/"+id+"/deny", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	record := decodeBody[domain.ApprovalRecord](t, rec)
	assert.Equal(t, domain.ApprovalDenied, record.Status)

	// Denied requests are not releasable.
	rec = doJSON(t, routes, http.MethodPost, "/api/approvals/"+id+"/fulfill", nil)
	result := decodeBody[domain.FulfillmentResult](t, rec)
	assert.Equal(t, string(domain.ApprovalDenied), result.Status)
	assert.Empty(t, result.Data)
}

func TestApprovalNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	routes := srv.routes()

	for _, action := range []string{"approve", "deny", "fulfill"} {
		rec := doJSON(t, routes, http.MethodPost, "/api/approvals/nope/"+action, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, action)
	}
}

func TestListApprovals(t *testing.T) {
	srv, orch := newTestServer(t)
	routes := srv.routes()
	id := startGatedChat(t, routes, orch)

	rec := doJSON(t, routes, http.MethodGet, "/api/approvals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decodeBody[[]domain.ApprovalRecord](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, "finance-manager", records[0].SourceAgent)
	assert.Equal(t, "accountant", records[0].TargetAgent)

	rec = doJSON(t, routes, http.MethodGet, "/api/approvals?status=denied", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.ApprovalRecord](t, rec), 0)

	rec = doJSON(t, routes, http.MethodGet, "/api/approvals?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprovalEventReachesSubscribers(t *testing.T) {
	srv, orch := newTestServer(t)
	routes := srv.routes()
	id := startGatedChat(t, routes, orch)

	sub := orch.Broadcaster().Subscribe("conv-1")
	defer orch.Broadcaster().Unsubscribe("conv-1", sub)

	doJSON(t, routes, http.MethodPost, "/api/approvals/"+id+"/approve", nil)

	select {
	case event := <-sub.C:
		assert.Equal(t, domain.EventApproved, event.Type)
		assert.Equal(t, id, event.ApprovalID)
	default:
		t.Fatal("expected an approved event on the conversation feed")
	}
}

func TestStreamRequiresConversationID(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.routes(), http.MethodGet, "/api/chat/stream", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamDeliversEventsAndKeepalives(t *testing.T) {
	srv, orch := newTestServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/chat/stream?conversation_id=conv-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Headers arrived, so the subscription exists.
	orch.Broadcaster().Emit("conv-1", domain.Event{Type: domain.EventThinking, Agent: "finance-manager"})

	reader := bufio.NewReader(resp.Body)
	event := readSSEEvent(t, reader)
	assert.Equal(t, domain.EventThinking, event.Type)
	assert.False(t, event.Timestamp.IsZero())

	// With nothing emitted, the 50ms keepalive fires next.
	event = readSSEEvent(t, reader)
	assert.Equal(t, domain.EventKeepalive, event.Type)
}

func readSSEEvent(t *testing.T, reader *bufio.Reader) domain.Event {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, fmt.Sprintf("unexpected SSE line %q", line))
		var event domain.Event
		require.NoError(t, json.Unmarshal([]byte(payload), &event))
		return event
	}
}
