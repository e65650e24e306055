package usecase

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"agentorg/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger() *Ledger {
	return NewLedger(testLogger())
}

func createRequest(l *Ledger) *domain.ApprovalRequest {
	return l.Create("finance-manager", "accountant", "pnl", "sensitive", "conv-1", "need the Q4 numbers", "PNL DATA")
}

func TestLedgerCreate(t *testing.T) {
	ledger := newTestLedger()
	req := createRequest(ledger)

	if req.ID == "" {
		t.Fatal("expected a generated id")
	}
	if req.Status != domain.ApprovalPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if req.StoredPayload != "PNL DATA" {
		t.Fatalf("expected stored payload, got %q", req.StoredPayload)
	}
	if req.ResolvedAt != nil {
		t.Fatal("expected nil resolvedAt on creation")
	}
}

func TestLedgerGetUnknown(t *testing.T) {
	ledger := newTestLedger()
	if got := ledger.Get("nope"); got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}
}

func TestLedgerApproveIdempotent(t *testing.T) {
	ledger := newTestLedger()
	req := createRequest(ledger)

	first := ledger.Approve(req.ID)
	if first.Status != domain.ApprovalApproved {
		t.Fatalf("expected approved, got %s", first.Status)
	}
	if first.ResolvedAt == nil {
		t.Fatal("expected resolvedAt to be set")
	}

	second := ledger.Approve(req.ID)
	if second.Status != domain.ApprovalApproved {
		t.Fatalf("expected approved after second call, got %s", second.Status)
	}
	if !second.ResolvedAt.Equal(*first.ResolvedAt) {
		t.Fatal("second approve must not change resolvedAt")
	}
}

func TestLedgerApproveUnknown(t *testing.T) {
	ledger := newTestLedger()
	if got := ledger.Approve("nope"); got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}
}

func TestLedgerDenyThenApproveIsNoop(t *testing.T) {
	ledger := newTestLedger()
	req := createRequest(ledger)

	denied := ledger.Deny(req.ID)
	if denied.Status != domain.ApprovalDenied {
		t.Fatalf("expected denied, got %s", denied.Status)
	}

	after := ledger.Approve(req.ID)
	if after.Status != domain.ApprovalDenied {
		t.Fatalf("expected denied to stick, got %s", after.Status)
	}
}

func TestLedgerFulfillOnlyFromApproved(t *testing.T) {
	ledger := newTestLedger()
	req := createRequest(ledger)

	// pending -> fulfill must be a no-op
	if got, released := ledger.Fulfill(req.ID); released || got.Status != domain.ApprovalPending {
		t.Fatalf("expected fulfill on pending to no-op, got %s released=%v", got.Status, released)
	}

	ledger.Approve(req.ID)
	if got, released := ledger.Fulfill(req.ID); !released || got.Status != domain.ApprovalFulfilled {
		t.Fatalf("expected fulfilled, got %s released=%v", got.Status, released)
	}

	// fulfilled -> fulfill again must be a no-op
	if got, released := ledger.Fulfill(req.ID); released || got.Status != domain.ApprovalFulfilled {
		t.Fatalf("expected fulfilled to stick, got %s released=%v", got.Status, released)
	}

	denied := createRequest(ledger)
	ledger.Deny(denied.ID)
	if got, released := ledger.Fulfill(denied.ID); released || got.Status != domain.ApprovalDenied {
		t.Fatalf("expected fulfill on denied to no-op, got %s released=%v", got.Status, released)
	}
}

func TestLedgerFulfillUnknown(t *testing.T) {
	ledger := newTestLedger()
	if got, released := ledger.Fulfill("nope"); got != nil || released {
		t.Fatalf("expected nil for unknown id, got %+v released=%v", got, released)
	}
}

func TestLedgerConcurrentFulfillReportsOneTransition(t *testing.T) {
	ledger := newTestLedger()
	req := createRequest(ledger)
	ledger.Approve(req.ID)

	var wg sync.WaitGroup
	var releases atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, released := ledger.Fulfill(req.ID); released {
				releases.Add(1)
			}
		}()
	}
	wg.Wait()

	if releases.Load() != 1 {
		t.Fatalf("expected exactly one fulfill transition, got %d", releases.Load())
	}
}

func TestLedgerListByStatus(t *testing.T) {
	ledger := newTestLedger()
	a := createRequest(ledger)
	b := createRequest(ledger)
	ledger.Approve(b.ID)

	all := ledger.ListByStatus("")
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}

	pending := ledger.ListByStatus(domain.ApprovalPending)
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("expected only the pending record, got %+v", pending)
	}

	for _, rec := range all {
		if rec.ID == "" || rec.CreatedAt.IsZero() {
			t.Fatalf("incomplete record: %+v", rec)
		}
	}
}

func TestLedgerConcurrentApproveDeny(t *testing.T) {
	ledger := newTestLedger()
	req := createRequest(ledger)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ledger.Approve(req.ID)
		}()
		go func() {
			defer wg.Done()
			ledger.Deny(req.ID)
		}()
	}
	wg.Wait()

	// Exactly one transition won; the loser was a no-op.
	final := ledger.Get(req.ID)
	if final.Status != domain.ApprovalApproved && final.Status != domain.ApprovalDenied {
		t.Fatalf("expected approved or denied, got %s", final.Status)
	}
	if final.ResolvedAt == nil {
		t.Fatal("expected resolvedAt to be set")
	}
}
