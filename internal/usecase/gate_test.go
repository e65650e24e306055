package usecase

import (
	"context"
	"fmt"
	"testing"

	"agentorg/internal/domain"
)

// fakeResolver returns a canned decision or error.
type fakeResolver struct {
	decision domain.RouteDecision
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, _, _ string) (domain.RouteDecision, error) {
	return f.decision, f.err
}

func TestGatePassesThroughDecision(t *testing.T) {
	gate := NewGate(&fakeResolver{
		decision: domain.RouteDecision{
			Allowed:   true,
			OwnerSlug: "accountant",
			Policy:    &domain.ApprovalPolicy{Level: "ceo", Reason: "sensitive"},
		},
	}, testLogger())

	decision := gate.Resolve(context.Background(), "finance-manager", "pnl", "accountant")
	if !decision.Allowed {
		t.Fatal("expected allowed")
	}
	if decision.OwnerSlug != "accountant" {
		t.Fatalf("expected accountant owner, got %s", decision.OwnerSlug)
	}
	if decision.Policy == nil || decision.Policy.Level != "ceo" {
		t.Fatalf("expected ceo approval policy, got %+v", decision.Policy)
	}
}

func TestGateDeniesWhenGraphDenies(t *testing.T) {
	gate := NewGate(&fakeResolver{decision: domain.RouteDecision{Allowed: false}}, testLogger())

	decision := gate.Resolve(context.Background(), "accountant", "budget", "ceo")
	if decision.Allowed {
		t.Fatal("expected denial to pass through")
	}
}

func TestGateFallsBackPermissiveOnError(t *testing.T) {
	gate := NewGate(&fakeResolver{err: fmt.Errorf("connection refused")}, testLogger())

	decision := gate.Resolve(context.Background(), "finance-manager", "pnl", "accountant")
	if !decision.Allowed {
		t.Fatal("expected permissive fallback to allow")
	}
	if decision.OwnerSlug != "accountant" {
		t.Fatalf("expected addressed target as owner, got %s", decision.OwnerSlug)
	}
	if decision.Policy != nil {
		t.Fatalf("expected no approval policy in fallback, got %+v", decision.Policy)
	}
}

func TestGateNilResolverIsPermissive(t *testing.T) {
	gate := NewGate(nil, testLogger())

	decision := gate.Resolve(context.Background(), "anyone", "anything", "accountant")
	if !decision.Allowed || decision.OwnerSlug != "accountant" || decision.Policy != nil {
		t.Fatalf("expected permissive decision, got %+v", decision)
	}
}

func TestGateSubstitutesAddressedTargetForMissingOwner(t *testing.T) {
	gate := NewGate(&fakeResolver{decision: domain.RouteDecision{Allowed: true}}, testLogger())

	decision := gate.Resolve(context.Background(), "ceo", "unowned-data", "accountant")
	if decision.OwnerSlug != "accountant" {
		t.Fatalf("expected addressed target substitution, got %s", decision.OwnerSlug)
	}
}
