package usecase

import (
	"context"
	"log/slog"

	"agentorg/internal/domain"
)

// Gate adapts the external permission graph with an availability-first
// fallback: when the graph cannot be reached, requests are allowed and routed
// to the originally addressed persona with no approval policy. The fallback
// disables enforcement for the duration of a graph outage; every occurrence
// is logged at warn level.
type Gate struct {
	resolver domain.PermissionResolver
	logger   *slog.Logger
}

// NewGate creates a permission gate over the given resolver. A nil resolver
// puts the gate permanently in permissive mode.
func NewGate(resolver domain.PermissionResolver, logger *slog.Logger) *Gate {
	return &Gate{resolver: resolver, logger: logger}
}

// Resolve answers whether source may request dataType, who owns it, and
// whether an approval policy gates the result. addressedTarget is the persona
// the request named; it becomes the owner in permissive fallback mode.
func (g *Gate) Resolve(ctx context.Context, sourceSlug, dataType, addressedTarget string) domain.RouteDecision {
	permissive := domain.RouteDecision{Allowed: true, OwnerSlug: addressedTarget}

	if g.resolver == nil {
		return permissive
	}

	decision, err := g.resolver.Resolve(ctx, sourceSlug, dataType)
	if err != nil {
		g.logger.Warn("permission graph unavailable, falling back to permissive mode",
			"source", sourceSlug,
			"data_type", dataType,
			"error", err,
		)
		return permissive
	}
	if decision.OwnerSlug == "" {
		decision.OwnerSlug = addressedTarget
	}
	return decision
}
