package llm

import (
	"context"
	"fmt"
	"log/slog"

	"agentorg/internal/domain"
)

// CannedExecutor answers every persona with a deterministic acknowledgement.
// It lets the gateway, registry and approval flow run locally without AWS
// credentials; the nested-request path is exercised only by real models.
type CannedExecutor struct {
	logger *slog.Logger
}

// NewCannedExecutor creates a local no-backend executor.
func NewCannedExecutor(logger *slog.Logger) *CannedExecutor {
	return &CannedExecutor{logger: logger}
}

// Execute implements domain.Executor.
func (e *CannedExecutor) Execute(_ context.Context, spec *domain.PersonaSpec, message string, _ domain.RequestDispatcher) (string, error) {
	e.logger.Debug("canned execution", "persona", spec.Slug)
	return fmt.Sprintf("[%s] Received: %s", spec.Name, message), nil
}

var _ domain.Executor = (*CannedExecutor)(nil)
