package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"agentorg/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerExecutor wraps an Executor with circuit breaker protection. When the
// model backend fails repeatedly, the circuit opens and subsequent turns fail
// fast without reaching the backend. Failed calls are never retried.
type BreakerExecutor struct {
	inner   domain.Executor
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewBreakerExecutor wraps inner with a circuit breaker using default settings.
func NewBreakerExecutor(inner domain.Executor, logger *slog.Logger) *BreakerExecutor {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "executor",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    defaultCBInterval,
		Timeout:     defaultCBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultCBMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &BreakerExecutor{inner: inner, breaker: cb, logger: logger}
}

// Execute implements domain.Executor. Calls route through the circuit breaker.
func (b *BreakerExecutor) Execute(ctx context.Context, spec *domain.PersonaSpec, message string, dispatcher domain.RequestDispatcher) (string, error) {
	result, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Execute(ctx, spec, message, dispatcher)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", fmt.Errorf("executor circuit open: %w", err)
		}
		return "", err
	}
	return result, nil
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerExecutor) State() gobreaker.State {
	return b.breaker.State()
}

var _ domain.Executor = (*BreakerExecutor)(nil)
