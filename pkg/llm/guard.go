package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reports/pkg/retry"
)

// GuardedClient wraps a provider client with transient-error retries, a
// circuit breaker and per-purpose request metrics.
type GuardedClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
	retry   *retry.Config
	logger  *zap.Logger
}

// NewGuardedClient wraps inner. A nil breaker or retry config selects the defaults.
func NewGuardedClient(inner LLMClient, breaker *CircuitBreaker, retryCfg *retry.Config, logger *zap.Logger) *GuardedClient {
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultCircuitBreakerConfig())
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedClient{
		inner:   inner,
		breaker: breaker,
		retry:   retryCfg,
		logger:  logger.Named("llm-guard"),
	}
}

// GenerateResponse implements LLMClient.
func (g *GuardedClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, jsonMode bool) (*GenerateResponseResult, error) {
	purpose := PurposeFromContext(ctx)

	if err := g.breaker.Allow(); err != nil {
		metrics.ObserveLLMRequest(purpose, metrics.OutcomeSkipped)
		return nil, err
	}

	result, err := retry.DoIfRetryableWithResult(ctx, g.retry, func() (*GenerateResponseResult, error) {
		return g.inner.GenerateResponse(ctx, prompt, systemMessage, temperature, jsonMode)
	})

	// A canceled caller says nothing about provider health.
	if err != nil && !errors.Is(err, context.Canceled) {
		g.breaker.RecordFailure()
		if g.breaker.State() == CircuitOpen {
			g.logger.Warn("LLM circuit opened",
				zap.String("purpose", purpose),
				zap.String("error_type", string(GetErrorType(err))),
				zap.Error(err))
		}
	} else if err == nil {
		g.breaker.RecordSuccess()
	}

	metrics.ObserveLLMRequest(purpose, metrics.Outcome(err))
	return result, err
}

// GetModel implements LLMClient.
func (g *GuardedClient) GetModel() string {
	return g.inner.GetModel()
}

// GetEndpoint implements LLMClient.
func (g *GuardedClient) GetEndpoint() string {
	return g.inner.GetEndpoint()
}

// Breaker exposes the circuit breaker for health reporting.
func (g *GuardedClient) Breaker() *CircuitBreaker {
	return g.breaker
}
