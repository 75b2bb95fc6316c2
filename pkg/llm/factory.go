package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reports/pkg/config"
)

// NewClientFromConfig builds the provider client selected by cfg, wrapped in
// a GuardedClient. It returns an error wrapping apperrors.ErrNotConfigured
// when the provider is "none" or lacks credentials; callers then run without
// an LLM.
func NewClientFromConfig(cfg *config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	if cfg == nil || !cfg.IsConfigured() {
		provider := ""
		if cfg != nil {
			provider = cfg.Provider
		}
		return nil, fmt.Errorf("%w: llm provider %q", apperrors.ErrNotConfigured, provider)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	var (
		inner LLMClient
		err   error
	)
	switch cfg.Provider {
	case config.LLMProviderAzure:
		inner, err = NewClient(&Config{
			Azure:      true,
			Endpoint:   cfg.AzureEndpoint,
			Model:      cfg.AzureDeployment,
			APIKey:     cfg.AzureAPIKey,
			APIVersion: cfg.AzureAPIVersion,
			Timeout:    timeout,
		}, logger)
	case config.LLMProviderOpenAI:
		inner, err = NewClient(&Config{
			Endpoint: cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIModel,
			APIKey:   cfg.OpenAIAPIKey,
			Timeout:  timeout,
		}, logger)
	case config.LLMProviderAnthropic:
		inner, err = NewAnthropicClient(&AnthropicConfig{
			Model:   cfg.AnthropicModel,
			APIKey:  cfg.AnthropicAPIKey,
			Timeout: timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	return NewGuardedClient(inner, nil, nil, logger), nil
}
