package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"golang.org/x/time/rate"
)

// Defaults applied when a role config leaves the knob unset.
const (
	defaultMaxTokens   = 8192
	defaultTimeout     = 5 * time.Minute
	defaultRateLimit   = time.Second
	defaultClaudeModel = "claude-sonnet-4-5"
	defaultGeminiModel = "gemini-2.0-flash"
)

// roleSettings holds the parsed, defaulted knobs shared by all
// provider implementations.
type roleSettings struct {
	modelID     string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	limiter     *rate.Limiter
}

// parseRoleSettings validates and defaults one role configuration
func parseRoleSettings(cfg *common.LLMRoleConfig) (*roleSettings, error) {
	timeout := defaultTimeout
	if cfg.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout duration '%s': %w", cfg.Timeout, err)
		}
		timeout = parsed
	}

	interval := defaultRateLimit
	if cfg.RateLimit != "" {
		parsed, err := time.ParseDuration(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit duration '%s': %w", cfg.RateLimit, err)
		}
		interval = parsed
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var limiter *rate.Limiter
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	return &roleSettings{
		modelID:     cfg.ModelID,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		limiter:     limiter,
	}, nil
}

// effectiveTemperature applies the request override. Negative request
// temperatures fall back to the role default.
func (s *roleSettings) effectiveTemperature(req *interfaces.CompletionRequest) float32 {
	if req.Temperature >= 0 {
		return req.Temperature
	}
	return s.temperature
}

// effectiveMaxTokens applies the request override when positive
func (s *roleSettings) effectiveMaxTokens(req *interfaces.CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return s.maxTokens
}

// Service resolves configured model roles to concrete providers.
// Planner and Executor are always present after construction; Thinker
// only when configured.
type Service struct {
	providers map[interfaces.ModelRole]interfaces.LLMProvider
	logger    arbor.ILogger
}

// Ensure Service implements the LLMService interface
var _ interfaces.LLMService = (*Service)(nil)

// NewService builds one provider per configured role. API keys resolve
// through the environment, the KV store, then the config fallback.
func NewService(cfg *common.LLMConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm configuration is required")
	}
	if logger == nil {
		logger = common.GetLogger()
	}

	service := &Service{
		providers: make(map[interfaces.ModelRole]interfaces.LLMProvider),
		logger:    logger,
	}

	roles := []struct {
		role     interfaces.ModelRole
		config   *common.LLMRoleConfig
		required bool
	}{
		{interfaces.ModelRolePlanner, &cfg.Planner, true},
		{interfaces.ModelRoleExecutor, &cfg.Executor, true},
		{interfaces.ModelRoleThinker, &cfg.Thinker, false},
	}

	for _, r := range roles {
		if r.config.Provider == "" {
			if r.required {
				return nil, fmt.Errorf("llm role %s is not configured", r.role)
			}
			continue
		}

		provider, err := buildProvider(r.config, kvStorage, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s provider for role %s: %w", r.config.Provider, r.role, err)
		}
		service.providers[r.role] = provider

		logger.Info().
			Str("role", string(r.role)).
			Str("provider", r.config.Provider).
			Str("model", r.config.ModelID).
			Msg("LLM provider configured")
	}

	return service, nil
}

// buildProvider creates the concrete provider for one role config
func buildProvider(cfg *common.LLMRoleConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (interfaces.LLMProvider, error) {
	ctx := context.Background()

	switch common.LLMProvider(cfg.Provider) {
	case common.LLMProviderAnthropic:
		apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "anthropic_api_key", cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return newAnthropicProvider(cfg, apiKey, logger)

	case common.LLMProviderGemini:
		apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "gemini_api_key", cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return newGeminiProvider(ctx, cfg, apiKey, logger)

	case common.LLMProviderOpenAI:
		apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "openai_api_key", cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return newOpenAIProvider(cfg, apiKey, logger)

	case common.LLMProviderAzureOpenAI:
		apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "azure_openai_api_key", cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return newAzureOpenAIProvider(cfg, apiKey, logger)

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// ProviderFor returns the provider configured for a role
func (s *Service) ProviderFor(role interfaces.ModelRole) (interfaces.LLMProvider, error) {
	provider, ok := s.providers[role]
	if !ok {
		return nil, fmt.Errorf("no provider configured for role %s", role)
	}
	return provider, nil
}

// Generate resolves the role and generates content with its provider
func (s *Service) Generate(ctx context.Context, role interfaces.ModelRole, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	provider, err := s.ProviderFor(role)
	if err != nil {
		return nil, err
	}
	return provider.GenerateContent(ctx, req)
}

// Close releases provider clients
func (s *Service) Close() error {
	s.logger.Debug().Msg("Closing LLM service")
	s.providers = make(map[interfaces.ModelRole]interfaces.LLMProvider)
	return nil
}
