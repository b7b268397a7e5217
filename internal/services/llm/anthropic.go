package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
)

// AnthropicProvider generates content through the Anthropic Messages API
type AnthropicProvider struct {
	client   anthropic.Client
	settings *roleSettings
	retry    *RetryConfig
	logger   arbor.ILogger
}

// Ensure AnthropicProvider implements the LLMProvider interface
var _ interfaces.LLMProvider = (*AnthropicProvider)(nil)

func newAnthropicProvider(cfg *common.LLMRoleConfig, apiKey string, logger arbor.ILogger) (*AnthropicProvider, error) {
	settings, err := parseRoleSettings(cfg)
	if err != nil {
		return nil, err
	}
	if settings.modelID == "" {
		settings.modelID = defaultClaudeModel
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	logger.Debug().
		Str("model", settings.modelID).
		Dur("timeout", settings.timeout).
		Int("max_tokens", settings.maxTokens).
		Msg("Anthropic provider initialized")

	return &AnthropicProvider{
		client:   client,
		settings: settings,
		retry:    NewDefaultRetryConfig(),
		logger:   logger,
	}, nil
}

// Name returns the provider identifier
func (p *AnthropicProvider) Name() string {
	return string(common.LLMProviderAnthropic)
}

// GenerateContent produces a completion via the Messages API
func (p *AnthropicProvider) GenerateContent(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	messages, systemText, err := convertMessagesToAnthropic(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if req.SystemInstruction != "" {
		systemText = req.SystemInstruction
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.settings.modelID),
		MaxTokens: int64(p.settings.effectiveMaxTokens(req)),
		Messages:  messages,
	}
	if temp := p.settings.effectiveTemperature(req); temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.settings.timeout)
	defer cancel()

	var resp *anthropic.Message
	var apiErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if p.settings.limiter != nil {
			if err := p.settings.limiter.Wait(timeoutCtx); err != nil {
				return nil, err
			}
		}

		resp, apiErr = p.client.Messages.New(timeoutCtx, params)
		if apiErr == nil {
			break
		}
		if attempt == p.retry.MaxRetries || !IsTransientError(apiErr) {
			break
		}

		backoff := p.retry.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		p.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Anthropic API call")

		select {
		case <-timeoutCtx.Done():
			return nil, timeoutCtx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return nil, fmt.Errorf("Anthropic API call failed: %w", apiErr)
	}

	// Extract text from response
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Anthropic API")
	}

	return &interfaces.CompletionResponse{
		Text:     text.String(),
		Provider: p.Name(),
		Model:    p.settings.modelID,
	}, nil
}

// convertMessagesToAnthropic converts messages to Anthropic MessageParam
// format. System messages are extracted separately for the System
// parameter; the first one wins.
func convertMessagesToAnthropic(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	converted := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		switch msg.Role {
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			// Unknown roles degrade to user
			converted = append(converted, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return converted, systemText, nil
}
