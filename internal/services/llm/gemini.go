package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiProvider generates content through the Google Gemini API
type GeminiProvider struct {
	client   *genai.Client
	settings *roleSettings
	retry    *RetryConfig
	logger   arbor.ILogger
}

// Ensure GeminiProvider implements the LLMProvider interface
var _ interfaces.LLMProvider = (*GeminiProvider)(nil)

func newGeminiProvider(ctx context.Context, cfg *common.LLMRoleConfig, apiKey string, logger arbor.ILogger) (*GeminiProvider, error) {
	settings, err := parseRoleSettings(cfg)
	if err != nil {
		return nil, err
	}
	if settings.modelID == "" {
		settings.modelID = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Debug().
		Str("model", settings.modelID).
		Dur("timeout", settings.timeout).
		Int("max_tokens", settings.maxTokens).
		Msg("Gemini provider initialized")

	return &GeminiProvider{
		client:   client,
		settings: settings,
		retry:    NewDefaultRetryConfig(),
		logger:   logger,
	}, nil
}

// Name returns the provider identifier
func (p *GeminiProvider) Name() string {
	return string(common.LLMProviderGemini)
}

// GenerateContent produces a completion via the Gemini content API
func (p *GeminiProvider) GenerateContent(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	contents, systemText, err := convertMessagesToGemini(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if req.SystemInstruction != "" {
		systemText = req.SystemInstruction
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.settings.effectiveTemperature(req)),
		MaxOutputTokens: int32(p.settings.effectiveMaxTokens(req)),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.settings.timeout)
	defer cancel()

	var resp *genai.GenerateContentResponse
	var apiErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if p.settings.limiter != nil {
			if err := p.settings.limiter.Wait(timeoutCtx); err != nil {
				return nil, err
			}
		}

		resp, apiErr = p.client.Models.GenerateContent(timeoutCtx, p.settings.modelID, contents, config)
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
			Msg("Retrying Gemini API call")

		select {
		case <-timeoutCtx.Done():
			return nil, timeoutCtx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", apiErr)
	}

	// Iterate candidates until non-empty text is found
	var text strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				break
			}
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	return &interfaces.CompletionResponse{
		Text:     text.String(),
		Provider: p.Name(),
		Model:    p.settings.modelID,
	}, nil
}

// convertMessagesToGemini converts messages to Gemini Content format.
// System messages are extracted separately for SystemInstruction; the
// first one wins.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
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

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		var geminiRole string
		switch msg.Role {
		case "assistant":
			geminiRole = genai.RoleModel
		default:
			// Unknown roles degrade to user
			geminiRole = genai.RoleUser
		}

		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	return contents, systemText, nil
}
