package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"golang.org/x/time/rate"
)

const (
	// DefaultOpenAIBaseURL is the base URL for the OpenAI API.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// azureAPIVersion pins the Azure OpenAI REST API version.
	azureAPIVersion = "2024-10-21"
)

// ChatAPIError is a non-200 response from a chat-completions endpoint.
type ChatAPIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *ChatAPIError) Error() string {
	return fmt.Sprintf("chat completion request failed with status %d: %s", e.StatusCode, e.Message)
}

// OpenAIClient is a minimal chat-completions client covering both the
// OpenAI API and Azure OpenAI deployments.
type OpenAIClient struct {
	baseURL         string
	apiKey          string
	azureDeployment string
	httpClient      *http.Client
	logger          arbor.ILogger
	limiter         *rate.Limiter
}

// OpenAIClientOption configures the OpenAIClient.
type OpenAIClientOption func(*OpenAIClient)

// WithBaseURL sets a custom base URL. For Azure deployments this is
// the resource endpoint.
func WithBaseURL(baseURL string) OpenAIClientOption {
	return func(c *OpenAIClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) OpenAIClientOption {
	return func(c *OpenAIClient) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) OpenAIClientOption {
	return func(c *OpenAIClient) {
		c.logger = logger
	}
}

// WithRateLimiter sets a request rate limiter.
func WithRateLimiter(limiter *rate.Limiter) OpenAIClientOption {
	return func(c *OpenAIClient) {
		c.limiter = limiter
	}
}

// WithAzureDeployment switches the client to Azure URL and auth
// conventions for the named deployment.
func WithAzureDeployment(deployment string) OpenAIClientOption {
	return func(c *OpenAIClient) {
		c.azureDeployment = deployment
	}
}

// NewOpenAIClient creates a new chat-completions API client.
func NewOpenAIClient(apiKey string, opts ...OpenAIClientOption) *OpenAIClient {
	c := &OpenAIClient{
		baseURL: DefaultOpenAIBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// chatMessage is one turn in the chat-completions wire format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is the chat-completions request body. Model is
// omitted for Azure deployments, which route by URL.
type chatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatCompletionResponse is the chat-completions response body.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// chatErrorResponse is the error envelope both backends return.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// endpoint builds the completion URL for the configured backend
func (c *OpenAIClient) endpoint() string {
	if c.azureDeployment != "" {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", c.baseURL, c.azureDeployment, azureAPIVersion)
	}
	return c.baseURL + "/chat/completions"
}

// CreateChatCompletion posts one chat-completions request.
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, request *chatCompletionRequest) (*chatCompletionResponse, error) {
	// Wait for rate limiter
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.azureDeployment != "" {
		req.Header.Set("api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("model", request.Model).
			Int("message_count", len(request.Messages)).
			Msg("Chat completion request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		message := strings.TrimSpace(string(payload))
		var envelope chatErrorResponse
		if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Message != "" {
			message = envelope.Error.Message
		}
		return nil, &ChatAPIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// parseRetryAfter reads a Retry-After header value in seconds
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// OpenAIProvider generates content through the chat-completions REST
// API, covering both OpenAI and Azure OpenAI backends.
type OpenAIProvider struct {
	client   *OpenAIClient
	name     string
	model    string // reported model identifier
	body     string // request body model field; empty when Azure routes by deployment
	settings *roleSettings
	retry    *RetryConfig
	logger   arbor.ILogger
}

// Ensure OpenAIProvider implements the LLMProvider interface
var _ interfaces.LLMProvider = (*OpenAIProvider)(nil)

func newOpenAIProvider(cfg *common.LLMRoleConfig, apiKey string, logger arbor.ILogger) (*OpenAIProvider, error) {
	settings, err := parseRoleSettings(cfg)
	if err != nil {
		return nil, err
	}

	opts := []OpenAIClientOption{
		WithLogger(logger),
		WithHTTPClient(&http.Client{Timeout: settings.timeout}),
	}
	if settings.limiter != nil {
		opts = append(opts, WithRateLimiter(settings.limiter))
	}

	logger.Debug().
		Str("model", settings.modelID).
		Dur("timeout", settings.timeout).
		Msg("OpenAI provider initialized")

	return &OpenAIProvider{
		client:   NewOpenAIClient(apiKey, opts...),
		name:     string(common.LLMProviderOpenAI),
		model:    settings.modelID,
		body:     settings.modelID,
		settings: settings,
		retry:    NewDefaultRetryConfig(),
		logger:   logger,
	}, nil
}

func newAzureOpenAIProvider(cfg *common.LLMRoleConfig, apiKey string, logger arbor.ILogger) (*OpenAIProvider, error) {
	settings, err := parseRoleSettings(cfg)
	if err != nil {
		return nil, err
	}

	opts := []OpenAIClientOption{
		WithLogger(logger),
		WithBaseURL(cfg.AzureEndpoint),
		WithAzureDeployment(cfg.AzureDeployment),
		WithHTTPClient(&http.Client{Timeout: settings.timeout}),
	}
	if settings.limiter != nil {
		opts = append(opts, WithRateLimiter(settings.limiter))
	}

	model := settings.modelID
	if model == "" {
		model = cfg.AzureDeployment
	}

	logger.Debug().
		Str("deployment", cfg.AzureDeployment).
		Dur("timeout", settings.timeout).
		Msg("Azure OpenAI provider initialized")

	return &OpenAIProvider{
		client:   NewOpenAIClient(apiKey, opts...),
		name:     string(common.LLMProviderAzureOpenAI),
		model:    model,
		settings: settings,
		retry:    NewDefaultRetryConfig(),
		logger:   logger,
	}, nil
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return p.name
}

// GenerateContent produces a completion via the chat-completions API
func (p *OpenAIProvider) GenerateContent(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	messages, systemText, err := convertMessagesToChat(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if req.SystemInstruction != "" {
		systemText = req.SystemInstruction
	}
	if systemText != "" {
		messages = append([]chatMessage{{Role: "system", Content: systemText}}, messages...)
	}

	temperature := p.settings.effectiveTemperature(req)
	request := &chatCompletionRequest{
		Model:       p.body,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   p.settings.effectiveMaxTokens(req),
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.settings.timeout)
	defer cancel()

	var resp *chatCompletionResponse
	var apiErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		resp, apiErr = p.client.CreateChatCompletion(timeoutCtx, request)
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
			Msg("Retrying chat completion call")

		select {
		case <-timeoutCtx.Done():
			return nil, timeoutCtx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return nil, fmt.Errorf("%s chat completion failed: %w", p.name, apiErr)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("empty response from %s chat completion", p.name)
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}

	return &interfaces.CompletionResponse{
		Text:     resp.Choices[0].Message.Content,
		Provider: p.name,
		Model:    model,
	}, nil
}

// convertMessagesToChat maps messages to the chat-completions wire
// format. The first system message is extracted for the caller to
// reapply, matching the other provider conversions.
func convertMessagesToChat(messages []interfaces.Message) ([]chatMessage, string, error) {
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

	converted := make([]chatMessage, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		role := msg.Role
		if role != "assistant" {
			// Unknown roles degrade to user
			role = "user"
		}
		converted = append(converted, chatMessage{Role: role, Content: msg.Content})
	}

	return converted, systemText, nil
}
