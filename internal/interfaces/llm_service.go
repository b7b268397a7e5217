package interfaces

import (
	"context"
)

// ModelRole identifies which configured model a request uses
type ModelRole string

const (
	// ModelRolePlanner generates implementation plans from issues
	ModelRolePlanner ModelRole = "planner"

	// ModelRoleExecutor carries out plan steps inside the workspace
	ModelRoleExecutor ModelRole = "executor"

	// ModelRoleThinker is the optional deliberation model
	ModelRoleThinker ModelRole = "thinker"
)

// Message represents a single message in a model conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// CompletionRequest is a provider-agnostic content generation request
type CompletionRequest struct {
	// Messages is the conversation in chronological order
	Messages []Message

	// SystemInstruction is prepended as the system prompt when set
	SystemInstruction string

	// Temperature overrides the role default when non-negative
	Temperature float32

	// MaxTokens caps the response length; 0 uses the role default
	MaxTokens int
}

// CompletionResponse is a provider-agnostic generation result
type CompletionResponse struct {
	// Text is the generated content
	Text string

	// Provider names the backend that produced the response
	Provider string

	// Model is the concrete model identifier used
	Model string
}

// LLMProvider generates content against one configured backend
type LLMProvider interface {
	// Name returns the provider identifier ("anthropic", "gemini",
	// "openai", "azureopenai")
	Name() string

	// GenerateContent produces a completion for the request
	GenerateContent(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// LLMService resolves configured model roles to providers
type LLMService interface {
	// ProviderFor returns the provider configured for a role. The
	// thinker role errors when not configured.
	ProviderFor(role ModelRole) (LLMProvider, error)

	// Generate is a convenience that resolves the role and generates
	Generate(ctx context.Context, role ModelRole, req *CompletionRequest) (*CompletionResponse, error)

	// Close releases provider clients
	Close() error
}
