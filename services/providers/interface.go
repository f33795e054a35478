// Package providers defines the chat completion contract shared by the
// LLM backends that turn prompts into SQL.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider represents a unified LLM provider interface
type Provider interface {
	// Name returns the provider name (e.g., "gemini", "openai")
	Name() string

	// ChatCompletion performs a single completion request. Implementations
	// never retry.
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ChatRequest represents a unified chat completion request
type ChatRequest struct {
	// Model identifier; empty selects the provider's configured model
	Model string `json:"model,omitempty"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness
	Temperature float64 `json:"temperature"`

	// Candidates is the number of completions requested
	Candidates int `json:"n,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// ChatResponse represents a unified chat completion response
type ChatResponse struct {
	ID       string        `json:"id"`
	Model    string        `json:"model"`
	Choices  []Choice      `json:"choices"`
	Usage    Usage         `json:"usage"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency"`
}

// Text returns the content of the first choice, or "" when there is none
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Choice represents a completion choice
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`

	// FinishReason indicates why the completion finished
	FinishReason string `json:"finish_reason"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Config holds common configuration for providers
type Config struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Model used when a request does not name one
	Model string

	// Timeout for requests
	Timeout time.Duration
}

// ErrMissingAPIKey is returned by provider constructors without a key
var ErrMissingAPIKey = errors.New("provider API key is not configured")

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the provider's error code or status
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}
