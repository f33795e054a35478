// Package openai adapts the OpenAI chat completions API to providers.Provider.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/sqlpilot/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// Adapter implements the Provider interface for OpenAI
type Adapter struct {
	config     providers.Config
	httpClient *http.Client
}

// New creates a new OpenAI adapter
func New(config providers.Config) (providers.Provider, error) {
	if config.APIKey == "" {
		return nil, providers.ErrMissingAPIKey
	}
	return NewAdapter(config), nil
}

// NewAdapter creates an adapter without checking the key
func NewAdapter(config providers.Config) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "openai"
}

// ChatCompletion performs a chat completion request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	reqBody, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, err)
	}

	return a.convertResponse(&chatResp, time.Since(startTime)), nil
}

// buildRequest converts unified request to OpenAI format
func (a *Adapter) buildRequest(req *providers.ChatRequest) *chatRequest {
	model := req.Model
	if model == "" {
		model = a.config.Model
	}

	out := &chatRequest{
		Model:       model,
		Messages:    make([]message, len(req.Messages)),
		Temperature: req.Temperature,
	}
	for i, msg := range req.Messages {
		out.Messages[i] = message{Role: msg.Role, Content: msg.Content}
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = &req.MaxTokens
	}
	if req.Candidates > 0 {
		out.N = &req.Candidates
	}
	return out
}

// convertResponse converts OpenAI response to unified format
func (a *Adapter) convertResponse(resp *chatResponse, latency time.Duration) *providers.ChatResponse {
	out := &providers.ChatResponse{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(resp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency: latency,
	}
	for i, choice := range resp.Choices {
		out.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}
	return out
}

// handleErrorResponse handles OpenAI error responses
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", strings.TrimSpace(string(body)), statusCode, nil)
	}
	return providers.NewProviderError(a.Name(), errResp.Error.Type, errResp.Error.Message, statusCode, nil)
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	N           *int      `json:"n,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
