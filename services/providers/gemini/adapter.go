// Package gemini adapts the Gemini generateContent REST API to
// providers.Provider.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/sqlpilot/services/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash-latest"
)

// harmCategories are all sent with threshold BLOCK_NONE
var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// Adapter implements the Provider interface for Gemini
type Adapter struct {
	config     providers.Config
	httpClient *http.Client
}

// New creates a new Gemini adapter
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
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "gemini"
}

// ChatCompletion performs one generateContent call. System messages become
// the system instruction; the rest become user or model turns.
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	model := req.Model
	if model == "" {
		model = a.config.Model
	}

	reqBody, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.config.BaseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.config.APIKey)

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
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Error.Message == "" {
			return nil, providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", strings.TrimSpace(string(respBody)), httpResp.StatusCode, nil)
		}
		return nil, providers.NewProviderError(a.Name(), errResp.Error.Status, errResp.Error.Message, httpResp.StatusCode, nil)
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, err)
	}

	return a.convertResponse(&genResp, model, time.Since(startTime)), nil
}

func buildRequest(req *providers.ChatRequest) *generateRequest {
	out := &generateRequest{
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
			CandidateCount:  req.Candidates,
		},
	}

	var system []part
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			system = append(system, part{Text: msg.Content})
		case "assistant":
			out.Contents = append(out.Contents, content{Role: "model", Parts: []part{{Text: msg.Content}}})
		default:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &content{Parts: system}
	}

	for _, category := range harmCategories {
		out.SafetySettings = append(out.SafetySettings, safetySetting{Category: category, Threshold: "BLOCK_NONE"})
	}
	return out
}

// convertResponse flattens each candidate's parts into one message. A
// blocked prompt yields a response without choices.
func (a *Adapter) convertResponse(resp *generateResponse, model string, latency time.Duration) *providers.ChatResponse {
	out := &providers.ChatResponse{
		ID:       resp.ResponseID,
		Model:    model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, 0, len(resp.Candidates)),
		Usage: providers.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
		Latency: latency,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}

	for i, cand := range resp.Candidates {
		var text strings.Builder
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		out.Choices = append(out.Choices, providers.Choice{
			Index:        i,
			Message:      providers.Message{Role: "assistant", Content: text.String()},
			FinishReason: strings.ToLower(cand.FinishReason),
		})
	}
	return out
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	CandidateCount  int     `json:"candidateCount,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	SafetySettings    []safetySetting  `json:"safetySettings,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type generateResponse struct {
	Candidates    []candidate `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
	ResponseID   string `json:"responseId"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
