package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/upb/sqlpilot/services/providers"
)

func TestNew(t *testing.T) {
	if _, err := New(providers.Config{}); !errors.Is(err, providers.ErrMissingAPIKey) {
		t.Errorf("New() without key error = %v, want %v", err, providers.ErrMissingAPIKey)
	}

	p, err := New(providers.Config{APIKey: "g-key"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != "gemini" {
		t.Errorf("Name() = %s, want gemini", p.Name())
	}
	if got := p.(*Adapter).config.Model; got != defaultModel {
		t.Errorf("Model = %s, want %s", got, defaultModel)
	}
}

func TestAdapter_ChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/models/gemini-1.5-flash-latest:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if key := r.Header.Get("x-goog-api-key"); key != "g-key" {
			t.Errorf("x-goog-api-key = %q", key)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("invalid request body: %v", err)
		}
		if req.GenerationConfig.Temperature != 0.1 ||
			req.GenerationConfig.MaxOutputTokens != 1024 ||
			req.GenerationConfig.CandidateCount != 1 {
			t.Errorf("generationConfig = %+v", req.GenerationConfig)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "be terse" {
			t.Errorf("systemInstruction = %+v", req.SystemInstruction)
		}
		if len(req.Contents) != 1 || req.Contents[0].Role != "user" || req.Contents[0].Parts[0].Text != "count orders" {
			t.Errorf("contents = %+v", req.Contents)
		}
		if len(req.SafetySettings) != len(harmCategories) {
			t.Errorf("safetySettings = %+v", req.SafetySettings)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "SELECT COUNT(*) "}, {"text": "FROM sales.orders"}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 8, "totalTokenCount": 20},
			"modelVersion": "gemini-1.5-flash-002",
			"responseId": "resp-1"
		}`))
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{APIKey: "g-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "count orders"},
		},
		MaxTokens:   1024,
		Temperature: 0.1,
		Candidates:  1,
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	if resp.Text() != "SELECT COUNT(*) FROM sales.orders" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if resp.Model != "gemini-1.5-flash-002" || resp.ID != "resp-1" {
		t.Errorf("Model/ID = %s/%s", resp.Model, resp.ID)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("FinishReason = %s, want stop", resp.Choices[0].FinishReason)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("TotalTokens = %d, want 20", resp.Usage.TotalTokens)
	}
}

func TestAdapter_ChatCompletion_Blocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promptFeedback": {"blockReason": "OTHER"}}`))
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{APIKey: "g-key", BaseURL: server.URL})
	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "x"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if len(resp.Choices) != 0 || resp.Text() != "" {
		t.Errorf("blocked prompt should yield no choices, got %+v", resp.Choices)
	}
}

func TestAdapter_ChatCompletion_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{APIKey: "bad", BaseURL: server.URL})
	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{})

	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if provErr.StatusCode != http.StatusBadRequest || provErr.Code != "INVALID_ARGUMENT" {
		t.Errorf("unexpected error: %+v", provErr)
	}
	if provErr.Message != "API key not valid" {
		t.Errorf("Message = %q", provErr.Message)
	}
}

func TestAdapter_ChatCompletion_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()
	defer server.CloseClientConnections()

	adapter := NewAdapter(providers.Config{APIKey: "g-key", BaseURL: server.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := adapter.ChatCompletion(ctx, &providers.ChatRequest{}); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("ChatCompletion returned after %v, want it to stop at the deadline", elapsed)
	}
}

func TestBuildRequest_AssistantTurns(t *testing.T) {
	req := buildRequest(&providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "user", Content: "q1"},
			{Role: "assistant", Content: "a1"},
			{Role: "user", Content: "q2"},
		},
	})
	if req.SystemInstruction != nil {
		t.Error("no system message, no system instruction")
	}
	roles := []string{"user", "model", "user"}
	for i, c := range req.Contents {
		if c.Role != roles[i] {
			t.Errorf("Contents[%d].Role = %s, want %s", i, c.Role, roles[i])
		}
	}
}
