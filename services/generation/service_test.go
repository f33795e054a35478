package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/services"
	"github.com/upb/sqlpilot/services/providers"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockProvider is a mock implementation of providers.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*providers.ChatResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func reply(text string) *providers.ChatResponse {
	return &providers.ChatResponse{
		Choices: []providers.Choice{{Message: providers.Message{Role: "assistant", Content: text}}},
	}
}

func str(s string) *string { return &s }

// maskRedactor replaces every occurrence of secret
type maskRedactor struct {
	secret string
}

func (m maskRedactor) Redact(text string) (string, int) {
	n := strings.Count(text, m.secret)
	return strings.ReplaceAll(text, m.secret, "[REDACTED]"), n
}

func ordersContext() []models.ObjectContext {
	return []models.ObjectContext{
		{
			Name:        "sales.orders",
			Description: str("one row per order"),
			Fields: []models.FieldContext{
				{Name: "total", Description: str("gross amount")},
				{Name: "id", Description: str("")},
			},
		},
		{Name: "sales.unknown", Fields: []models.FieldContext{}},
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("total revenue", ordersContext())

	expected := "Based on the following table structures and user request, generate a BigQuery SQL query.\n" +
		"Return ONLY the SQL query and nothing else. Do not include any introductory text, explanations, or markdown formatting like ```sql ... ```.\n" +
		"Ensure the query is valid BigQuery SQL syntax.\n" +
		"\nTable `sales.orders` (Description: one row per order):\n" +
		"- `total` (Description: gross amount)\n" +
		"- `id`\n" +
		"\nTable `sales.unknown`:\n" +
		"- (No field information available for this table)\n" +
		"\nUser request: \"total revenue\"\n" +
		"\nGenerated BigQuery SQL Query:"
	assert.Equal(t, expected, prompt)
}

func TestCleanQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "  SELECT 1  ", "SELECT 1"},
		{"sql fence", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"upper sql fence", "```SQL\nSELECT 1\n```", "SELECT 1"},
		{"bare fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"only opening fence", "```sql SELECT 1", "SELECT 1"},
		{"empty", "   ", ""},
		{"empty fence", "```sql\n```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanQuery(tt.raw))
		})
	}
}

func TestService_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns cleaned query and prompt", func(t *testing.T) {
		provider := new(MockProvider)
		svc := NewService(provider, zap.NewNop())
		provider.On("ChatCompletion", ctx, mock.MatchedBy(func(req *providers.ChatRequest) bool {
			return req.Temperature == 0.1 && req.MaxTokens == 1024 && req.Candidates == 1 &&
				len(req.Messages) == 1 && req.Messages[0].Role == "user"
		})).Return(reply("```sql\nSELECT SUM(total) FROM sales.orders\n```"), nil)

		result, err := svc.Generate(ctx, "total revenue", ordersContext())
		require.NoError(t, err)
		assert.Equal(t, "SELECT SUM(total) FROM sales.orders", result.Query)
		assert.Equal(t, BuildPrompt("total revenue", ordersContext()), result.Prompt)
		assert.Equal(t, "mock", result.Provider)
		provider.AssertExpectations(t)
	})

	t.Run("empty completion keeps the prompt", func(t *testing.T) {
		provider := new(MockProvider)
		svc := NewService(provider, zap.NewNop())
		provider.On("ChatCompletion", ctx, mock.Anything).Return(&providers.ChatResponse{}, nil)

		result, err := svc.Generate(ctx, "total revenue", ordersContext())
		require.NoError(t, err)
		assert.Empty(t, result.Query)
		assert.NotEmpty(t, result.Prompt)
	})

	t.Run("provider failure is internal", func(t *testing.T) {
		provider := new(MockProvider)
		svc := NewService(provider, zap.NewNop())
		provider.On("ChatCompletion", ctx, mock.Anything).
			Return(nil, providers.NewProviderError("mock", "UNAVAILABLE", "down", 503, nil))

		_, err := svc.Generate(ctx, "total revenue", ordersContext())
		assert.ErrorIs(t, err, services.ErrGenerationFailed)
		assert.True(t, services.IsInternalError(err))

		var provErr *providers.ProviderError
		assert.True(t, errors.As(err, &provErr))
	})

	t.Run("no provider configured", func(t *testing.T) {
		svc := NewService(nil, zap.NewNop())
		assert.False(t, svc.Available())

		_, err := svc.Generate(ctx, "total revenue", ordersContext())
		assert.ErrorIs(t, err, services.ErrGenerationUnavailable)
	})

	t.Run("validation before provider call", func(t *testing.T) {
		provider := new(MockProvider)
		svc := NewService(provider, zap.NewNop())

		_, err := svc.Generate(ctx, "  ", ordersContext())
		assert.True(t, services.IsValidationError(err))

		_, err = svc.Generate(ctx, "total revenue", nil)
		assert.True(t, services.IsValidationError(err))

		provider.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)
	})

	t.Run("redacts secrets before sending", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		provider := new(MockProvider)
		svc := NewService(provider, zap.New(core), WithRedactor(maskRedactor{secret: "hunter22"}))
		provider.On("ChatCompletion", ctx, mock.MatchedBy(func(req *providers.ChatRequest) bool {
			return !strings.Contains(req.Messages[0].Content, "hunter22") &&
				strings.Contains(req.Messages[0].Content, "[REDACTED]")
		})).Return(reply("SELECT 1"), nil)

		result, err := svc.Generate(ctx, "rows where password is hunter22", ordersContext())
		require.NoError(t, err)
		assert.NotContains(t, result.Prompt, "hunter22")
		provider.AssertExpectations(t)

		entries := logs.FilterMessage("secrets redacted from generation prompt").All()
		require.Len(t, entries, 1)
		assert.Equal(t, int64(1), entries[0].ContextMap()["count"])
	})

	t.Run("redactor without matches logs nothing", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		provider := new(MockProvider)
		svc := NewService(provider, zap.New(core), WithRedactor(maskRedactor{secret: "hunter22"}))
		provider.On("ChatCompletion", ctx, mock.Anything).Return(reply("SELECT 1"), nil)

		result, err := svc.Generate(ctx, "total revenue", ordersContext())
		require.NoError(t, err)
		assert.Equal(t, BuildPrompt("total revenue", ordersContext()), result.Prompt)
		assert.Zero(t, logs.Len())
	})
}
