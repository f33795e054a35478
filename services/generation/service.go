// Package generation turns a natural-language request and a context
// document into a candidate BigQuery query through an LLM provider.
package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/services"
	"github.com/upb/sqlpilot/services/providers"
	"go.uber.org/zap"
)

const (
	temperature = 0.1
	maxTokens   = 1024
	candidates  = 1
)

// Result is the outcome of a generation attempt. Query is empty when the
// provider answered without a usable query; Prompt is always set.
type Result struct {
	Query    string
	Prompt   string
	Provider string
}

// Redactor masks credentials in text bound for an external provider
type Redactor interface {
	Redact(text string) (string, int)
}

// Option configures a Service
type Option func(*Service)

// WithRedactor masks secrets in every prompt before it leaves the process.
// The returned Result carries the masked prompt.
func WithRedactor(r Redactor) Option {
	return func(s *Service) {
		s.redactor = r
	}
}

// Service is the generation adapter
type Service struct {
	provider providers.Provider
	redactor Redactor
	logger   *zap.Logger
}

// NewService creates a generation adapter. provider may be nil, in which
// case every call fails with ErrGenerationUnavailable.
func NewService(provider providers.Provider, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether a provider is configured
func (s *Service) Available() bool {
	return s.provider != nil
}

// Generate builds the prompt and asks the provider for one completion
func (s *Service) Generate(ctx context.Context, request string, contexts []models.ObjectContext) (*Result, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, services.Validation("user_request is required")
	}
	if len(contexts) == 0 {
		return nil, services.Validation("no objects are described for this connection")
	}
	if s.provider == nil {
		return nil, services.ErrGenerationUnavailable
	}

	prompt := BuildPrompt(request, contexts)
	if s.redactor != nil {
		var n int
		if prompt, n = s.redactor.Redact(prompt); n > 0 {
			s.logger.Warn("secrets redacted from generation prompt",
				zap.String("provider", s.provider.Name()),
				zap.Int("count", n),
			)
		}
	}
	s.logger.Debug("generation prompt built",
		zap.String("provider", s.provider.Name()),
		zap.Int("objects", len(contexts)),
		zap.Int("prompt_bytes", len(prompt)),
	)

	resp, err := s.provider.ChatCompletion(ctx, &providers.ChatRequest{
		Messages:    []providers.Message{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Candidates:  candidates,
	})
	if err != nil {
		s.logger.Error("generation failed", zap.String("provider", s.provider.Name()), zap.Error(err))
		return nil, services.ErrGenerationFailed.Wrap(err)
	}

	query := CleanQuery(resp.Text())
	if query == "" {
		s.logger.Warn("provider returned no query", zap.String("provider", s.provider.Name()))
	} else {
		s.logger.Info("query generated",
			zap.String("provider", s.provider.Name()),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
			zap.Duration("latency", resp.Latency),
		)
	}

	return &Result{
		Query:    query,
		Prompt:   prompt,
		Provider: s.provider.Name(),
	}, nil
}

// BuildPrompt renders the instructions, one block per object, and the
// user request.
func BuildPrompt(request string, contexts []models.ObjectContext) string {
	parts := []string{
		"Based on the following table structures and user request, generate a BigQuery SQL query.",
		"Return ONLY the SQL query and nothing else. Do not include any introductory text, explanations, or markdown formatting like ```sql ... ```.",
		"Ensure the query is valid BigQuery SQL syntax.",
	}

	for _, obj := range contexts {
		var b strings.Builder
		fmt.Fprintf(&b, "\nTable `%s`", obj.Name)
		if obj.Description != nil && *obj.Description != "" {
			fmt.Fprintf(&b, " (Description: %s):", *obj.Description)
		} else {
			b.WriteString(":")
		}

		if len(obj.Fields) == 0 {
			b.WriteString("\n- (No field information available for this table)")
		}
		for _, f := range obj.Fields {
			fmt.Fprintf(&b, "\n- `%s`", f.Name)
			if f.Description != nil && *f.Description != "" {
				fmt.Fprintf(&b, " (Description: %s)", *f.Description)
			}
		}
		parts = append(parts, b.String())
	}

	parts = append(parts,
		"\nUser request: \"" + request + "\"",
		"\nGenerated BigQuery SQL Query:",
	)
	return strings.Join(parts, "\n")
}

// CleanQuery strips surrounding whitespace and markdown code fences
func CleanQuery(raw string) string {
	q := strings.TrimSpace(raw)
	if len(q) >= 6 && strings.EqualFold(q[:6], "```sql") {
		q = q[6:]
	} else if strings.HasPrefix(q, "```") {
		q = q[3:]
	}
	q = strings.TrimSuffix(strings.TrimSpace(q), "```")
	return strings.TrimSpace(q)
}
