// Package prompt scrubs credentials out of text before it is sent to an
// external generation provider. Warehouse keys and tokens pasted into a
// request or an object description never leave the process.
package prompt

import (
	"regexp"
	"sort"
)

// SecretType identifies the kind of credential found
type SecretType string

const (
	SecretTypePrivateKey  SecretType = "private_key"
	SecretTypeGCPKey      SecretType = "gcp_key"
	SecretTypeAWSKey      SecretType = "aws_key"
	SecretTypeJWT         SecretType = "jwt"
	SecretTypeOpenAIKey   SecretType = "openai_key"
	SecretTypeGitHubToken SecretType = "github_token"
	SecretTypeSlackToken  SecretType = "slack_token"
	SecretTypeStripeKey   SecretType = "stripe_key"
	SecretTypePassword    SecretType = "password"
	SecretTypeDatabaseURL SecretType = "database_url"
)

// Detection is one credential occurrence in a text
type Detection struct {
	Type     SecretType
	StartPos int
	EndPos   int
}

type secretPattern struct {
	kind SecretType
	re   *regexp.Regexp
	// group selects the submatch to redact; 0 redacts the whole match
	group int
}

// No pattern matches a bare identifier; table and column names pass
// through untouched.
var secretPatterns = []secretPattern{
	{kind: SecretTypePrivateKey, re: regexp.MustCompile(`-----BEGIN (?:[A-Z]+ )?PRIVATE KEY-----[\s\S]*?-----END (?:[A-Z]+ )?PRIVATE KEY-----`)},
	{kind: SecretTypePrivateKey, re: regexp.MustCompile(`"private_key"\s*:\s*"([^"]+)"`), group: 1},
	{kind: SecretTypeGCPKey, re: regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`)},
	{kind: SecretTypeAWSKey, re: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{kind: SecretTypeJWT, re: regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)},
	{kind: SecretTypeOpenAIKey, re: regexp.MustCompile(`\bsk-(?:proj-|ant-)?[A-Za-z0-9_\-]{32,}`)},
	{kind: SecretTypeGitHubToken, re: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{kind: SecretTypeSlackToken, re: regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}`)},
	{kind: SecretTypeStripeKey, re: regexp.MustCompile(`\b[sr]k_(?:live|test)_[0-9a-zA-Z]{24,}\b`)},
	{kind: SecretTypePassword, re: regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)\s*[:=]\s*['"]?([^\s'"]{4,})`), group: 1},
	{kind: SecretTypeDatabaseURL, re: regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb|redis)://[^\s'":]+:[^\s'"@]+@[^\s'"]+`)},
}

// Redactor replaces detected credentials with typed placeholders
type Redactor struct {
	patterns []secretPattern
}

// NewRedactor creates a Redactor with the built-in patterns
func NewRedactor() *Redactor {
	return &Redactor{patterns: secretPatterns}
}

// Detect returns non-overlapping detections ordered by position
func (r *Redactor) Detect(text string) []Detection {
	var found []Detection
	for _, p := range r.patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*p.group], m[2*p.group+1]
			if start < 0 {
				continue
			}
			found = append(found, Detection{Type: p.kind, StartPos: start, EndPos: end})
		}
	}
	return merge(found)
}

// Redact returns text with every detection replaced, and how many were replaced
func (r *Redactor) Redact(text string) (string, int) {
	detections := r.Detect(text)
	if len(detections) == 0 {
		return text, 0
	}

	out := make([]byte, 0, len(text))
	last := 0
	for _, d := range detections {
		out = append(out, text[last:d.StartPos]...)
		out = append(out, placeholder(d.Type)...)
		last = d.EndPos
	}
	out = append(out, text[last:]...)
	return string(out), len(detections)
}

// merge sorts detections and folds overlapping spans into the earliest one
func merge(found []Detection) []Detection {
	if len(found) < 2 {
		return found
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].StartPos != found[j].StartPos {
			return found[i].StartPos < found[j].StartPos
		}
		return found[i].EndPos > found[j].EndPos
	})

	merged := []Detection{found[0]}
	for _, d := range found[1:] {
		last := &merged[len(merged)-1]
		if d.StartPos < last.EndPos {
			if d.EndPos > last.EndPos {
				last.EndPos = d.EndPos
			}
			continue
		}
		merged = append(merged, d)
	}
	return merged
}

func placeholder(kind SecretType) string {
	switch kind {
	case SecretTypePrivateKey:
		return "[PRIVATE_KEY_REDACTED]"
	case SecretTypeGCPKey:
		return "[GCP_KEY_REDACTED]"
	case SecretTypeAWSKey:
		return "[AWS_KEY_REDACTED]"
	case SecretTypeJWT:
		return "[JWT_REDACTED]"
	case SecretTypeOpenAIKey:
		return "[API_KEY_REDACTED]"
	case SecretTypeGitHubToken:
		return "[GITHUB_TOKEN_REDACTED]"
	case SecretTypeSlackToken:
		return "[SLACK_TOKEN_REDACTED]"
	case SecretTypeStripeKey:
		return "[STRIPE_KEY_REDACTED]"
	case SecretTypePassword:
		return "[PASSWORD_REDACTED]"
	case SecretTypeDatabaseURL:
		return "[DATABASE_URL_REDACTED]"
	default:
		return "[SECRET_REDACTED]"
	}
}
