// Package observability builds the zap logger used across sqlpilot and
// carries request-scoped fields through context.
package observability
