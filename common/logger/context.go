package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so business context
// (issue number, provider, challenge id) shows up on every log statement
// without each call site repeating it.
type LogFields struct {
	IssueNumber  *int    // tracker-side issue number
	Provider     *string // "github" or "gitlab"
	RepositoryID *int64  // tracker-side repository id
	ChallengeID  *string // platform challenge id, once known
	MessageID    *string // Redis stream message ID
	EventType    *string // canonical event type (e.g. "issue.created")
	Component    string  // component name (e.g. "tcx.engine.closed")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.IssueNumber != nil {
		result.IssueNumber = new.IssueNumber
	}
	if new.Provider != nil {
		result.Provider = new.Provider
	}
	if new.RepositoryID != nil {
		result.RepositoryID = new.RepositoryID
	}
	if new.ChallengeID != nil {
		result.ChallengeID = new.ChallengeID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging potentially long bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
