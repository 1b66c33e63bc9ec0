package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// NotebookKey is the context key for the notebook (project) identifier.
	NotebookKey contextKey = "notebook_id"

	// FormKey is the context key for the form (viewset) identifier.
	FormKey contextKey = "form"

	// DatabaseKey is the context key for the database being restored or dumped.
	DatabaseKey contextKey = "database"

	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithNotebook adds a notebook identifier to the context.
func WithNotebook(ctx context.Context, notebookID string) context.Context {
	return context.WithValue(ctx, NotebookKey, notebookID)
}

// GetNotebook retrieves the notebook identifier from the context.
func GetNotebook(ctx context.Context) string {
	if id, ok := ctx.Value(NotebookKey).(string); ok {
		return id
	}
	return ""
}

// WithForm adds a form identifier to the context.
func WithForm(ctx context.Context, form string) context.Context {
	return context.WithValue(ctx, FormKey, form)
}

// GetForm retrieves the form identifier from the context.
func GetForm(ctx context.Context) string {
	if form, ok := ctx.Value(FormKey).(string); ok {
		return form
	}
	return ""
}

// WithDatabase adds a database name to the context.
func WithDatabase(ctx context.Context, database string) context.Context {
	return context.WithValue(ctx, DatabaseKey, database)
}

// GetDatabase retrieves the database name from the context.
func GetDatabase(ctx context.Context) string {
	if db, ok := ctx.Value(DatabaseKey).(string); ok {
		return db
	}
	return ""
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, string(RequestIDKey), requestID)
	}
	if notebook := GetNotebook(ctx); notebook != "" {
		fields = append(fields, string(NotebookKey), notebook)
	}
	if form := GetForm(ctx); form != "" {
		fields = append(fields, string(FormKey), form)
	}
	if db := GetDatabase(ctx); db != "" {
		fields = append(fields, string(DatabaseKey), db)
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, string(TraceIDKey), traceID)
	}

	return fields
}
