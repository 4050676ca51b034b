package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	runIDCtxKey contextKey = "run_id"
	appCtxKey   contextKey = "app"
)

// Attribute keys added to log records from the context.
const (
	RunIDKey = "run_id"
	AppKey   = "app"
)

// WithRunID tags the context with the id of one bridge run. An empty id
// generates a new UUID.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, runIDCtxKey, id)
}

// RunIDFromContext extracts the run id from context.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(runIDCtxKey).(string); ok {
		return id
	}
	return ""
}

// WithApp tags the context with the application name.
func WithApp(ctx context.Context, app string) context.Context {
	return context.WithValue(ctx, appCtxKey, app)
}

// AppFromContext extracts the application name from context.
func AppFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if app, ok := ctx.Value(appCtxKey).(string); ok {
		return app
	}
	return ""
}
