// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the module must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/keystone-auth/pkg/contextkeys"
//	ctx = contextkeys.WithSession(ctx, sess)
//	sess, _ := ctx.Value(contextkeys.SessionKey).(session.Session)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// CurrentUserKey contains the per-request current user holder
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: middleware.CurrentUser, guards, auth views
	// Type: *middleware.userHolder (unexported)
	CurrentUserKey Key = "current_user"

	// SessionKey contains the host session for this request
	// Set by: session.Manager.Middleware or the host application
	// Required by: auth middleware, auth views
	// Type: session.Session
	SessionKey Key = "session"

	// SessionCyclerKey lets handlers move the request's session to a new id
	// Set by: session.Manager.Middleware
	// Required by: session.CycleKey
	// Type: *session.cycler (unexported)
	SessionCyclerKey Key = "session_cycler"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the identity-service user id
	// Set by: Auth middleware once the current user is resolved
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithSession adds the host session to the context
func WithSession(ctx context.Context, sess interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// WithCurrentUser adds the current-user holder to the context
func WithCurrentUser(ctx context.Context, holder interface{}) context.Context {
	return context.WithValue(ctx, CurrentUserKey, holder)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
