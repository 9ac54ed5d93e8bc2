// Package session defines the session contract the authentication backend
// writes to, plus cookie-bound stores for hosts without their own: an
// in-process LRU and a SQL table for PostgreSQL or SQLite.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/keystone-auth/pkg/contextkeys"
)

// Keys written by the authentication backend
const (
	KeyToken          = "token"
	KeyUserID         = "user_id"
	KeyRegionEndpoint = "region_endpoint"
	KeyServicesRegion = "services_region"
	KeyRegionName     = "region_name"
	KeyUnscopedToken  = "unscoped_token"
)

// ServicesRegionCookie remembers the selected services region across
// sessions.
const ServicesRegionCookie = "services_region"

// CookieLifetime is how long region preference cookies live
const CookieLifetime = 365 * 24 * time.Hour

// Session is a per-visitor key/value store owned by the host application.
// Implementations must be safe for use by one request at a time.
type Session interface {
	ID() string
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Delete(key string)
	// Flush removes every value
	Flush()
}

// GetString returns the string stored at key, or "" when absent or of
// another type.
func GetString(sess Session, key string) string {
	if sess == nil {
		return ""
	}
	v, ok := sess.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// WithSession attaches sess to ctx
func WithSession(ctx context.Context, sess Session) context.Context {
	return contextkeys.WithSession(ctx, sess)
}

// FromContext returns the session attached by the host or by Manager
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(contextkeys.SessionKey).(Session)
	return sess, ok && sess != nil
}

// SetResponseCookie sets a cookie that expires CookieLifetime after now
func SetResponseCookie(w http.ResponseWriter, name, value string, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  now.Add(CookieLifetime),
		MaxAge:   int(CookieLifetime / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
