package middleware

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/platinummonkey/keystone-auth/pkg/auth"
	"github.com/platinummonkey/keystone-auth/pkg/contextkeys"
	"github.com/platinummonkey/keystone-auth/pkg/httputil"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/session"
)

// UserResolver rebuilds the current user from the request's session.
// It never returns nil; a session without a usable user yields an
// anonymous user.
type UserResolver interface {
	ResolveUser(ctx context.Context, sess session.Session) *auth.User
}

// userHolder is the per-request current user. Views replace it after
// login, logout and project switches.
type userHolder struct {
	mu   sync.RWMutex
	user *auth.User
}

func (h *userHolder) get() *auth.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.user
}

func (h *userHolder) set(user *auth.User) {
	h.mu.Lock()
	h.user = user
	h.mu.Unlock()
}

// AuthMiddleware resolves the current user once per request
type AuthMiddleware struct {
	resolver UserResolver
	logger   *observability.Logger
}

// NewAuthMiddleware creates the current-user middleware
func NewAuthMiddleware(resolver UserResolver, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuthMiddleware{
		resolver: resolver,
		logger:   logger.WithComponent("auth_middleware"),
	}
}

// Handler wraps next so that CurrentUser works inside it. Sessions whose
// token has expired are flushed and the request proceeds anonymously.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user := auth.AnonymousUser()

		if sess, ok := session.FromContext(ctx); ok {
			user = m.resolver.ResolveUser(ctx, sess)
			if expired, ok := user.IsTokenExpired(); ok && expired {
				m.logger.WithField("user_id", user.ID).Info("Session token expired, logging out")
				sess.Flush()
				user = auth.AnonymousUser()
			}
		}

		ctx = contextkeys.WithCurrentUser(ctx, &userHolder{user: user})
		if user.IsAuthenticated() {
			ctx = contextkeys.WithUserID(ctx, user.ID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func holderFrom(ctx context.Context) *userHolder {
	holder, _ := ctx.Value(contextkeys.CurrentUserKey).(*userHolder)
	return holder
}

// CurrentUser returns the user AuthMiddleware resolved for r, or an
// anonymous user outside the middleware.
func CurrentUser(r *http.Request) *auth.User {
	if holder := holderFrom(r.Context()); holder != nil {
		if user := holder.get(); user != nil {
			return user
		}
	}
	return auth.AnonymousUser()
}

// SetCurrentUser replaces the current user for the rest of the request.
// It is a no-op outside AuthMiddleware.
func SetCurrentUser(r *http.Request, user *auth.User) {
	if holder := holderFrom(r.Context()); holder != nil {
		holder.set(user)
	}
}

// LoginRedirect sends the client to loginURL with the current path as next
func LoginRedirect(w http.ResponseWriter, r *http.Request, loginURL string) {
	target, err := url.Parse(loginURL)
	if err != nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	q := target.Query()
	q.Set("next", r.URL.RequestURI())
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// RequireLogin redirects anonymous users to loginURL
func RequireLogin(loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !CurrentUser(r).IsAuthenticated() {
				LoginRedirect(w, r, loginURL)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePerms rejects users that do not satisfy every requirement.
// Anonymous users get a 401 rather than a 403.
func RequirePerms(reqs ...auth.PermRequirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r)
			if !user.IsAuthenticated() {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !user.HasPerms(reqs...) {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperuser rejects users without the admin role
func RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if !user.IsAuthenticated() {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if !user.IsSuperuser() {
			httputil.WriteForbidden(w, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
