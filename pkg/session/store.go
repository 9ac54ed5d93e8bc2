package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/keystone-auth/pkg/contextkeys"
	"github.com/platinummonkey/keystone-auth/pkg/httputil"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

// DefaultCookieName names the session id cookie set by Manager
const DefaultCookieName = "sessionid"

// ErrNotFound is returned by Store.Get for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// Store persists sessions for Manager
type Store interface {
	// Get returns the live session with id, or ErrNotFound
	Get(ctx context.Context, id string) (Session, error)
	// Create returns a new empty session with a fresh id
	Create(ctx context.Context) (Session, error)
	// Save persists sess and refreshes its lifetime
	Save(ctx context.Context, sess Session) error
	// Delete drops the session with id; unknown ids are not an error
	Delete(ctx context.Context, id string) error
	// Rotate moves sess to a fresh id, keeping its values. The old id no
	// longer resolves.
	Rotate(ctx context.Context, sess Session) error
}

// KeyCycler is implemented by host sessions that can change their own id
type KeyCycler interface {
	CycleKey(ctx context.Context) error
}

// CycleKey gives sess a new id so an id known before login cannot be used
// after it. Sessions served by Manager get a new cookie; host sessions must
// implement KeyCycler, otherwise the id is kept.
func CycleKey(ctx context.Context, sess Session) error {
	if c, ok := ctx.Value(contextkeys.SessionCyclerKey).(*cycler); ok && c.sess == sess {
		return c.cycle(ctx)
	}
	if kc, ok := sess.(KeyCycler); ok {
		return kc.CycleKey(ctx)
	}
	return nil
}

type cycler struct {
	manager *Manager
	w       http.ResponseWriter
	sess    Session
}

func (c *cycler) cycle(ctx context.Context) error {
	if err := c.manager.store.Rotate(ctx, c.sess); err != nil {
		return err
	}
	c.manager.setCookie(c.w, c.sess.ID())
	return nil
}

// Manager binds Store sessions to requests through a cookie
type Manager struct {
	store      Store
	cookieName string
	secure     bool
}

// NewManager creates a manager. secure marks the cookie HTTPS-only.
func NewManager(store Store, cookieName string, secure bool) *Manager {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Manager{store: store, cookieName: cookieName, secure: secure}
}

// Middleware loads the visitor's session, creating one when the cookie is
// missing or stale, and attaches it to the request context. The session is
// saved once the wrapped handler returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.FromContext(ctx)

		var sess Session
		if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
			loaded, err := m.store.Get(ctx, c.Value)
			switch {
			case err == nil:
				sess = loaded
			case !errors.Is(err, ErrNotFound):
				logger.WithError(err).Warn("Failed to load session, starting a new one")
			}
		}
		if sess == nil {
			created, err := m.store.Create(ctx)
			if err != nil {
				logger.WithError(err).Error("Failed to create session")
				httputil.WriteServiceUnavailable(w, "Session storage is unavailable.")
				return
			}
			sess = created
			m.setCookie(w, sess.ID())
		}

		ctx = WithSession(ctx, sess)
		ctx = context.WithValue(ctx, contextkeys.SessionCyclerKey, &cycler{manager: m, w: w, sess: sess})
		next.ServeHTTP(w, r.WithContext(ctx))

		if err := m.store.Save(ctx, sess); err != nil {
			logger.WithError(err).Error("Failed to save session")
		}
	})
}

// setCookie sets the session cookie, replacing one set earlier in the
// same response
func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	prefix := m.cookieName + "="
	var kept []string
	for _, v := range w.Header().Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	w.Header()["Set-Cookie"] = kept
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
