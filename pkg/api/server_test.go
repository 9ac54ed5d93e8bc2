package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/keystone-auth/pkg/auth"
	"github.com/platinummonkey/keystone-auth/pkg/httputil"
	"github.com/platinummonkey/keystone-auth/pkg/middleware"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/session"
)

type profileView struct{}

func (profileView) RegisterRoutes(router *mux.Router) {
	router.Handle("/profile/", middleware.RequireLogin("/auth/login/")(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"username": middleware.CurrentUser(r).Username})
		},
	))).Methods("GET")
}

func newTestServer(t *testing.T) (*Server, *fakeBackend, *session.MemoryStore) {
	t.Helper()
	backend := &fakeBackend{users: map[string]*auth.User{}}
	store := session.NewMemoryStore(0, 0)
	registry := prometheus.NewRegistry()

	srv := NewServer(testConfig(), ServerOptions{
		Backend:  backend,
		Resolver: backend,
		Sessions: session.NewManager(store, "", false),
		Health:   observability.NewHealthChecker("test"),
		Registry: registry,
		Metrics:  observability.NewAuthMetrics(registry),
	})
	srv.RegisterRoutes(profileView{})
	return srv, backend, store
}

func TestServer_LoginThenHostView(t *testing.T) {
	srv, backend, store := newTestServer(t)
	backend.loginUser = newUser("u-1", "p-1")

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, postForm("/auth/login/", url.Values{"username": {"alice"}, "password": {"secret"}}))
	require.Equal(t, http.StatusFound, w.Code)
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	sess, ok := store.Load(cookie.Value)
	require.True(t, ok)
	backend.users["u-1"] = backend.loginUser
	assert.Equal(t, "u-1", session.GetString(sess, session.KeyUserID))

	r := httptest.NewRequest("GET", "/profile/", nil)
	r.AddCookie(cookie)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["username"])
}

func TestServer_HostViewRequiresLogin(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/profile/", nil))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/login/?next=%2Fprofile%2F", w.Header().Get("Location"))
}

func TestServer_OperationalRoutesSkipSessions(t *testing.T) {
	srv, _, store := newTestServer(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Empty(t, w.Result().Cookies(), path)
	}
	assert.Equal(t, 0, store.Len())
}

func TestServer_UnknownRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/nope/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
