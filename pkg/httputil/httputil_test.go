package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/keystone-auth/pkg/contextkeys"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

func TestWriteErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		body   string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad") }, http.StatusBadRequest, "bad"},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "who") }, http.StatusUnauthorized, "who"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "no") }, http.StatusForbidden, "no"},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "gone") }, http.StatusNotFound, "gone"},
		{"too many", func(w http.ResponseWriter) { WriteTooManyRequests(w, "slow down") }, http.StatusTooManyRequests, "slow down"},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "down") }, http.StatusServiceUnavailable, "down"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w) }, http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.body, resp.Error)
		})
	}
}

func TestWriteDetailedError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteDetailedError(w, http.StatusBadRequest, "invalid login", map[string]string{"username": "username is required"})

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid login", resp.Error)
	assert.Equal(t, "username is required", resp.Details["username"])
}

func TestParseValues(t *testing.T) {
	t.Run("form", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader("username=alice&password=secret"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		values, err := ParseValues(httptest.NewRecorder(), r)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"username": "alice", "password": "secret"}, values)
	})

	t.Run("json", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"username":"alice","region":"http://k/v3"}`))
		r.Header.Set("Content-Type", "application/json; charset=utf-8")

		values, err := ParseValues(httptest.NewRecorder(), r)
		require.NoError(t, err)
		assert.Equal(t, "alice", values["username"])
		assert.Equal(t, "http://k/v3", values["region"])
	})

	t.Run("invalid json", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"username":`))
		r.Header.Set("Content-Type", "application/json")

		_, err := ParseValues(httptest.NewRecorder(), r)
		assert.Error(t, err)
	})
}

func TestRequireNonEmpty(t *testing.T) {
	details := map[string]string{}
	ok := RequireNonEmpty(map[string]string{"username": "alice"}, details, "username", "password")

	assert.False(t, ok)
	assert.Equal(t, map[string]string{"password": "password is required"}, details)
	assert.True(t, RequireNonEmpty(map[string]string{"a": "x"}, map[string]string{}, "a"))
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest("GET", "/auth/switch/p-1/", nil), map[string]string{"project_id": "p-1"})

	got, err := ParsePathString(r, "project_id")
	require.NoError(t, err)
	assert.Equal(t, "p-1", got)

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, r, "region")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryString(t *testing.T) {
	r := httptest.NewRequest("GET", "/?next=/home", nil)
	assert.Equal(t, "/home", ParseQueryString(r, "next", "/"))
	assert.Equal(t, "/", ParseQueryString(r, "missing", "/"))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err, "generated ids are UUIDs")
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	incoming := uuid.NewString()
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(RequestIDHeader, incoming)
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, incoming, seen)

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set(RequestIDHeader, "<script>")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.NotEqual(t, "<script>", seen, "malformed incoming ids are replaced")
}

func TestLoggingAndRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	handler := Chain(
		RequestIDMiddleware(logger),
		RecoveryMiddleware,
		LoggingMiddleware,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/panic" {
			panic("boom")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "/ok", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.NotEmpty(t, entry["request_id"])

	buf.Reset()
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "panic serving request")
}
