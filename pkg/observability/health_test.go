package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(ctx context.Context) error { return errors.New("connection refused") }
func passing(ctx context.Context) error { return nil }

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		identity CheckFunc
		redis    CheckFunc
		want     string
	}{
		{"all healthy", passing, passing, StatusHealthy},
		{"optional down", passing, failing, StatusDegraded},
		{"required down", failing, passing, StatusUnhealthy},
		{"both down", failing, failing, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("1.2.3")
			h.AddCheck("identity", tt.identity, true)
			h.AddCheck("redis", tt.redis, false)

			status := h.Check(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Equal(t, "1.2.3", status.Version)
			assert.Len(t, status.Dependencies, 2)
		})
	}
}

func TestHealthChecker_NoChecksIsHealthy(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewHealthChecker("").Check(context.Background()).Status)
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	assert.NoError(t, RedisCheck(client)(context.Background()))

	mr.SetError("LOADING")
	assert.Error(t, RedisCheck(client)(context.Background()))
}

func TestHTTPCheck(t *testing.T) {
	status := http.StatusUnauthorized
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	check := HTTPCheck(srv.Client(), srv.URL+"/v3")
	assert.NoError(t, check(context.Background()), "auth errors still mean reachable")

	status = http.StatusBadGateway
	assert.Error(t, check(context.Background()))

	srv.Close()
	assert.Error(t, check(context.Background()))
}

func TestHealthRoutes(t *testing.T) {
	h := NewHealthChecker("dev")
	h.AddCheck("identity", failing, true)
	router := mux.NewRouter()
	RegisterHealthRoutes(router, h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{"/health", "/health/ready"} {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "connection refused", status.Dependencies["identity"].Message)
	}
}
