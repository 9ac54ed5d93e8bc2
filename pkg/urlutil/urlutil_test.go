package urlutil

import (
	"bytes"
	"crypto/tls"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

func TestHasInURLPath(t *testing.T) {
	assert.True(t, HasInURLPath("http://x/v2.0", "/v2.0"))
	assert.True(t, HasInURLPath("http://x:5000/identity/v2.0/tokens", "/v2.0"))
	assert.False(t, HasInURLPath("http://v2.0.example.com/v3", "/v2.0"))
	assert.False(t, HasInURLPath("http://x/v3?next=/v2.0", "/v2.0"))
}

func TestURLPathReplace(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		count int
		want  string
	}{
		{"single", "http://x/v2.0", 1, "http://x/v3"},
		{"first only", "http://x/v2.0/v2.0", 1, "http://x/v3/v2.0"},
		{"all", "http://x/v2.0/v2.0", -1, "http://x/v3/v3"},
		{"query untouched", "http://x/v2.0?q=/v2.0", -1, "http://x/v3?q=/v2.0"},
		{"host untouched", "http://v2.0.example.com/v2.0", 1, "http://v2.0.example.com/v3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, URLPathReplace(tt.url, "/v2.0", "/v3", tt.count))
		})
	}
}

func TestFixAuthURLVersion(t *testing.T) {
	fixWarnOnce = sync.Once{}
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.WarnLevel, &buf)

	assert.Equal(t, "http://x/v3", FixAuthURLVersion("http://x/v2.0", identity.V3, logger))
	assert.Equal(t, "http://y/v3", FixAuthURLVersion("http://y/v2.0", identity.V3, logger))
	assert.Equal(t, 1, strings.Count(buf.String(), "v2.0 identity endpoint"), "warning is logged once")

	assert.Equal(t, "http://x/v3", FixAuthURLVersion("http://x/v3", identity.V3, logger))
	assert.Equal(t, "http://x/v2.0", FixAuthURLVersion("http://x/v2.0", identity.V2, logger))
	assert.Equal(t, "http://x/v2.0", FixAuthURLVersion("http://x/v2.0", identity.V2, nil))
}

func TestBuildAbsoluteURI(t *testing.T) {
	r := httptest.NewRequest("GET", "http://testserver/auth/login/", nil)

	assert.Equal(t, "http://testserver/auth/websso/", BuildAbsoluteURI(r, "/", "/auth/websso/"))
	assert.Equal(t, "http://testserver/dashboard/auth/websso/", BuildAbsoluteURI(r, "/dashboard/", "/auth/websso/"))
	assert.Equal(t, "http://testserver/dashboard/auth/websso/", BuildAbsoluteURI(r, "/dashboard", "/auth/websso/"))
	assert.Equal(t, "http://testserver/auth/websso/", BuildAbsoluteURI(r, "", "/auth/websso/"))

	r.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://testserver/auth/websso/", BuildAbsoluteURI(r, "/", "/auth/websso/"))

	r = httptest.NewRequest("GET", "http://testserver/", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://testserver/x", BuildAbsoluteURI(r, "", "/x"))
}

func TestIsSafeURL(t *testing.T) {
	tests := []struct {
		target string
		want   bool
	}{
		{"", false},
		{"/project/", true},
		{"project/", true},
		{"http://testserver/project/", true},
		{"https://testserver/project/", true},
		{"http://evil.example.com/", false},
		{"//evil.example.com/", false},
		{`\\evil.example.com/`, false},
		{"//testserver/ok", true},
		{"javascript:alert(1)", false},
		{"http:evil.example.com", false},
		{"https:evil.example.com/path", false},
		{"http:/evil.example.com", false},
		{"http:///evil.example.com", false},
		{"http:testserver", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafeURL(tt.target, "testserver"))
		})
	}
}
