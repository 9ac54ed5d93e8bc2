package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccessInfoV3ProjectScoped(t *testing.T) {
	access, err := ParseAccessInfo(V3, []byte(v3ProjectTokenBody), "subject-token")
	require.NoError(t, err)

	assert.Equal(t, V3, access.Version())
	assert.Equal(t, "subject-token", access.AuthToken())
	assert.Equal(t, time.Date(2031, 3, 6, 15, 19, 27, 0, time.UTC), access.Expires())
	assert.Equal(t, "u-1", access.UserID())
	assert.Equal(t, "gabriel", access.Username())
	assert.Equal(t, "d-1", access.UserDomainID())
	assert.Equal(t, "domain", access.UserDomainName())
	assert.Equal(t, "p-1", access.ProjectID())
	assert.Equal(t, "tenant_one", access.ProjectName())
	assert.True(t, access.ProjectScoped())
	assert.False(t, access.IsFederated())

	require.Len(t, access.Roles(), 2)
	assert.Equal(t, "admin", access.Roles()[1].Name)

	catalog := access.ServiceCatalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, ServiceTypeIdentity, catalog[0].Type)
	assert.Equal(t, "RegionOne", catalog[0].Endpoints[0].RegionName())
	assert.Equal(t, "RegionTwo", catalog[1].Endpoints[0].RegionName())
}

func TestParseAccessInfoV3Federated(t *testing.T) {
	access, err := ParseAccessInfo(V3, []byte(v3UnscopedFederatedBody), "fed-token")
	require.NoError(t, err)

	assert.True(t, access.IsFederated())
	assert.False(t, access.ProjectScoped())
	assert.Empty(t, access.ProjectID())
	assert.Empty(t, access.UserDomainID())
}

func TestParseAccessInfoV3RequiresSubjectToken(t *testing.T) {
	_, err := ParseAccessInfo(V3, []byte(v3ProjectTokenBody), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestParseAccessInfoV2(t *testing.T) {
	access, err := ParseAccessInfo(V2, []byte(v2ScopedBody), "")
	require.NoError(t, err)

	assert.Equal(t, V2, access.Version())
	assert.Equal(t, "v2-token-id", access.AuthToken())
	assert.Equal(t, "u-2", access.UserID())
	assert.Equal(t, "gabriel", access.Username())
	assert.Equal(t, DefaultDomainID, access.UserDomainID())
	assert.Equal(t, "t-1", access.ProjectID())
	assert.Equal(t, "tenant_one", access.ProjectName())
	assert.True(t, access.ProjectScoped())

	catalog := access.ServiceCatalog()
	require.Len(t, catalog, 1)
	require.Len(t, catalog[0].Endpoints, 3)
	assert.Equal(t, "public", catalog[0].Endpoints[0].Interface)
	assert.Equal(t, "http://nova-public.localhost:8774/v2.0/t-1", catalog[0].Endpoints[0].URL)
	assert.Equal(t, "RegionOne", catalog[0].Endpoints[2].RegionName())
}

func TestParseAccessInfoMalformed(t *testing.T) {
	tests := []struct {
		name    string
		version Version
		body    string
	}{
		{"v2 not json", V2, "nope"},
		{"v2 missing access", V2, `{}`},
		{"v2 missing token id", V2, `{"access": {"token": {}}}`},
		{"v3 not json", V3, "nope"},
		{"v3 missing token", V3, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccessInfo(tt.version, []byte(tt.body), "subject")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedResponse))
		})
	}
}

func TestParseExpiry(t *testing.T) {
	want := time.Date(2031, 3, 6, 15, 19, 27, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", "2031-03-06T15:19:27Z", want},
		{"fractional", "2031-03-06T15:19:27.000000Z", want},
		{"offset", "2031-03-06T16:19:27+01:00", want},
		{"naive is utc", "2031-03-06T15:19:27", want},
		{"naive fractional", "2031-03-06T15:19:27.000000", want},
		{"empty", "", time.Time{}},
		{"garbage", "tomorrow", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseExpiry(tt.input)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
