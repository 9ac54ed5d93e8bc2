package websso

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	mapping := Mapping{"acme_oidc": {IdP: "acme", Protocol: "oidc"}}
	origin := "http://testserver/auth/websso/"

	tests := []struct {
		name   string
		choice string
		want   string
	}{
		{
			name:   "mapped choice",
			choice: "acme_oidc",
			want:   "https://idp/v3/auth/OS-FEDERATION/identity_providers/acme/protocols/oidc/websso?origin=http://testserver/auth/websso/",
		},
		{
			name:   "unmapped choice is a protocol",
			choice: "saml2",
			want:   "https://idp/v3/auth/OS-FEDERATION/websso/saml2?origin=http://testserver/auth/websso/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, URL("https://idp/v3", tt.choice, origin, mapping))
		})
	}
}

func TestURLNilMapping(t *testing.T) {
	assert.Equal(t,
		"http://localhost:5000/v3/auth/OS-FEDERATION/websso/oidc?origin=o",
		URL("http://localhost:5000/v3", "oidc", "o", nil))
}

func TestRequestURL(t *testing.T) {
	r := httptest.NewRequest("POST", "http://testserver/auth/login/", nil)
	mapping := Mapping{"acme_saml2": {IdP: "acme", Protocol: "saml2"}}

	assert.Equal(t, "http://testserver/auth/websso/", OriginURL(r, "/"))
	assert.Equal(t,
		"http://localhost:5000/v3/auth/OS-FEDERATION/identity_providers/acme/protocols/saml2/websso?origin=http://testserver/auth/websso/",
		RequestURL(r, "/", "http://localhost:5000/v3", "acme_saml2", mapping))
}

func TestParseMapping(t *testing.T) {
	m, err := ParseMapping("acme_oidc=acme:oidc, acme_saml2 = acme:saml2,")
	require.NoError(t, err)
	assert.Equal(t, Mapping{
		"acme_oidc":  {IdP: "acme", Protocol: "oidc"},
		"acme_saml2": {IdP: "acme", Protocol: "saml2"},
	}, m)
	assert.NoError(t, m.Validate())

	empty, err := ParseMapping("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"acme", "acme=oidc", "acme=:oidc", "acme=idp:"} {
		_, err := ParseMapping(bad)
		assert.Error(t, err, bad)
	}

	assert.Error(t, Mapping{"x": {IdP: "acme"}}.Validate())
}

func TestParseChoices(t *testing.T) {
	choices, err := ParseChoices("credentials=Keystone Credentials,oidc=OpenID Connect")
	require.NoError(t, err)
	assert.Equal(t, []Choice{
		{ID: "credentials", Label: "Keystone Credentials"},
		{ID: "oidc", Label: "OpenID Connect"},
	}, choices)

	_, err = ParseChoices("=nolabel")
	assert.Error(t, err)
}
