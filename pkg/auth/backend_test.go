package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/projects"
	"github.com/platinummonkey/keystone-auth/pkg/session"
)

func newTestBackend(client identity.Client, metrics *observability.AuthMetrics) *Backend {
	return NewBackend(client, nil, BackendConfig{
		DefaultAuthURL: "http://keystone:5000/v3",
		Now:            fixedClock,
	}, nil, metrics)
}

func unscopedLoginFixture(t *testing.T) *fakeIdentity {
	return &fakeIdentity{
		passwordAccess: v3Access(t, accessSpec{tokenID: "unscoped"}),
		projects: []identity.Project{
			{ID: "p-zeta", Name: "zeta", Enabled: true},
			{ID: "p-alpha", Name: "alpha", Enabled: true},
			{ID: "p-beta", Name: "Beta", Enabled: true},
		},
		scoped: map[string]identity.AccessInfo{
			"p-beta": v3Access(t, accessSpec{tokenID: "scoped-beta", projectID: "p-beta", project: "Beta", roles: []string{"member"}}),
			"p-zeta": v3Access(t, accessSpec{tokenID: "scoped-zeta", projectID: "p-zeta", project: "zeta"}),
		},
	}
}

func TestBackendAuthenticateScopesFirstAcceptedProject(t *testing.T) {
	client := unscopedLoginFixture(t)
	registry := prometheus.NewRegistry()
	metrics := observability.NewAuthMetrics(registry)
	backend := newTestBackend(client, metrics)

	user, err := backend.Authenticate(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)

	// alpha is tried first (sorted) and refused, Beta is accepted.
	assert.Equal(t, "p-beta", user.ProjectID)
	assert.Equal(t, "scoped-beta", user.Token.ID)
	assert.Equal(t, "unscoped", user.UnscopedToken)
	assert.Equal(t, "http://keystone:5000/v3", user.Endpoint)
	assert.True(t, user.IsAuthenticated())
	assert.Equal(t, StateScoped, user.State())

	require.Len(t, client.tokenAuths, 2)
	assert.Equal(t, identity.TokenAuth{Token: "unscoped", ProjectID: "p-alpha"}, client.tokenAuths[0])
	assert.Equal(t, identity.TokenAuth{Token: "unscoped", ProjectID: "p-beta"}, client.tokenAuths[1])

	pw, ok := client.lastAuth.(identity.TokenAuth)
	require.True(t, ok)
	assert.Equal(t, "p-beta", pw.ProjectID)

	// Projects fetched during login are handed to the user.
	assert.Len(t, user.AuthorizedProjects(context.Background()), 3)
	assert.Equal(t, 1, client.listCalls)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LoginsTotal.WithLabelValues(observability.LoginSuccess)))
}

func TestBackendAuthenticateUsesDefaultDomain(t *testing.T) {
	client := &fakeIdentity{passwordAccess: v3Access(t, accessSpec{tokenID: "tok", projectID: "p-1"})}
	backend := newTestBackend(client, nil)

	_, err := backend.Authenticate(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)

	pw, ok := client.lastAuth.(identity.PasswordAuth)
	require.True(t, ok)
	assert.Equal(t, "Default", pw.UserDomainName)

	_, err = backend.Authenticate(context.Background(), Credentials{Username: "alice", Password: "secret", Domain: "ldap"})
	require.NoError(t, err)
	assert.Equal(t, "ldap", client.lastAuth.(identity.PasswordAuth).UserDomainName)
}

func TestBackendAuthenticateDefaultProjectScope(t *testing.T) {
	client := &fakeIdentity{passwordAccess: v3Access(t, accessSpec{tokenID: "scoped", projectID: "p-1", project: "demo"})}
	backend := newTestBackend(client, nil)

	user, err := backend.Authenticate(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "p-1", user.ProjectID)
	assert.Equal(t, 0, client.listCalls, "a project-scoped login needs no project listing")
	assert.Empty(t, client.tokenAuths)
}

func TestBackendAuthenticateErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) *fakeIdentity
		want    *AuthError
		message string
	}{
		{
			name: "invalid credentials",
			setup: func(t *testing.T) *fakeIdentity {
				return &fakeIdentity{passwordErr: &identity.ClientError{StatusCode: 401, Err: identity.ErrUnauthorized}}
			},
			want:    ErrInvalidCredentials,
			message: "Invalid user name or password.",
		},
		{
			name: "unknown user",
			setup: func(t *testing.T) *fakeIdentity {
				return &fakeIdentity{passwordErr: &identity.ClientError{StatusCode: 404, Err: identity.ErrNotFound}}
			},
			want:    ErrInvalidCredentials,
			message: "Invalid user name or password.",
		},
		{
			name: "service unavailable",
			setup: func(t *testing.T) *fakeIdentity {
				return &fakeIdentity{passwordErr: &identity.ClientError{StatusCode: 503}}
			},
			want:    ErrAuthServiceFailure,
			message: "An error occurred authenticating. Please try again later.",
		},
		{
			name: "unscoped token already expired",
			setup: func(t *testing.T) *fakeIdentity {
				return &fakeIdentity{passwordAccess: v3Access(t, accessSpec{tokenID: "tok", expires: testNow.Add(-time.Minute)})}
			},
			want:    ErrTokenExpired,
			message: "The authentication token issued by the Identity service has expired.",
		},
		{
			name: "project listing fails",
			setup: func(t *testing.T) *fakeIdentity {
				return &fakeIdentity{
					passwordAccess: v3Access(t, accessSpec{tokenID: "tok"}),
					listErr:        identity.ErrForbidden,
				}
			},
			want:    ErrProjectsUnavailable,
			message: "Unable to retrieve authorized projects.",
		},
		{
			name: "no projects",
			setup: func(t *testing.T) *fakeIdentity {
				return &fakeIdentity{passwordAccess: v3Access(t, accessSpec{tokenID: "tok"})}
			},
			want:    ErrNoProjects,
			message: "You are not authorized for any projects.",
		},
		{
			name: "no project accepts the token",
			setup: func(t *testing.T) *fakeIdentity {
				return &fakeIdentity{
					passwordAccess: v3Access(t, accessSpec{tokenID: "tok"}),
					projects:       []identity.Project{{ID: "p-1", Name: "one"}},
				}
			},
			want:    ErrNoProjectAuthorized,
			message: "Unable to authenticate to any available projects.",
		},
		{
			name: "scoped token already expired",
			setup: func(t *testing.T) *fakeIdentity {
				return &fakeIdentity{
					passwordAccess: v3Access(t, accessSpec{tokenID: "tok"}),
					projects:       []identity.Project{{ID: "p-1", Name: "one"}},
					scoped: map[string]identity.AccessInfo{
						"p-1": v3Access(t, accessSpec{tokenID: "s", projectID: "p-1", expires: testNow.Add(-time.Second)}),
					},
				}
			},
			want:    ErrTokenExpired,
			message: "The authentication token issued by the Identity service has expired.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newTestBackend(tt.setup(t), nil)
			user, err := backend.Authenticate(context.Background(), Credentials{Username: "alice", Password: "secret"})
			assert.Nil(t, user)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestBackendAuthenticateWithToken(t *testing.T) {
	client := unscopedLoginFixture(t)
	client.passwordAccess = v3Access(t, accessSpec{tokenID: "websso", federated: true})
	backend := newTestBackend(client, nil)

	user, err := backend.AuthenticateWithToken(context.Background(), "websso", "")
	require.NoError(t, err)
	assert.Equal(t, "p-beta", user.ProjectID)
	assert.Equal(t, "websso", user.UnscopedToken)
	assert.Equal(t, identity.TokenAuth{Token: "websso"}, client.tokenAuths[0])
}

func TestBackendSessionRoundTrip(t *testing.T) {
	client := unscopedLoginFixture(t)
	backend := newTestBackend(client, nil)
	store := session.NewMemoryStore(10, time.Hour)
	sess := store.New()

	user, err := backend.Authenticate(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	user.SetServicesRegion("RegionThree")
	SetSessionFromUser(sess, user)

	assert.Equal(t, "u-1", session.GetString(sess, session.KeyUserID))
	assert.Equal(t, "http://keystone:5000/v3", session.GetString(sess, session.KeyRegionEndpoint))
	assert.Equal(t, "RegionThree", session.GetString(sess, session.KeyServicesRegion))
	assert.Equal(t, "unscoped", session.GetString(sess, session.KeyUnscopedToken))

	restored, err := backend.GetUser(context.Background(), sess, "u-1")
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, user.Token.ID, restored.Token.ID)
	assert.Equal(t, "RegionThree", restored.ServicesRegion())
	assert.Equal(t, "unscoped", restored.UnscopedToken)
	assert.True(t, restored.IsAuthenticated())

	other, err := backend.GetUser(context.Background(), sess, "someone-else")
	require.NoError(t, err)
	assert.Nil(t, other)

	resolved := backend.ResolveUser(context.Background(), sess)
	assert.Equal(t, "u-1", resolved.ID)

	// Hosts with byte-oriented sessions store the JSON form.
	encoded, err := EncodeToken(user.Token)
	require.NoError(t, err)
	sess.Set(session.KeyToken, encoded)
	fromJSON := backend.ResolveUser(context.Background(), sess)
	assert.Equal(t, user.Token.ID, fromJSON.Token.ID)

	sess.Set(session.KeyToken, 17)
	assert.True(t, backend.ResolveUser(context.Background(), sess).IsAnonymous())

	assert.True(t, backend.ResolveUser(context.Background(), store.New()).IsAnonymous())
}

func TestBackendSwitchProject(t *testing.T) {
	client := unscopedLoginFixture(t)
	backend := newTestBackend(client, nil)

	user, err := backend.Authenticate(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	user.SetServicesRegion("RegionThree")

	switched, err := backend.SwitchProject(context.Background(), user, "p-zeta")
	require.NoError(t, err)
	assert.Equal(t, "p-zeta", switched.ProjectID)
	assert.Equal(t, "scoped-zeta", switched.Token.ID)
	assert.Equal(t, "unscoped", switched.UnscopedToken)
	assert.Equal(t, "RegionThree", switched.ServicesRegion(), "region preference survives a switch")

	last := client.tokenAuths[len(client.tokenAuths)-1]
	assert.Equal(t, identity.TokenAuth{Token: "unscoped", ProjectID: "p-zeta"}, last, "rescoping starts from the unscoped token")
	assert.Equal(t, []string{"scoped-beta"}, client.revoked, "the previous scoped token is revoked")

	_, err = backend.SwitchProject(context.Background(), switched, "p-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProjectSwitchFailure))

	_, err = backend.SwitchProject(context.Background(), AnonymousUser(), "p-zeta")
	assert.True(t, errors.Is(err, ErrProjectSwitchFailure))
}

func TestBackendSwitchProjectRevokesAtOriginalEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		endpoint    string
		wantAuthURL string
		wantRevoked []string
		wantAt      []string
	}{
		{
			name:        "v2 endpoint rewritten for rescoping only",
			endpoint:    "http://keystone:5000/v2.0",
			wantAuthURL: "http://keystone:5000/v3",
			wantRevoked: []string{"scoped-beta"},
			wantAt:      []string{"http://keystone:5000/v2.0"},
		},
		{
			name:        "no stored endpoint skips revocation",
			endpoint:    "",
			wantAuthURL: "http://keystone:5000/v3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := unscopedLoginFixture(t)
			backend := newTestBackend(client, nil)

			token := NewToken(v3Access(t, accessSpec{tokenID: "scoped-beta", projectID: "p-beta", project: "Beta"}))
			user := CreateUserFromToken(token, tt.endpoint, "", WithClock(fixedClock))
			user.UnscopedToken = "unscoped"

			switched, err := backend.SwitchProject(context.Background(), user, "p-zeta")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAuthURL, switched.Endpoint)
			assert.Equal(t, tt.wantRevoked, client.revoked)
			assert.Equal(t, tt.wantAt, client.revokedAt)
		})
	}
}

func TestBackendLogout(t *testing.T) {
	client := unscopedLoginFixture(t)
	client.revokeErr = errors.New("revocation is best effort")
	backend := newTestBackend(client, nil)
	sess := session.NewMemoryStore(10, time.Hour).New()

	user, err := backend.Authenticate(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	SetSessionFromUser(sess, user)

	// Populate the project cache for the scoped token.
	_, err = backend.Projects().List(context.Background(), projectsQuery(user))
	require.NoError(t, err)
	calls := client.listCalls

	backend.Logout(context.Background(), sess)

	assert.Equal(t, []string{"scoped-beta"}, client.revoked)
	_, ok := sess.Get(session.KeyToken)
	assert.False(t, ok, "session is flushed")

	_, err = backend.Projects().List(context.Background(), projectsQuery(user))
	require.NoError(t, err)
	assert.Equal(t, calls+1, client.listCalls, "logout drops the cached project list")

	// Logging out an empty session is harmless.
	backend.Logout(context.Background(), sess)
	backend.Logout(context.Background(), nil)
}

func TestBackendLogoutDropsPKIProjectCache(t *testing.T) {
	pki := "MII" + strings.Repeat("A", 200)
	client := unscopedLoginFixture(t)
	client.passwordAccess = v3Access(t, accessSpec{tokenID: pki})
	cache := projects.NewLRUCache(10, time.Hour)
	backend := NewBackend(client, projects.NewResolver(client, cache, nil, nil), BackendConfig{
		DefaultAuthURL: "http://keystone:5000/v3",
		Now:            fixedClock,
	}, nil, nil)
	sess := session.NewMemoryStore(10, time.Hour).New()

	user, err := backend.Authenticate(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, HashToken(pki), user.UnscopedToken)
	SetSessionFromUser(sess, user)

	_, ok := cache.Get(context.Background(), HashToken(pki))
	assert.True(t, ok, "login caches under the hashed id")
	assert.Equal(t, 1, cache.Len())

	backend.Logout(context.Background(), sess)
	assert.Equal(t, 0, cache.Len(), "logout drops the cached project list")
}

func TestBackendCheckAuthExpiry(t *testing.T) {
	backend := newTestBackend(&fakeIdentity{}, nil)

	assert.NoError(t, backend.CheckAuthExpiry(&Token{ID: "t", Expires: testNow.Add(time.Minute)}))
	assert.ErrorIs(t, backend.CheckAuthExpiry(&Token{ID: "t", Expires: testNow}), ErrTokenExpired)
	assert.ErrorIs(t, backend.CheckAuthExpiry(&Token{ID: "t"}), ErrTokenExpired)
}

func projectsQuery(u *User) projects.Query {
	return projects.Query{Token: u.Token.ID, UserID: u.ID, AuthURL: u.Endpoint}
}
