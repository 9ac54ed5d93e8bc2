package auth

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/keystone-auth/pkg/identity"
)

var testNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type accessSpec struct {
	tokenID   string
	userID    string
	username  string
	projectID string
	project   string
	expires   time.Time
	roles     []string
	federated bool
	catalog   identity.Catalog
}

func defaultCatalog() identity.Catalog {
	return identity.Catalog{
		{Type: "identity", Endpoints: []identity.Endpoint{{URL: "http://keystone/v3", Region: "RegionOne", Interface: "public"}}},
		{Type: "compute", Endpoints: []identity.Endpoint{{URL: "http://nova", Region: "RegionTwo", Interface: "public"}}},
		{Type: "volume", Endpoints: []identity.Endpoint{{URL: "http://cinder", Region: "RegionThree", Interface: "public"}}},
	}
}

// v3Access builds an AccessInfo through the real v3 parser
func v3Access(t *testing.T, spec accessSpec) identity.AccessInfo {
	t.Helper()

	if spec.userID == "" {
		spec.userID = "u-1"
	}
	if spec.username == "" {
		spec.username = "alice"
	}
	if spec.expires.IsZero() {
		spec.expires = testNow.Add(time.Hour)
	}
	if spec.catalog == nil {
		spec.catalog = defaultCatalog()
	}

	roles := make([]map[string]string, 0, len(spec.roles))
	for _, r := range spec.roles {
		roles = append(roles, map[string]string{"id": "id-" + r, "name": r})
	}
	user := map[string]interface{}{
		"id":     spec.userID,
		"name":   spec.username,
		"domain": map[string]string{"id": "default", "name": "Default"},
	}
	if spec.federated {
		user["OS-FEDERATION"] = map[string]interface{}{"identity_provider": map[string]string{"id": "acme"}}
	}
	token := map[string]interface{}{
		"expires_at": spec.expires.Format(time.RFC3339),
		"user":       user,
		"roles":      roles,
		"catalog":    spec.catalog,
	}
	if spec.projectID != "" {
		token["project"] = map[string]interface{}{
			"id":     spec.projectID,
			"name":   spec.project,
			"domain": map[string]string{"id": "default", "name": "Default"},
		}
	}

	body, err := json.Marshal(map[string]interface{}{"token": token})
	require.NoError(t, err)
	access, err := identity.ParseAccessInfo(identity.V3, body, spec.tokenID)
	require.NoError(t, err)
	return access
}

// fakeIdentity is a scripted identity.Client
type fakeIdentity struct {
	mu sync.Mutex

	passwordAccess identity.AccessInfo
	passwordErr    error
	// scoped maps project id to the rescoped access; missing ids fail
	scoped     map[string]identity.AccessInfo
	projects   []identity.Project
	listErr    error
	revokeErr  error
	listCalls  int
	tokenAuths []identity.TokenAuth
	revoked    []string
	revokedAt  []string
	lastAuth   identity.AuthMethod
}

func (f *fakeIdentity) Version() identity.Version { return identity.V3 }

func (f *fakeIdentity) Authenticate(_ context.Context, _ string, method identity.AuthMethod) (identity.AccessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAuth = method

	switch m := method.(type) {
	case identity.PasswordAuth:
		if f.passwordErr != nil {
			return nil, f.passwordErr
		}
		return f.passwordAccess, nil
	case identity.TokenAuth:
		f.tokenAuths = append(f.tokenAuths, m)
		if m.ProjectID == "" {
			if f.passwordErr != nil {
				return nil, f.passwordErr
			}
			return f.passwordAccess, nil
		}
		if access, ok := f.scoped[m.ProjectID]; ok {
			return access, nil
		}
		return nil, &identity.ClientError{Operation: "authenticate", StatusCode: 401, Err: identity.ErrUnauthorized}
	}
	return nil, identity.ErrAuthorizationFailure
}

func (f *fakeIdentity) ListProjects(context.Context, string, string, identity.ListOptions) ([]identity.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]identity.Project, len(f.projects))
	copy(out, f.projects)
	return out, nil
}

func (f *fakeIdentity) RevokeToken(_ context.Context, endpoint string, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token)
	f.revokedAt = append(f.revokedAt, endpoint)
	return f.revokeErr
}
