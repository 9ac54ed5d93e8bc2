package identity

import "errors"

// AuthMethod produces the request body for a token request. Implementations
// exist for password and token authentication; both know the v2.0 and v3
// body layouts.
type AuthMethod interface {
	requestBody(v Version) (interface{}, error)
}

// PasswordAuth authenticates with a user name and password. ProjectID is
// optional; without it the resulting token is unscoped (or scoped to the
// user's default project, at the identity service's discretion).
type PasswordAuth struct {
	Username       string
	Password       string
	UserDomainName string
	ProjectID      string
}

func (p PasswordAuth) requestBody(v Version) (interface{}, error) {
	if p.Username == "" || p.Password == "" {
		return nil, errors.New("username and password are required")
	}

	if !v.AtLeast3() {
		auth := map[string]interface{}{
			"passwordCredentials": map[string]string{
				"username": p.Username,
				"password": p.Password,
			},
		}
		if p.ProjectID != "" {
			auth["tenantId"] = p.ProjectID
		}
		return map[string]interface{}{"auth": auth}, nil
	}

	user := map[string]interface{}{
		"name":     p.Username,
		"password": p.Password,
	}
	if p.UserDomainName != "" {
		user["domain"] = map[string]string{"name": p.UserDomainName}
	}
	auth := map[string]interface{}{
		"identity": map[string]interface{}{
			"methods":  []string{"password"},
			"password": map[string]interface{}{"user": user},
		},
	}
	if p.ProjectID != "" {
		auth["scope"] = projectScope(p.ProjectID)
	}
	return map[string]interface{}{"auth": auth}, nil
}

// TokenAuth exchanges an existing token, typically unscoped, for a new one
// scoped to ProjectID. It never re-authenticates when the token expires.
type TokenAuth struct {
	Token     string
	ProjectID string
}

// NewTokenAuth returns the token plugin for rescoping token to projectID
func NewTokenAuth(token, projectID string) TokenAuth {
	return TokenAuth{Token: token, ProjectID: projectID}
}

func (t TokenAuth) requestBody(v Version) (interface{}, error) {
	if t.Token == "" {
		return nil, errors.New("token is required")
	}

	if !v.AtLeast3() {
		auth := map[string]interface{}{
			"token": map[string]string{"id": t.Token},
		}
		if t.ProjectID != "" {
			auth["tenantId"] = t.ProjectID
		}
		return map[string]interface{}{"auth": auth}, nil
	}

	auth := map[string]interface{}{
		"identity": map[string]interface{}{
			"methods": []string{"token"},
			"token":   map[string]string{"id": t.Token},
		},
	}
	if t.ProjectID != "" {
		auth["scope"] = projectScope(t.ProjectID)
	}
	return map[string]interface{}{"auth": auth}, nil
}

func projectScope(projectID string) map[string]interface{} {
	return map[string]interface{}{
		"project": map[string]string{"id": projectID},
	}
}
