package auth

import (
	"crypto/md5" //nolint:gosec // digest format is fixed by the identity service
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/keystone-auth/pkg/identity"
)

// ANS1TokenPrefix starts every PKI (ASN.1 DER, base64) token id
const ANS1TokenPrefix = "MII"

// Token is the application's copy of an identity-service token. It is
// immutable after construction and serializes to JSON for session storage.
type Token struct {
	ID string `json:"id"`
	// Expires is the zero time when the identity service sent no usable expiry
	Expires        time.Time        `json:"expires"`
	User           TokenUser        `json:"user"`
	UserDomainID   string           `json:"user_domain_id"`
	UserDomainName string           `json:"user_domain_name,omitempty"`
	Project        Ref              `json:"project"`
	Domain         Ref              `json:"domain"`
	Roles          []identity.Role  `json:"roles"`
	ServiceCatalog identity.Catalog `json:"service_catalog"`
	Federated      bool             `json:"federated,omitempty"`
}

// NewToken adapts an authentication response. PKI token ids are replaced
// by their MD5 digest.
func NewToken(access identity.AccessInfo) *Token {
	id := access.AuthToken()
	if IsANS1Token(id) {
		id = HashToken(id)
	}

	roles := access.Roles()
	if roles == nil {
		roles = []identity.Role{}
	}
	catalog := access.ServiceCatalog()
	if catalog == nil {
		catalog = identity.Catalog{}
	}

	return &Token{
		ID:             id,
		Expires:        access.Expires(),
		User:           TokenUser{ID: access.UserID(), Name: access.Username()},
		UserDomainID:   access.UserDomainID(),
		UserDomainName: access.UserDomainName(),
		Project:        Ref{ID: access.ProjectID(), Name: access.ProjectName()},
		Domain:         Ref{ID: access.DomainID(), Name: access.DomainName()},
		Roles:          roles,
		ServiceCatalog: catalog,
		Federated:      access.IsFederated(),
	}
}

// Tenant is the v2.0 name for Project
func (t *Token) Tenant() Ref {
	return t.Project
}

// IsANS1Token reports whether id is a PKI token
func IsANS1Token(id string) bool {
	return strings.HasPrefix(id, ANS1TokenPrefix)
}

// HashToken returns the 32 character hex MD5 digest the identity service
// accepts in place of a PKI token id.
func HashToken(id string) string {
	sum := md5.Sum([]byte(id)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// IsTokenValid reports whether token's expiry, less margin, is strictly
// after now. A nil token or one without expiry is never valid.
func IsTokenValid(token *Token, margin time.Duration, now time.Time) bool {
	if token == nil || token.Expires.IsZero() {
		return false
	}
	return token.Expires.Add(-margin).After(now)
}

// DecodeToken reads a token stored in a session: either the *Token itself
// or its JSON encoding.
func DecodeToken(v interface{}) (*Token, error) {
	switch t := v.(type) {
	case *Token:
		if t == nil {
			return nil, fmt.Errorf("nil token in session")
		}
		return t, nil
	case Token:
		return &t, nil
	case string:
		return unmarshalToken([]byte(t))
	case []byte:
		return unmarshalToken(t)
	case map[string]interface{}:
		// Sessions persisted as JSON hand back the decoded object.
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("failed to decode session token: %w", err)
		}
		return unmarshalToken(data)
	default:
		return nil, fmt.Errorf("unexpected session token type %T", v)
	}
}

// EncodeToken is the JSON form hosts with byte-oriented sessions store
func EncodeToken(t *Token) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode token: %w", err)
	}
	return string(data), nil
}

func unmarshalToken(data []byte) (*Token, error) {
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode session token: %w", err)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("session token has no id")
	}
	return &t, nil
}
