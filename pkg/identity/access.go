package identity

import (
	"encoding/json"
	"fmt"
	"time"
)

// AccessInfo is the normalized view of an authentication response. Each
// protocol version has its own implementation so callers never branch on
// the response layout.
type AccessInfo interface {
	Version() Version
	AuthToken() string
	// Expires is the zero time when the response carried no parseable expiry
	Expires() time.Time
	UserID() string
	Username() string
	UserDomainID() string
	UserDomainName() string
	ProjectID() string
	ProjectName() string
	DomainID() string
	DomainName() string
	Roles() []Role
	ServiceCatalog() Catalog
	IsFederated() bool
	// ProjectScoped reports whether the token is bound to a project
	ProjectScoped() bool
}

// DefaultDomainID is the domain v2.0 users implicitly live in
const DefaultDomainID = "default"

// expiryLayouts are tried in order. Timestamps without a zone are UTC.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999Z0700",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseExpiry parses an identity-service timestamp. Unparseable input yields
// the zero time, which every validity check treats as expired.
func ParseExpiry(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ParseAccessInfo decodes an authentication response body. subjectToken is
// the X-Subject-Token header value, which carries the token id for v3.
func ParseAccessInfo(version Version, body []byte, subjectToken string) (AccessInfo, error) {
	if version.AtLeast3() {
		return parseV3(body, subjectToken)
	}
	return parseV2(body)
}

type namedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// v2.0 -----------------------------------------------------------------------

type v2Endpoint struct {
	ID          string `json:"id"`
	Region      string `json:"region"`
	PublicURL   string `json:"publicURL"`
	InternalURL string `json:"internalURL"`
	AdminURL    string `json:"adminURL"`
}

type v2Service struct {
	Type      string       `json:"type"`
	Name      string       `json:"name"`
	Endpoints []v2Endpoint `json:"endpoints"`
}

type v2Access struct {
	Access *struct {
		Token *struct {
			ID      string    `json:"id"`
			Expires string    `json:"expires"`
			Tenant  *namedRef `json:"tenant"`
		} `json:"token"`
		User struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
			Roles    []Role `json:"roles"`
		} `json:"user"`
		ServiceCatalog []v2Service `json:"serviceCatalog"`
	} `json:"access"`
}

type accessInfoV2 struct {
	raw     v2Access
	expires time.Time
	catalog Catalog
}

func parseV2(body []byte) (AccessInfo, error) {
	var raw v2Access
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Access == nil || raw.Access.Token == nil {
		return nil, fmt.Errorf("%w: missing access.token", ErrMalformedResponse)
	}
	if raw.Access.Token.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrMalformedResponse)
	}

	// v2.0 endpoints carry one URL per interface; split them so both
	// versions share the v3 catalog shape.
	catalog := make(Catalog, 0, len(raw.Access.ServiceCatalog))
	for _, svc := range raw.Access.ServiceCatalog {
		s := Service{Type: svc.Type, Name: svc.Name}
		for _, ep := range svc.Endpoints {
			for _, iface := range []struct{ name, url string }{
				{"public", ep.PublicURL},
				{"internal", ep.InternalURL},
				{"admin", ep.AdminURL},
			} {
				if iface.url == "" {
					continue
				}
				s.Endpoints = append(s.Endpoints, Endpoint{
					ID:        ep.ID,
					URL:       iface.url,
					Interface: iface.name,
					Region:    ep.Region,
				})
			}
		}
		catalog = append(catalog, s)
	}

	return &accessInfoV2{
		raw:     raw,
		expires: ParseExpiry(raw.Access.Token.Expires),
		catalog: catalog,
	}, nil
}

func (a *accessInfoV2) Version() Version        { return V2 }
func (a *accessInfoV2) AuthToken() string       { return a.raw.Access.Token.ID }
func (a *accessInfoV2) Expires() time.Time      { return a.expires }
func (a *accessInfoV2) UserID() string          { return a.raw.Access.User.ID }
func (a *accessInfoV2) UserDomainID() string    { return DefaultDomainID }
func (a *accessInfoV2) UserDomainName() string  { return "Default" }
func (a *accessInfoV2) DomainID() string        { return "" }
func (a *accessInfoV2) DomainName() string      { return "" }
func (a *accessInfoV2) Roles() []Role           { return a.raw.Access.User.Roles }
func (a *accessInfoV2) ServiceCatalog() Catalog { return a.catalog }
func (a *accessInfoV2) IsFederated() bool       { return false }

func (a *accessInfoV2) Username() string {
	if a.raw.Access.User.Name != "" {
		return a.raw.Access.User.Name
	}
	return a.raw.Access.User.Username
}

func (a *accessInfoV2) ProjectID() string {
	if t := a.raw.Access.Token.Tenant; t != nil {
		return t.ID
	}
	return ""
}

func (a *accessInfoV2) ProjectName() string {
	if t := a.raw.Access.Token.Tenant; t != nil {
		return t.Name
	}
	return ""
}

func (a *accessInfoV2) ProjectScoped() bool {
	return a.ProjectID() != ""
}

// v3 -------------------------------------------------------------------------

type v3Scope struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Domain *namedRef `json:"domain"`
}

type v3Token struct {
	Token *struct {
		ExpiresAt string `json:"expires_at"`
		User      struct {
			ID         string          `json:"id"`
			Name       string          `json:"name"`
			Domain     *namedRef       `json:"domain"`
			Federation json.RawMessage `json:"OS-FEDERATION"`
		} `json:"user"`
		Project *v3Scope `json:"project"`
		Domain  *namedRef `json:"domain"`
		Roles   []Role    `json:"roles"`
		Catalog Catalog   `json:"catalog"`
	} `json:"token"`
}

type accessInfoV3 struct {
	id      string
	raw     v3Token
	expires time.Time
}

func parseV3(body []byte, subjectToken string) (AccessInfo, error) {
	var raw v3Token
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Token == nil {
		return nil, fmt.Errorf("%w: missing token", ErrMalformedResponse)
	}
	if subjectToken == "" {
		return nil, fmt.Errorf("%w: missing X-Subject-Token header", ErrMalformedResponse)
	}
	return &accessInfoV3{
		id:      subjectToken,
		raw:     raw,
		expires: ParseExpiry(raw.Token.ExpiresAt),
	}, nil
}

func (a *accessInfoV3) Version() Version        { return V3 }
func (a *accessInfoV3) AuthToken() string       { return a.id }
func (a *accessInfoV3) Expires() time.Time      { return a.expires }
func (a *accessInfoV3) UserID() string          { return a.raw.Token.User.ID }
func (a *accessInfoV3) Username() string        { return a.raw.Token.User.Name }
func (a *accessInfoV3) Roles() []Role           { return a.raw.Token.Roles }
func (a *accessInfoV3) ServiceCatalog() Catalog { return a.raw.Token.Catalog }

func (a *accessInfoV3) IsFederated() bool {
	return len(a.raw.Token.User.Federation) > 0 && string(a.raw.Token.User.Federation) != "null"
}

func (a *accessInfoV3) UserDomainID() string {
	if d := a.raw.Token.User.Domain; d != nil {
		return d.ID
	}
	return ""
}

func (a *accessInfoV3) UserDomainName() string {
	if d := a.raw.Token.User.Domain; d != nil {
		return d.Name
	}
	return ""
}

func (a *accessInfoV3) ProjectID() string {
	if p := a.raw.Token.Project; p != nil {
		return p.ID
	}
	return ""
}

func (a *accessInfoV3) ProjectName() string {
	if p := a.raw.Token.Project; p != nil {
		return p.Name
	}
	return ""
}

func (a *accessInfoV3) DomainID() string {
	if d := a.raw.Token.Domain; d != nil {
		return d.ID
	}
	return ""
}

func (a *accessInfoV3) DomainName() string {
	if d := a.raw.Token.Domain; d != nil {
		return d.Name
	}
	return ""
}

func (a *accessInfoV3) ProjectScoped() bool {
	return a.raw.Token.Project != nil && a.raw.Token.Project.ID != ""
}
