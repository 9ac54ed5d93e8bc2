// Package websso builds the identity-service endpoints that start a
// federated (WebSSO) login.
package websso

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/platinummonkey/keystone-auth/pkg/urlutil"
)

// CallbackPath is where the identity service posts the token back to
const CallbackPath = "/auth/websso/"

// CredentialsChoice selects the plain user name and password form
const CredentialsChoice = "credentials"

// IdPProtocol pins a login choice to one identity provider and protocol
type IdPProtocol struct {
	IdP      string `yaml:"idp" json:"idp"`
	Protocol string `yaml:"protocol" json:"protocol"`
}

// Mapping maps a login choice to its identity provider and protocol.
// Choices absent from the mapping are protocol ids.
type Mapping map[string]IdPProtocol

// Choice is one entry of the login form's authentication selector
type Choice struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// ParseMapping parses "choice=idp:protocol,..."
func ParseMapping(s string) (Mapping, error) {
	m := Mapping{}
	for _, entry := range splitList(s) {
		choice, target, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid WebSSO mapping entry %q: expected choice=idp:protocol", entry)
		}
		idp, protocol, ok := strings.Cut(target, ":")
		if !ok || idp == "" || protocol == "" {
			return nil, fmt.Errorf("invalid WebSSO mapping entry %q: expected choice=idp:protocol", entry)
		}
		m[strings.TrimSpace(choice)] = IdPProtocol{IdP: strings.TrimSpace(idp), Protocol: strings.TrimSpace(protocol)}
	}
	return m, nil
}

// ParseChoices parses "id=label,..." keeping the given order
func ParseChoices(s string) ([]Choice, error) {
	var choices []Choice
	for _, entry := range splitList(s) {
		id, label, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid WebSSO choice %q: expected id=label", entry)
		}
		choices = append(choices, Choice{ID: strings.TrimSpace(id), Label: strings.TrimSpace(label)})
	}
	return choices, nil
}

// Validate rejects entries without an identity provider or protocol
func (m Mapping) Validate() error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if m[k].IdP == "" || m[k].Protocol == "" {
			return fmt.Errorf("WebSSO mapping %q needs both idp and protocol", k)
		}
	}
	return nil
}

// Resolve returns the identity provider (empty when unmapped) and protocol
// for choice.
func (m Mapping) Resolve(choice string) (idp, protocol string) {
	if target, ok := m[choice]; ok && target.IdP != "" {
		return target.IdP, target.Protocol
	}
	return "", choice
}

// URL returns the identity-service endpoint that redirects the browser to
// the provider selected by choice. origin is inserted verbatim.
func URL(authURL, choice, origin string, mapping Mapping) string {
	idp, protocol := mapping.Resolve(choice)
	if idp != "" {
		return fmt.Sprintf("%s/auth/OS-FEDERATION/identity_providers/%s/protocols/%s/websso?origin=%s",
			authURL, idp, protocol, origin)
	}
	return fmt.Sprintf("%s/auth/OS-FEDERATION/websso/%s?origin=%s", authURL, protocol, origin)
}

// OriginURL is the absolute callback URL under webroot
func OriginURL(r *http.Request, webroot string) string {
	return urlutil.BuildAbsoluteURI(r, webroot, CallbackPath)
}

// RequestURL combines OriginURL and URL for an incoming login request
func RequestURL(r *http.Request, webroot, authURL, choice string, mapping Mapping) string {
	return URL(authURL, choice, OriginURL(r, webroot), mapping)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
