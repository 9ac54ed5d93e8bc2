// Package urlutil rewrites and builds the URLs used to reach the identity
// service and to redirect browsers back to the dashboard.
package urlutil

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

// HasInURLPath reports whether sub occurs in the path component of rawURL
func HasInURLPath(rawURL, sub string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, sub)
}

// URLPathReplace returns rawURL with occurrences of old replaced by new in
// its path only. count < 0 replaces all occurrences. Unparseable input is
// returned unchanged.
func URLPathReplace(rawURL, old, new string, count int) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Path = strings.Replace(u.Path, old, new, count)
	u.RawPath = ""
	return u.String()
}

var fixWarnOnce sync.Once

// FixAuthURLVersion rewrites a "/v2.0" auth URL to "/v3" when the deployment
// is configured for v3. The mismatch is logged on first occurrence only.
func FixAuthURLVersion(authURL string, version identity.Version, logger *observability.Logger) string {
	if !version.AtLeast3() || !HasInURLPath(authURL, identity.V2.PathSegment()) {
		return authURL
	}
	fixWarnOnce.Do(func() {
		if logger != nil {
			logger.WithField("auth_url", authURL).Warn("Configured auth URL points to a v2.0 identity endpoint but v3 is the configured API version, using the v3 endpoint")
		}
	})
	return URLPathReplace(authURL, identity.V2.PathSegment(), identity.V3.PathSegment(), 1)
}

// BuildAbsoluteURI makes relative absolute against the request's scheme and
// host, under webroot.
func BuildAbsoluteURI(r *http.Request, webroot, relative string) string {
	if strings.HasSuffix(webroot, "/") && strings.HasPrefix(relative, "/") {
		webroot = strings.TrimSuffix(webroot, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd == "https" || fwd == "http" {
		scheme = fwd
	}

	return scheme + "://" + r.Host + webroot + relative
}

// IsSafeURL reports whether target is a redirect that stays on host.
// Empty targets are never safe.
func IsSafeURL(target, host string) bool {
	if target == "" {
		return false
	}
	// Browsers treat a leading "//" or "\\" as scheme-relative.
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, `\\`) || strings.HasPrefix(target, `/\`) {
		u, err := url.Parse("http:" + strings.ReplaceAll(target, `\`, "/"))
		return err == nil && u.Host == host
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		return u.Host == "" || u.Host == host
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	// Browsers read "http:evil.com" and "http:/evil.com" as absolute.
	return u.Opaque == "" && u.Host != "" && u.Host == host
}
