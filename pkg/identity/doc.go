// Package identity is the thin client the authentication backend uses to
// talk to the identity service (OpenStack Keystone).
//
// # Overview
//
// The package covers exactly what a dashboard login needs: obtain a token
// with a password or an existing token, list the projects a token may be
// rescoped to, and revoke a token on logout. Everything else about the
// identity protocol stays on the server side.
//
// The API version is chosen once, when the client is built:
//
//	version, _ := identity.ParseVersion("3")
//	httpClient, _ := identity.NewSession(identity.SessionConfig{CACertFile: "/etc/ssl/ca.pem"})
//	client := identity.NewHTTPClient(version, httpClient, metrics)
//
// # Access info
//
// Authentication responses are normalized behind AccessInfo, with one
// implementation per protocol version, so adapters never inspect the raw
// v2.0 "access" or v3 "token" layouts:
//
//	access, err := client.Authenticate(ctx, authURL, identity.PasswordAuth{
//		Username:       "alice",
//		Password:       "secret",
//		UserDomainName: "Default",
//	})
//	fmt.Println(access.UserID(), access.ProjectID(), access.Expires())
//
// # Errors
//
// Failed calls return *ClientError. errors.Is matches ErrUnauthorized,
// ErrForbidden and ErrNotFound for the corresponding HTTP statuses, and
// ErrAuthorizationFailure when no authentication response could be obtained.
package identity
