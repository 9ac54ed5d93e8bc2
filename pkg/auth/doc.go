// Package auth adapts identity-service tokens into the user objects a
// dashboard works with, and authenticates users against the identity
// service.
//
// # Overview
//
// A login runs through Backend:
//
//	backend := auth.NewBackend(client, resolver, auth.BackendConfig{
//		DefaultAuthURL: "http://keystone:5000/v3",
//		TokenMargin:    30 * time.Second,
//	}, logger, metrics)
//
//	user, err := backend.Authenticate(ctx, auth.Credentials{
//		Username: "alice",
//		Password: "secret",
//		Domain:   "Default",
//	})
//	if errors.Is(err, auth.ErrInvalidCredentials) {
//		// show err.Error() on the login form
//	}
//	auth.SetSessionFromUser(sess, user)
//
// Password authentication yields an unscoped token; the backend lists the
// user's projects and scopes to the first one the identity service accepts.
//
// # Tokens
//
// Token is an immutable copy of the authentication response. PKI token ids
// (prefix "MII") are replaced by their MD5 digest. IsTokenValid compares
// the expiry, less a margin, strictly against the current time; a token
// without expiry is never valid.
//
// # Authorization
//
// A user's permissions are "openstack.roles.<role>" for each role and
// "openstack.services.<type>" for each catalog service. HasPerms takes a
// list of requirements, all of which must hold; AnyOf groups need one
// member:
//
//	// admin AND (L2 or L3 support)
//	user.HasPerms(
//		auth.Perm("openstack.roles.admin"),
//		auth.AnyOf("openstack.roles.l3-support", "openstack.roles.l2-support"),
//	)
//
// IsSuperuser is true when a role is named "admin" in any case.
//
// # Audit Logging
//
// AuditLogger records logins, logouts, project and region switches as
// structured log entries.
package auth
