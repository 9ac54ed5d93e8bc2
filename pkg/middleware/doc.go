// Package middleware resolves the current user for each request and guards
// handlers and the login endpoint.
//
// # Current user
//
// AuthMiddleware asks a UserResolver (usually *auth.Backend) for the user
// stored in the request's session and keeps it for the rest of the request:
//
//	authMW := middleware.NewAuthMiddleware(backend, logger)
//	router.Use(sessions.Middleware, authMW.Handler)
//
//	user := middleware.CurrentUser(r)
//
// # Guards
//
//	router.Handle("/admin", middleware.RequireSuperuser(adminHandler))
//	router.Handle("/volumes", middleware.RequirePerms(
//		auth.Perm("openstack.services.volume"),
//		auth.AnyOf("openstack.roles.admin", "openstack.roles.member"),
//	)(volumesHandler))
//
// # Login throttling
//
// LoginThrottle keeps a token bucket per client in process;
// DistributedLoginThrottle shares a fixed-window counter through Redis.
// Either plugs into ThrottleLogins, which only counts POSTs.
package middleware
