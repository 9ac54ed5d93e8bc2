// Package api serves the authentication views and hosts them in an HTTP
// server.
//
// # Views
//
// AuthHandlers registers:
//
//	GET  /auth/login/                           login form description (JSON)
//	POST /auth/login/                           password login or WebSSO redirect
//	GET  /auth/logout/                          flush the session, revoke tokens
//	GET  /auth/switch/{project_id}/             rescope to another project
//	GET  /auth/switch_services_region/{region}/ select a services region
//	POST /auth/websso/                          federated token callback (v3 only)
//
// Login accepts urlencoded forms or JSON. Browser clients are redirected to
// the "next" field when it stays on this host; JSON clients receive a
// LoginResponse. Failures carry the user-facing message of the backend's
// auth.AuthError.
//
// # Server
//
// Server mounts the views behind the session and current-user middleware,
// plus /health, /health/live, /health/ready and /metrics outside them:
//
//	srv := api.NewServer(cfg, api.ServerOptions{
//		Backend:  backend,
//		Resolver: backend,
//		Sessions: session.NewManager(store, "", cfg.Web.SecureCookies),
//	})
//	srv.RegisterRoutes(myViews)
//	http.ListenAndServe(cfg.Server.Addr, srv)
package api
