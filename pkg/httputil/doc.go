// Package httputil provides HTTP utilities shared by the auth views and
// middleware.
//
// # Responses
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteForbidden(w, "insufficient permissions")
//	httputil.WriteDetailedError(w, http.StatusBadRequest, "invalid login", details)
//
// # Requests
//
// Login forms arrive either urlencoded or as a JSON object:
//
//	values, err := httputil.ParseValues(w, r)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//	)
package httputil
