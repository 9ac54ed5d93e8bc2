// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown for the
// authentication service.
//
// # Structured Logging
//
// Logger writes JSON through log/slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithComponent("auth_backend").WithField("username", name).Info("Login successful")
//
// Request-scoped loggers carry the request id, user id and trace ids:
//
//	observability.FromContext(r.Context()).Warn("Project switch failed")
//
// # Metrics
//
// AuthMetrics counts logins, logouts, project and region switches, token
// revocations, identity-service latency and project-cache hits. A nil
// *AuthMetrics records nothing, so components take it optionally:
//
//	metrics := observability.NewAuthMetrics(registry)
//	metrics.RecordLogin(observability.LoginSuccess)
//
// EnableOTel mirrors the same measurements onto an OpenTelemetry meter.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("identity", observability.HTTPCheck(client, authURL), true)
//	checker.AddCheck("redis", observability.RedisCheck(rdb), false)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "keystone-auth",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// InstrumentTransport wraps the identity client's transport so outbound
// calls produce client spans.
package observability
