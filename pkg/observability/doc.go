// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, tracing setup, health checks and graceful shutdown
// for the taskhub server.
//
// # Structured Logging
//
// Logger wraps log/slog with a JSON handler:
//
//	logger := observability.NewLogger(observability.ParseLogLevel("info"), os.Stdout)
//	logger.WithField("org_id", orgID).Info("Organization created")
//
// FromContext returns a logger carrying the request id, user id and, when a
// span is active, the trace and span ids.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	metrics.RecordAuthzDecision("task", "collaborator", "granted", "")
//
// HTTP metrics are labeled by the gorilla/mux route template, never the raw
// path. WithOTel mirrors request and authorization counts to OpenTelemetry.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// Either dependency may be nil. Redis being down only degrades readiness
// because rate limiting fails open.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "taskhub",
//		SampleRatio: 0.1,
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Shutdown
//
// ShutdownManager runs registered cleanup newest first under one deadline.
package observability
