package main

import (
	"time"

	"telegraph/internal/handlers"
	"telegraph/internal/metrics"
	"telegraph/internal/reports"
	"telegraph/pkg/cache"
	"telegraph/pkg/clients/pbx"
	"telegraph/pkg/config"
	"telegraph/pkg/logging"
	"telegraph/pkg/monitoring"
	"telegraph/pkg/server"
	"telegraph/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("telegraph")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Telegraph (Call Report Aggregation API)")

	pbxBaseURL := config.RequireEnv("PBX_BASE_URL")
	pbxAPIToken := config.RequireEnv("PBX_API_TOKEN")
	cacheTTL := time.Duration(config.GetEnvInt("QUERY_CACHE_TTL_SECONDS", 300)) * time.Second
	cacheMaxEntries := config.GetEnvInt("QUERY_CACHE_MAX_ENTRIES", 1024)
	sessionIdleTTL := time.Duration(config.GetEnvInt("SESSION_IDLE_TTL_SECONDS", 1800)) * time.Second

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("telegraph", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("telegraph", version.Version, version.GitCommit)

	// Create custom report aggregation metrics
	serviceMetrics := &metrics.Metrics{
		ReportQueries:   metricsCollector.NewCounter("report_queries_total", "Report queries executed", []string{"report", "status"}),
		QueryDuration:   metricsCollector.NewHistogram("report_query_duration_seconds", "Report query duration", []string{"report"}, nil),
		UpstreamFetches: metricsCollector.NewCounter("upstream_fetches_total", "Upstream report page fetches", []string{"kind", "cached", "status"}),
		FallbackRounds:  metricsCollector.NewCounter("fallback_rounds_total", "Fallback window rounds issued", []string{"report"}),
		RevealedRecords: metricsCollector.NewHistogram("revealed_records_per_batch", "Records revealed per batch", []string{"report"}, []float64{0, 10, 50, 100, 250, 500, 1000}),
		LiveSessions:    metricsCollector.NewGauge("live_sessions", "Live reveal sessions", []string{"store"}),
	}
	cacheLookups, cacheEntries := metricsCollector.CreateCacheMetrics()

	// Upstream PBX report client with retry/backoff
	pbxClient := pbx.NewClient(pbx.Config{
		BaseURL: pbxBaseURL,
		Tokens:  pbx.StaticTokenProvider(pbxAPIToken),
		Timeout: time.Duration(config.GetEnvInt("PBX_TIMEOUT_SECONDS", 30)) * time.Second,
		Logger:  logger,
	})

	// First-page query cache, hit/miss wired into Prometheus
	queryCache := reports.NewQueryCache(cacheTTL, cacheMaxEntries, cache.MetricsHooks{
		OnHit:   func(map[string]string) { cacheLookups.WithLabelValues("hit").Inc() },
		OnMiss:  func(map[string]string) { cacheLookups.WithLabelValues("miss").Inc() },
		OnStore: func(map[string]string) { cacheEntries.WithLabelValues("query").Inc() },
	})

	sessionStore := reports.NewSessionStore(sessionIdleTTL)

	engine := reports.NewEngine(&reports.PBXFetcher{Client: pbxClient}, queryCache, logger, reports.EngineHooks{
		OnFetch: func(kind reports.Kind, cached bool, err error) {
			status := "success"
			if err != nil {
				status = "error"
			}
			cachedLabel := "false"
			if cached {
				cachedLabel = "true"
			}
			serviceMetrics.UpstreamFetches.WithLabelValues(string(kind), cachedLabel, status).Inc()
		},
		OnFallback: func() {
			serviceMetrics.FallbackRounds.WithLabelValues("calls").Inc()
		},
		OnReveal: func(int) {
			serviceMetrics.LiveSessions.WithLabelValues("reveal").Set(float64(sessionStore.Len()))
		},
	})

	// Add health checks
	healthChecker.AddCheck("upstream_pbx", monitoring.UpstreamReportsHealthCheck(pbxBaseURL))
	healthChecker.AddCheck("sessions", monitoring.SessionStoreHealthCheck(sessionStore.Len, config.GetEnvInt("SESSION_SOFT_CAP", 10000)))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"PBX_BASE_URL":  pbxBaseURL,
		"PBX_API_TOKEN": pbxAPIToken,
	}))

	handlers.Init(engine, sessionStore, logger, serviceMetrics)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "telegraph", healthChecker, metricsCollector)
	router.GET("/reports/calls", handlers.GetCallReports)

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig("telegraph", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
