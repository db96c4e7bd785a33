// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package web

import (
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/crewos/crew-service/internal/audit"
	"github.com/crewos/crew-service/internal/authorization"
	"github.com/crewos/crew-service/internal/cache"
	"github.com/crewos/crew-service/internal/db"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/pkg/authentication"
	"github.com/crewos/crew-service/pkg/directory"
	"github.com/crewos/crew-service/pkg/gate"
	"github.com/crewos/crew-service/pkg/metrics"
	"github.com/crewos/crew-service/pkg/signup"
	"github.com/crewos/crew-service/pkg/status"
	"github.com/crewos/crew-service/pkg/workforce"
)

// Config collects the tunables the router needs beyond its injected
// dependencies.
type Config struct {
	Auth               authentication.Config
	Gate               gate.Config
	CORSAllowedOrigins []string
}

// NewRouter assembles the full HTTP surface. Every request passes the
// request id, response time, CORS, transaction and session middlewares;
// per-route authorization happens inside the gate, not here.
func NewRouter(
	store *storage.Storage,
	dbClient db.DBClientInterface,
	orgCache *cache.Cache,
	limiter gate.LimiterInterface,
	recorder *audit.Recorder,
	config Config,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) http.Handler {
	router := chi.NewMux()

	oracle := authorization.NewOracle(store, orgCache, tracer, monitor, logger)
	authService := authentication.NewService(store, recorder, config.Auth, tracer, monitor, logger)
	g := gate.New(dbClient, oracle, limiter, config.Gate, tracer, monitor, logger)

	middlewares := make(chi.Middlewares, 0)
	middlewares = append(
		middlewares,
		middleware.RequestID,
		monitoring.NewMiddleware(monitor, logger).ResponseTime(),
		middlewareCORS(config.CORSAllowedOrigins),
		db.TransactionMiddleware(dbClient, logger),
		authentication.NewMiddleware(authService, tracer, monitor, logger).Authenticate(),
	)

	router.Use(middlewares...)

	metrics.NewAPI(logger).RegisterEndpoints(router)
	status.NewAPI(tracer, monitor, logger).RegisterEndpoints(router)

	authentication.NewAPI(authService, tracer, monitor, logger).RegisterEndpoints(router)
	signup.NewAPI(
		signup.NewService(store, recorder, tracer, monitor, logger),
		tracer, monitor, logger,
	).RegisterEndpoints(router, g)
	workforce.NewAPI(tracer, monitor, logger).RegisterEndpoints(router, g)
	directory.NewAPI(
		directory.NewService(store, recorder, oracle, tracer, monitor, logger),
		tracer, monitor, logger,
	).RegisterEndpoints(router, g)

	return tracing.NewMiddleware(monitor, logger).OpenTelemetry(router)
}

func middlewareCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{authentication.RotatedTokenHeader},
		AllowCredentials: true,
		MaxAge:           int((5 * time.Minute).Seconds()),
	})
}
