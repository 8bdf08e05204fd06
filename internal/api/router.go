package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/pulsewatch/internal/api/auth"
	"github.com/good-yellow-bee/pulsewatch/internal/api/incidents"
	"github.com/good-yellow-bee/pulsewatch/internal/api/middleware"
	"github.com/good-yellow-bee/pulsewatch/internal/api/projects"
	"github.com/good-yellow-bee/pulsewatch/internal/api/rules"
	"github.com/good-yellow-bee/pulsewatch/internal/api/telemetry"
	"github.com/good-yellow-bee/pulsewatch/internal/api/users"
	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.PrometheusMiddleware)

	rateLimiter := middleware.NewRateLimiter(s.config.RateLimit, s.config.RateWindow)
	r.Use(middleware.RateLimitByIP(rateLimiter))

	r.Get("/health", s.health.Health)
	r.Get("/health/live", s.health.Live)
	r.Get("/health/ready", s.health.Ready)

	authHandler := auth.NewHandler(s.store, s.jwtService, s.lockout)
	rulesHandler := rules.NewHandler(s.store)
	incidentsHandler := incidents.NewHandler(s.incidents)
	telemetryHandler := telemetry.NewHandler(s.ingest, s.telemetry)
	projectsHandler := projects.NewHandler(s.store)
	usersHandler := users.NewHandler(s.store)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		// Ingest authenticates with a project API key, not a user token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(s.store.Projects()))
			r.Post("/ingest/metrics", telemetryHandler.IngestMetrics)
			r.Post("/ingest/logs", telemetryHandler.IngestLogs)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(s.jwtService))

			r.Get("/users/me", usersHandler.Me)
			r.Post("/users/me/password", usersHandler.ChangePassword)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Get("/users", usersHandler.List)
				r.Post("/users", usersHandler.Create)
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectsHandler.List)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(models.RoleAdmin))
					r.Post("/", projectsHandler.Create)
				})

				r.Route("/{projectID}", func(r chi.Router) {
					r.Get("/", projectsHandler.Get)
					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireRole(models.RoleAdmin))
						r.Put("/", projectsHandler.Update)
						r.Post("/apikey/rotate", projectsHandler.RotateAPIKey)
						r.Post("/services", projectsHandler.CreateService)
						r.Delete("/services/{serviceID}", projectsHandler.RemoveService)
					})
					r.Get("/services", projectsHandler.ListServices)

					r.Route("/rules", func(r chi.Router) {
						r.Get("/", rulesHandler.List)
						r.Get("/{ruleID}", rulesHandler.Get)
						r.Group(func(r chi.Router) {
							r.Use(middleware.RequireCanWrite)
							r.Post("/", rulesHandler.Create)
							r.Put("/{ruleID}", rulesHandler.Update)
							r.Put("/{ruleID}/enabled", rulesHandler.SetEnabled)
						})
					})

					r.Route("/incidents", func(r chi.Router) {
						r.Get("/", incidentsHandler.List)
						r.Get("/{incidentID}", incidentsHandler.Get)
						r.Get("/{incidentID}/timeline", incidentsHandler.Timeline)
						r.Get("/{incidentID}/notes", incidentsHandler.Notes)
						r.Group(func(r chi.Router) {
							r.Use(middleware.RequireCanWrite)
							r.Put("/{incidentID}/status", incidentsHandler.UpdateStatus)
							r.Put("/{incidentID}/severity", incidentsHandler.UpdateSeverity)
							r.Post("/{incidentID}/notes", incidentsHandler.AddNote)
						})
					})

					r.Get("/metrics/query", telemetryHandler.QueryMetrics)
					r.Get("/logs/search", telemetryHandler.SearchLogs)
				})
			})
		})
	})

	return r
}
