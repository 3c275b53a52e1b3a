package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/scheduling-assistant/internal/clinic"
	"github.com/clinicdesk/scheduling-assistant/internal/flow"
)

// Dispatcher is the post-confirmation fan-out used by the direct
// appointment endpoints.
type Dispatcher interface {
	Dispatch(ctx context.Context, appointmentID uuid.UUID) error
}

type RouterConfig struct {
	Service    *clinic.Service
	Sessions   *flow.SessionStore
	Dispatcher Dispatcher
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Registry   *prometheus.Registry
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	// Patient endpoints
	r.Post("/patients/lookup", lookupPatientHandler(cfg.Service))
	r.Post("/patients", createPatientHandler(cfg.Service))
	r.Patch("/patients/{id}/contact", updateContactHandler(cfg.Service))

	// Availability endpoints
	r.Get("/doctors/{id}/slots", listSlotsHandler(cfg.Service))

	// Appointment endpoints
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/insurance", attachInsuranceHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service, cfg.Dispatcher))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))

	// Conversational scheduling sessions
	if cfg.Sessions != nil {
		r.Post("/sessions", createSessionHandler(cfg.Sessions))
		r.Get("/sessions/{id}", getSessionHandler(cfg.Sessions))
		r.Post("/sessions/{id}/input", sessionInputHandler(cfg.Sessions))
	}

	return r
}
