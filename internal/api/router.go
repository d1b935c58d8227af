package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carebook/scheduling/internal/booking"
	"github.com/carebook/scheduling/internal/schedule"
)

type RouterConfig struct {
	Service   *booking.Service
	Templates schedule.Repository
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := NewHandler(cfg.Service, cfg.Templates, cfg.Logger)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.BookAppointment)
		r.Get("/", h.ListMyAppointments)
		r.Get("/{id}", h.GetAppointment)

		r.Post("/{id}/accept", h.Accept)
		r.Post("/{id}/reject", h.Reject)
		r.Post("/{id}/deposit", h.PayDeposit)
		r.Post("/{id}/deposit/confirm", h.ConfirmDeposit)
		r.Post("/{id}/attendance", h.MarkAttendance)
		r.Post("/{id}/complete", h.MarkComplete)
		r.Post("/{id}/patient-complete", h.PatientComplete)
		r.Post("/{id}/balance", h.PayBalance)
		r.Post("/{id}/balance/confirm", h.ConfirmBalance)
		r.Post("/{id}/review", h.SubmitReview)
		r.Post("/{id}/cancel", h.Cancel)
		r.Post("/{id}/complaint", h.FileComplaint)
	})

	r.Route("/providers/{kind}/{id}", func(r chi.Router) {
		r.Get("/slots", h.OpenSlots)
		r.Get("/availability", h.GetAvailability)
		r.Put("/availability", h.UpsertAvailability)
	})

	return r
}
