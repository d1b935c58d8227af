package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/scheduling/internal/booking"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorMiddleware extracts the authenticated caller from the X-Actor-Id and
// X-Actor-Role headers set by the upstream auth gateway. Requests without a
// well-formed pair still pass through; handlers that need an actor reject them.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-Actor-Id"))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		var role booking.Role
		switch booking.Role(r.Header.Get("X-Actor-Role")) {
		case booking.RolePatient, booking.RoleDoctor, booking.RoleInstitute:
			role = booking.Role(r.Header.Get("X-Actor-Role"))
		default:
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, booking.Actor{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext returns the caller installed by ActorMiddleware.
func ActorFromContext(ctx context.Context) (booking.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(booking.Actor)
	return actor, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
