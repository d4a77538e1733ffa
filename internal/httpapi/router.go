package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"umrahlink/internal/api"
	"umrahlink/internal/audit"
	"umrahlink/internal/auth"
	"umrahlink/internal/booking"
	"umrahlink/internal/bookingview"
	"umrahlink/internal/messaging"
	"umrahlink/internal/session"
	"umrahlink/pkg/backend"
	"umrahlink/pkg/config"
)

type Dependencies struct {
	Cfg     config.Config
	Log     *zap.Logger
	Backend *backend.Client
	Issuer  session.Issuer
	Audit   audit.Recorder
	// DB is nil when auditing is disabled.
	DB *pgxpool.Pool
	// StreamsClosing ends open message streams when closed.
	StreamsClosing <-chan struct{}
}

func NewRouter(deps Dependencies) http.Handler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	rec := deps.Audit
	if rec == nil {
		rec = audit.Nop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(api.RequestLogger(log))
	r.Use(api.CORSMiddleware(api.CORSOptions{
		AllowedOrigins:   deps.Cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAgeSeconds:    600,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := deps.Backend.Health(ctx); err != nil {
			log.Warn("readiness: backend", zap.Error(err))
			api.WriteError(w, http.StatusServiceUnavailable, api.CodeBackendUnavailable, "backend not ready")
			return
		}
		if deps.DB != nil {
			if err := deps.DB.Ping(ctx); err != nil {
				log.Warn("readiness: database", zap.Error(err))
				api.WriteError(w, http.StatusServiceUnavailable, api.CodeInternal, "database not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	authHandlers := auth.Handlers{
		Backend:      deps.Backend,
		Issuer:       deps.Issuer,
		CookieName:   deps.Cfg.Session.CookieName,
		SecureCookie: deps.Cfg.IsProd(),
		Log:          log,
	}
	bookingHandlers := bookingview.Handlers{
		Backend: deps.Backend,
		Gate:    booking.NewGate(log.Named("gate")),
		Audit:   rec,
		Log:     log,
	}
	messagingHandlers := messaging.Handlers{
		Backend: deps.Backend,
		Stream:  messaging.StreamConfig{Interval: deps.Cfg.MessagePollInterval, Closing: deps.StreamsClosing},
		Log:     log,
	}

	// v1
	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandlers.Login)

		r.Group(func(r chi.Router) {
			r.Use(api.SessionAuth(deps.Issuer, deps.Cfg.Session.CookieName, log))

			r.Post("/auth/logout", authHandlers.Logout)
			r.Get("/auth/me", authHandlers.Me)

			bookingHandlers.Mount(r)
			messagingHandlers.Mount(r)
		})
	})

	return r
}
