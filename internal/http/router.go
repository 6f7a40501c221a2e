package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"voicejournal/internal/analytics"
	"voicejournal/internal/auth"
	"voicejournal/internal/checkin"
	"voicejournal/internal/config"
	"voicejournal/internal/crisis"
	"voicejournal/internal/entry"
	"voicejournal/internal/http/handler"
	mw "voicejournal/internal/http/middleware"
)

type Deps struct {
	Config    config.Config
	Logger    zerolog.Logger
	JWT       *auth.JWT
	Users     *auth.UserStore
	Sessions  *checkin.Registry
	Pipeline  *checkin.Pipeline
	Entries   *entry.Service
	Analytics *analytics.Service
	Resources crisis.ResourceDirectory

	// Ping reports backing store health for /health. Nil means always ok.
	Ping func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(mw.Metrics)

	if len(d.Config.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(d.Config.CORSAllowedOrigins, d.Config.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ping(ctx); err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	ah := &handler.AuthHandler{Users: d.Users, JWT: d.JWT}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{}
	r.With(auth.RequireAuth(d.JWT)).Get("/me", me.Me)

	ch := &handler.CheckinHandler{Sessions: d.Sessions, Pipeline: d.Pipeline, Resources: d.Resources}
	r.Route("/checkins", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/", ch.Create)
		r.Get("/resources", ch.CrisisResources)
		r.Get("/{id}", ch.Get)
		r.Delete("/{id}", ch.Delete)

		r.Post("/{id}/toggle", ch.Toggle)
		r.Post("/{id}/audio", ch.Audio)
		r.Post("/{id}/abort", ch.Abort)
		r.Put("/{id}/mood", ch.SelectMood)
		r.Post("/{id}/generate", ch.Generate)
		r.Post("/{id}/consent", ch.Consent)
		r.Post("/{id}/reset", ch.Reset)
	})

	eh := handler.NewEntryHandler(d.Entries)
	r.Route("/entries", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Get("/", eh.List)
		r.Get("/{id}", eh.Get)
		r.Delete("/{id}", eh.Delete)
	})

	dh := &handler.DashboardHandler{Analytics: d.Analytics}
	r.With(auth.RequireAuth(d.JWT)).Get("/dashboard", dh.Get)

	return r
}
