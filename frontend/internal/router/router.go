package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/babbling-brook/streambed/frontend/internal/middleware"
	"github.com/babbling-brook/streambed/frontend/internal/setup"
	mw "github.com/babbling-brook/streambed/shared/middleware"
	"github.com/babbling-brook/streambed/shared/middleware/metrics"
)

// New wires every route of the view service.
// IMPORTANT! the rate limiter set with .Use limits requests for all endpoints combined
// in that group
func New(deps *setup.Dependencies) http.Handler {
	r := chi.NewRouter()
	h := deps.Handler
	httpCfg := deps.Public.HTTP

	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   httpCfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.SecurityHeaders(mw.SecurityOptions{HTTPS: httpCfg.SecureCookies, CSP: mw.APICSP, NoStore: true}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", deps.Hub.Handler(h.PushSession))

	r.Route("/api", func(r chi.Router) {
		r.Use(mw.RateLimit(deps.RateLimiter, mw.GetIP))
		r.Use(deps.Auth.OptionalAuth())
		r.Use(middleware.GenerateCSRFToken(middleware.CSRFConfig{SecureCookies: httpCfg.SecureCookies}))

		r.Post("/sessions", h.OpenSession)

		r.Route("/sessions/{session}", func(r chi.Router) {
			r.Use(h.Recover)
			r.Use(middleware.ValidateCSRFToken())

			r.Delete("/", h.CloseSession)

			r.Post("/cascades", h.OpenCascade)
			r.Route("/cascades/{cascade}", func(r chi.Router) {
				r.Get("/", h.GetCascade)
				r.Delete("/", h.CloseCascade)
				r.Post("/scroll", h.Scroll)
				r.Post("/resize", h.Resize)
				r.Post("/retry", h.Retry)
				r.Post("/update", h.Update)
				r.Post("/reveal", h.Reveal)
				r.Post("/posts/{domain}/{post}/show-update", h.ShowUpdate)
			})
			r.Post("/updates", h.Broadcast)

			r.Get("/messages", h.GetMessages)
			r.Post("/messages", h.AddMessage)
			r.Post("/messages/{message}/press", h.PressButton)
			r.Post("/messages/{message}/ack", h.AcknowledgeMessage)
			r.Post("/messages/{message}/toggle", h.ToggleMessage)
			r.Post("/path", h.SetPath)
			r.Post("/suggestion-mode", h.SetSuggestionMode)

			r.Get("/waiting-count", h.WaitingPostCount)
			r.Get("/info/{kind}", h.Info)
			r.Post("/compose/validate", h.ValidateDraft)

			// Posting and taking need a signed-in visitor
			r.Group(func(r chi.Router) {
				r.Use(deps.Auth.NeedAuth())
				r.Post("/compose", h.SubmitDraft)
				r.Post("/posts/{domain}/{post}/delete", h.RequestDelete)
				r.Post("/posts/{domain}/{post}/delete/confirm", h.ConfirmDelete)
				r.Post("/posts/{domain}/{post}/delete/cancel", h.CancelDelete)
				r.Post("/posts/{domain}/{post}/take", h.Take)
				r.Post("/posts/{domain}/{post}/ring-take", h.TakeRing)
			})
		})
	})

	return r
}

