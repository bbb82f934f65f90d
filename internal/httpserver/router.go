package httpserver

import (
	"net/http"

	"lv-onboarding/internal/accounts"
	"lv-onboarding/internal/auth"
	"lv-onboarding/internal/health"
	"lv-onboarding/internal/identity"
	"lv-onboarding/internal/logging"
	"lv-onboarding/internal/onboarding"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterDeps struct {
	SignupHandler   *onboarding.Handler
	IdentityHandler *identity.Handler
	AccountsHandler *accounts.Handler
	HealthHandler   *health.Handler
	AuthService     *auth.Service
	RateLimiter     *RateLimiter
	Gatherer        prometheus.Gatherer
	Logger          *zap.Logger
	InternalToken   string
	CORSOrigins     []string
}

// attemptHandler receives the attempt resolved by WithAttempt; the id is
// empty when the request carries none.
type attemptHandler func(w http.ResponseWriter, r *http.Request, attemptID string)

func withAttemptID(h attemptHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(w, r, AttemptID(r))
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Requests(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", onboarding.AttemptHeader, "X-Internal-Token"},
		ExposedHeaders:   []string{onboarding.AttemptHeader, "Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(SecurityHeaders)
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Middleware)
	}

	r.Get("/health", d.HealthHandler.Ready)
	r.Get("/health/live", d.HealthHandler.Live)
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/signup", func(r chi.Router) {
		r.Use(WithAttempt(d.AuthService))
		s := d.SignupHandler
		r.Get("/", withAttemptID(s.Enter))
		r.Post("/", withAttemptID(s.Start))
		r.Get("/progress", withAttemptID(s.Progress))
		r.Post("/restart", withAttemptID(s.Restart))
		r.Get("/step-{n}", withAttemptID(s.Enter))
		r.Post("/step-{n}", withAttemptID(s.Submit))
		r.Post("/step-{n}/back", withAttemptID(s.Back))
		r.Get("/complete", withAttemptID(s.Review))
		r.Post("/complete", withAttemptID(s.Complete))
		r.Post("/complete/back", withAttemptID(s.BackFromReview))
	})

	r.Route("/v1/internal", func(r chi.Router) {
		r.Use(InternalAuth(d.InternalToken))
		r.Get("/health", d.HealthHandler.Full)
		r.Get("/identities/{id}", func(w http.ResponseWriter, r *http.Request) {
			d.IdentityHandler.Get(w, r, chi.URLParam(r, "id"))
		})
		r.Get("/identities/{id}/account", func(w http.ResponseWriter, r *http.Request) {
			d.AccountsHandler.ByIdentity(w, r, chi.URLParam(r, "id"))
		})
	})

	return r
}
