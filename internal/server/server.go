// Package server exposes the wikiatlas HTTP API: thin routes that proxy
// the Wikipedia search endpoints through the cache layer, plus the event
// submission stub, health, and metrics.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mkorolev/wikiatlas/cache"
	"github.com/mkorolev/wikiatlas/geocache"
	"github.com/mkorolev/wikiatlas/wiki"
)

// Options configures the HTTP surface (not the caches; those are built in
// main and injected).
type Options struct {
	// CORSOrigins lists allowed browser origins. Empty means no CORS
	// headers are emitted (same-origin deployments).
	CORSOrigins []string

	// RateLimitRequests per RateLimitWindow per client IP on the API
	// routes. Zero disables rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server holds the handlers' dependencies.
type Server struct {
	svc      *wiki.Service
	resp     cache.Cache[string, []wiki.Article]
	details  cache.Cache[string, []wiki.Article]
	coverage *geocache.Cache[wiki.Article]
	events   *eventLog
	log      zerolog.Logger
	opts     Options
}

// New wires a Server around an assembled wiki.Service and its caches.
// The cache handles are only read for health/stats reporting; all cache
// policy lives in the service.
func New(
	svc *wiki.Service,
	resp cache.Cache[string, []wiki.Article],
	details cache.Cache[string, []wiki.Article],
	coverage *geocache.Cache[wiki.Article],
	log zerolog.Logger,
	opts Options,
) *Server {
	return &Server{
		svc:      svc,
		resp:     resp,
		details:  details,
		coverage: coverage,
		events:   newEventLog(),
		log:      log,
		opts:     opts,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         86400,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		if s.opts.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(s.opts.RateLimitRequests, s.opts.RateLimitWindow))
		}
		r.Get("/search", s.handleSearch)
		r.Get("/articles", s.handleArticles)
		r.Get("/events", s.handleListEvents)
		r.Post("/events", s.handleSubmitEvent)
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
