// Package api serves the dispatch HTTP/JSON interface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/isuku/isuku-dispatch/internal/matching"
	"github.com/isuku/isuku-dispatch/internal/store"
	"github.com/isuku/isuku-dispatch/pkg/geocode"
)

// Server holds the handler dependencies.
type Server struct {
	store         store.Store
	matcher       *matching.Matcher
	geocoder      geocode.Client
	defaultRadius float64
	corsOrigins   []string
	limiter       *rate.Limiter
	gatherer      prometheus.Gatherer
	log           *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithDefaultRadius sets the radius used when a nearby query has no
// max_distance.
func WithDefaultRadius(km float64) Option {
	return func(s *Server) {
		if km > 0 {
			s.defaultRadius = km
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimit limits API requests to rps with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithGatherer serves g on /metrics instead of the default gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer returns a Server. geocoder may be nil, in which case pickups
// without coordinates stay unlocated.
func NewServer(st store.Store, m *matching.Matcher, geocoder geocode.Client, opts ...Option) *Server {
	s := &Server{
		store:         st,
		matcher:       m,
		geocoder:      geocoder,
		defaultRadius: matching.DefaultSearchRadiusKM,
		corsOrigins:   []string{"*"},
		gatherer:      prometheus.DefaultGatherer,
		log:           zap.L().With(zap.String("component", "api")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/collectors", func(r chi.Router) {
			r.Get("/nearby", s.nearbyCollectors)
			r.Post("/", s.createCollector)
			r.Put("/{id}/location", s.updateCollectorLocation)
			r.Put("/{id}/availability", s.updateCollectorAvailability)
			r.Get("/{id}/pickups/nearby", s.nearbyPickups)
		})
		r.Route("/pickups", func(r chi.Router) {
			r.Post("/", s.createPickup)
			r.Get("/{id}", s.getPickup)
			r.Post("/{id}/assign", s.assignPickup)
			r.Post("/{id}/auto-assign", s.autoAssignPickup)
			r.Get("/{id}/assignments", s.listAssignments)
		})
	})
	return r
}
