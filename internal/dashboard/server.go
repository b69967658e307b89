package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/geo"
	"github.com/sells-group/listings-cli/internal/model"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
}

type server struct {
	source Source
	region geo.Region
}

// NewRouter returns the dashboard HTTP API.
func NewRouter(src Source, region geo.Region, opts Options) http.Handler {
	s := &server{source: src, region: region}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", s.listings)
		r.Get("/markers", s.markers)
		r.Get("/cities", s.cities)
		r.Get("/bounds", s.bounds)
		r.Get("/view", s.view)
	})
	return r
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// load returns the snapshot, or writes the error response and false.
func (s *server) load(w http.ResponseWriter, r *http.Request) ([]model.Listing, bool) {
	listings, err := s.source.Listings(r.Context())
	if errors.Is(err, ErrNoData) {
		writeError(w, http.StatusServiceUnavailable, "no data yet: run the clean command first")
		return nil, false
	}
	if errors.Is(err, ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		zap.L().Error("dashboard: load snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load listings")
		return nil, false
	}
	return listings, true
}

// filtered loads the snapshot and applies the query filter.
func (s *server) filtered(w http.ResponseWriter, r *http.Request) ([]model.Listing, bool) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	listings, ok := s.load(w, r)
	if !ok {
		return nil, false
	}
	return Apply(listings, f), true
}

type listingsResponse struct {
	Count           int   `json:"count"`
	WithCoordinates int   `json:"with_coordinates"`
	Rows            []Row `json:"rows"`
}

func (s *server) listings(w http.ResponseWriter, r *http.Request) {
	listings, ok := s.filtered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, listingsResponse{
		Count:           len(listings),
		WithCoordinates: len(geo.InRegion(listings, s.region)),
		Rows:            Table(listings),
	})
}

func (s *server) markers(w http.ResponseWriter, r *http.Request) {
	listings, ok := s.filtered(w, r)
	if !ok {
		return
	}
	data, err := geo.Markers(listings, s.region)
	if err != nil {
		zap.L().Error("dashboard: encode markers", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to encode markers")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type citiesResponse struct {
	Cities  []string `json:"cities"`
	Default []string `json:"default"`
}

func (s *server) cities(w http.ResponseWriter, r *http.Request) {
	listings, ok := s.load(w, r)
	if !ok {
		return
	}
	all := Cities(listings)
	writeJSON(w, http.StatusOK, citiesResponse{Cities: all, Default: DefaultCities(all)})
}

func (s *server) bounds(w http.ResponseWriter, r *http.Request) {
	listings, ok := s.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, Bounds(listings))
}

func (s *server) view(w http.ResponseWriter, r *http.Request) {
	listings, ok := s.filtered(w, r)
	if !ok {
		return
	}
	v, found := Center(listings, s.region)
	if !found {
		v = RegionView(s.region)
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("dashboard: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request with zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("dashboard: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
