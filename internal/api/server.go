// Package api exposes the HTTP interface for the toll service. Routes:
//   - GET /api/v1/health for liveness probes.
//   - GET /api/v1/robots.txt to declare the service non-crawlable.
//   - GET /api/v1/tolls for the latest snapshot, or structured extraction
//     of a single page when ?url= is given.
//   - POST /api/v1/conv to convert a PDF at a URL into its JSON rendition.
//   - GET /metrics for Prometheus scraping.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/convert"
	"github.com/tollwatch/scraiper/internal/extract"
	"github.com/tollwatch/scraiper/internal/storage/postgres"
	"github.com/tollwatch/scraiper/internal/toll"
)

const (
	handlerTimeout = 60 * time.Second
	tollsTimeout   = 30 * time.Second
)

// SnapshotReader is the read side of the snapshot store.
type SnapshotReader interface {
	LatestSnapshotID(ctx context.Context) (int64, error)
	Records(ctx context.Context, snapshotID int64) ([]toll.TollRate, error)
}

// Converter turns a PDF at a URL into its structured JSON rendition.
type Converter interface {
	Convert(ctx context.Context, url string) (convert.Document, error)
}

// Config controls server behavior.
type Config struct {
	APIKey string
}

// Server wires HTTP handlers to the snapshot store, extractor, and
// converter.
type Server struct {
	router    chi.Router
	snapshots SnapshotReader
	extractor extract.Extractor
	converter Converter
	cfg       Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The extractor
// and converter may be nil, in which case their routes return 503.
func NewServer(snapshots SnapshotReader, extractor extract.Extractor, converter Converter, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		snapshots: snapshots,
		extractor: extractor,
		converter: converter,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(secureHeadersMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(handlerTimeout))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/health", s.health)
		r.Get("/robots.txt", s.robots)
		r.Get("/tolls", s.tolls)
		r.Post("/conv", s.conv)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"isOK": true})
}

func (s *Server) robots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"User-Agents": "*",
		"Disallow":    "/",
	})
}

// tolls serves the latest committed snapshot, or runs schema extraction
// against an arbitrary page when the url parameter is present.
func (s *Server) tolls(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), tollsTimeout)
	defer cancel()

	if url := r.URL.Query().Get("url"); url != "" {
		s.extractTolls(ctx, w, url)
		return
	}

	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
		return
	}
	snapshotID, err := s.snapshots.LatestSnapshotID(ctx)
	if err != nil {
		if errors.Is(err, postgres.ErrNoSnapshots) {
			writeError(w, http.StatusNotFound, "no snapshots committed yet")
			return
		}
		s.logger.Error("latest snapshot lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	records, err := s.snapshots.Records(ctx, snapshotID)
	if err != nil {
		s.logger.Error("snapshot read failed", zap.Int64("snapshot_id", snapshotID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snapshotID,
		"tolls":       records,
	})
}

// conv downloads the PDF named in the url form field and returns its
// parsed JSON rendition; both artifacts land in the content store.
func (s *Server) conv(w http.ResponseWriter, r *http.Request) {
	if s.converter == nil {
		writeError(w, http.StatusServiceUnavailable, "conversion not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	url := r.PostFormValue("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), tollsTimeout)
	defer cancel()

	doc, err := s.converter.Convert(ctx, url)
	if err != nil {
		s.logger.Error("conversion failed", zap.String("url", url), zap.Error(err))
		writeError(w, http.StatusBadGateway, "conversion failed")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) extractTolls(ctx context.Context, w http.ResponseWriter, url string) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction not configured")
		return
	}
	data, err := s.extractor.Extract(ctx, url, extract.TollFacilitySchema())
	if err != nil {
		s.logger.Error("extraction failed", zap.String("url", url), zap.Error(err))
		writeError(w, http.StatusBadGateway, "extraction failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":  url,
		"data": data,
	})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// secureHeadersMiddleware sets the OWASP REST security headers on every
// response.
func secureHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("Content-Security-Policy", "default-src-https")
		h.Set("Strict-Transport-Security", "max-age=63072000")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
