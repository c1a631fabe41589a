// Package api exposes the pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/api/gateway"
	splunk "github.com/lvonguyen/sectorintel/internal/ingestion"
	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
	"github.com/lvonguyen/sectorintel/internal/pipeline"
	"github.com/lvonguyen/sectorintel/internal/report"
	"github.com/lvonguyen/sectorintel/internal/sector"
	"github.com/lvonguyen/sectorintel/internal/store"
)

// DefaultMaxBodyBytes bounds ingest request bodies.
const DefaultMaxBodyBytes = 10 << 20

// Options configures the server. Pipeline is required; Receiver, Limiter and
// MetricsHandler are mounted only when set.
type Options struct {
	Pipeline       *pipeline.Pipeline
	Receiver       *splunk.HECReceiver
	Limiter        *gateway.RateLimiter
	MetricsHandler http.Handler
	Version        string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// Server serves the pipeline API.
type Server struct {
	pipeline       *pipeline.Pipeline
	receiver       *splunk.HECReceiver
	limiter        *gateway.RateLimiter
	metricsHandler http.Handler
	version        string
	requestTimeout time.Duration
	maxBodyBytes   int64
	logger         *zap.Logger
	metrics        *observability.Metrics
}

// NewServer creates a server.
func NewServer(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		pipeline:       opts.Pipeline,
		receiver:       opts.Receiver,
		limiter:        opts.Limiter,
		metricsHandler: opts.MetricsHandler,
		version:        opts.Version,
		requestTimeout: opts.RequestTimeout,
		maxBodyBytes:   opts.MaxBodyBytes,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}, nil
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware(nil))
			}
			r.Post("/ingest", s.handleIngest)
			r.Post("/collect", s.handleCollect)
		})

		r.Get("/feeds/health", s.handleFeedHealth)

		r.Route("/runs/{runID}", func(r chi.Router) {
			r.Get("/indicators", s.handleIndicators)
			r.Get("/summary", s.handleSummary)
			r.Get("/sectors/{sector}", s.handleSector)
			r.Get("/sectors/agriculture/iot", s.handleIoT)
			r.Get("/compliance", s.handleCompliance)
			r.Get("/attack", s.handleCoverage)
			r.Get("/attack/tactics", s.handleTactics)
		})
	})

	// HEC-compatible endpoints (for Splunk integration)
	if s.receiver != nil {
		var hec http.Handler = s.receiver.Routes()
		if s.limiter != nil {
			hec = s.limiter.Middleware(nil)(hec)
		}
		r.Mount("/services/collector", hec)
	}

	return r
}

// requestLogger logs each request and records it in the request metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.ObserveRequest(r.Method, route, strconv.Itoa(status), start)

		s.logger.Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Health and readiness handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": s.version})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.pipeline.Store().Ping(ctx); err != nil {
		s.logger.Warn("Readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Pipeline run handlers

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var raws []intel.RawThreatRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err := dec.Decode(&raws); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON array of threat records")
		return
	}

	result, err := s.pipeline.Run(r.Context(), raws)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	result, err := s.pipeline.Collect(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeedHealth(w http.ResponseWriter, r *http.Request) {
	reg := s.pipeline.Feeds()
	if reg == nil {
		s.fail(w, r, pipeline.ErrNoFeeds)
		return
	}

	failures := reg.HealthCheck(r.Context())
	status := make(map[string]string, len(reg.Names()))
	for _, name := range reg.Names() {
		status[name] = "ok"
		if err, ok := failures[name]; ok {
			status[name] = err.Error()
		}
	}

	code := http.StatusOK
	if len(failures) > 0 {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"feeds": status})
}

// Stored run handlers

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	priority := r.URL.Query().Get("priority")
	switch priority {
	case "", intel.PriorityCritical, intel.PriorityHigh, intel.PriorityMedium, intel.PriorityLow:
	default:
		writeError(w, http.StatusBadRequest, "unknown priority: "+priority)
		return
	}

	inds, err := s.pipeline.Indicators(r.Context(), chi.URLParam(r, "runID"), priority)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indicators": inds, "count": len(inds)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.pipeline.Summary(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSector(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "sector")
	inds, err := s.pipeline.Sector(r.Context(), chi.URLParam(r, "runID"), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sector": name, "indicators": inds, "count": len(inds)})
}

func (s *Server) handleIoT(w http.ResponseWriter, r *http.Request) {
	inds, err := s.pipeline.IoT(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indicators": inds, "count": len(inds)})
}

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	rep, err := s.pipeline.ComplianceReport(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, rep)
	case "pdf":
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="compliance-report.pdf"`)
		if err := report.WriteCompliancePDF(w, rep); err != nil {
			s.logger.Error("Failed to render compliance PDF", zap.Error(err))
		}
	default:
		writeError(w, http.StatusBadRequest, "format must be json or pdf")
	}
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	coverage, err := s.pipeline.Coverage(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"techniques": coverage, "count": len(coverage)})
}

func (s *Server) handleTactics(w http.ResponseWriter, r *http.Request) {
	tactics, err := s.pipeline.TacticCoverage(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tactics": tactics, "count": len(tactics)})
}

// fail maps pipeline errors onto HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sector.ErrUnknownSector):
		return http.StatusNotFound
	case errors.Is(err, sector.ErrNotScored):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrNoFeeds):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
