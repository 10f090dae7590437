// Package server exposes the analysis engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pagepulse/pagepulse/internal/engine"
	"github.com/pagepulse/pagepulse/internal/report"
	"github.com/pagepulse/pagepulse/internal/store"
)

// Analyzer runs one analysis. Satisfied by *engine.Engine.
type Analyzer interface {
	Analyze(ctx context.Context, req engine.Request) (*report.AnalysisReport, error)
}

// Archive persists finished reports. Satisfied by *store.Store; nil disables
// persistence.
type Archive interface {
	Save(ctx context.Context, rep *report.AnalysisReport) error
	Get(ctx context.Context, id string) (*report.AnalysisReport, error)
	List(ctx context.Context, limit int) ([]store.Entry, error)
}

// analyzeRequest is the POST /api/analyze body.
type analyzeRequest struct {
	URL        string          `json:"url"`
	Device     string          `json:"device,omitempty"`
	Network    string          `json:"network,omitempty"`
	Auth       json.RawMessage `json:"auth,omitempty"`
	Screenshot bool            `json:"screenshot,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server routes API requests to the engine and the report archive.
type Server struct {
	analyzer Analyzer
	archive  Archive
	logger   *zap.Logger
	router   *mux.Router

	registry         *prometheus.Registry
	analysesTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
}

// New builds a server. A nil archive disables persistence endpoints' writes;
// a nil logger disables logging.
func New(analyzer Analyzer, archive Archive, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		analyzer: analyzer,
		archive:  archive,
		logger:   logger,
		router:   mux.NewRouter(),
		registry: prometheus.NewRegistry(),
		analysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagepulse_analyses_total",
			Help: "Analyses by outcome.",
		}, []string{"status"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagepulse_analysis_duration_seconds",
			Help:    "Wall time of one analysis.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	s.registry.MustRegister(s.analysesTotal, s.analysisDuration)

	s.router.HandleFunc("/api/analyze", s.handleAnalyze).Methods(http.MethodPost)
	s.router.HandleFunc("/api/reports", s.handleListReports).Methods(http.MethodGet)
	s.router.HandleFunc("/api/reports/{id}", s.handleGetReport).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := precheck(r.Context(), req.URL); err != nil {
		s.analysesTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var auth any
	if len(req.Auth) > 0 {
		auth = req.Auth
	}

	start := time.Now()
	rep, err := s.analyzer.Analyze(r.Context(), engine.Request{
		URL:         req.URL,
		DeviceType:  req.Device,
		NetworkTier: req.Network,
		Auth:        auth,
		Screenshot:  req.Screenshot,
	})
	s.analysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.analysesTotal.WithLabelValues("error").Inc()
		s.logger.Error("analysis failed", zap.String("url", req.URL), zap.Error(err))
		writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
		return
	}
	s.analysesTotal.WithLabelValues("ok").Inc()

	if s.archive != nil {
		if err := s.archive.Save(r.Context(), rep); err != nil {
			// The caller still gets their report; only the archive copy is lost.
			s.logger.Warn("archive save failed", zap.String("report_id", rep.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "persistence disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.archive.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list reports failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "listing failed"})
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "persistence disabled"})
		return
	}
	id := mux.Vars(r)["id"]
	rep, err := s.archive.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no such report"})
		return
	}
	if err != nil {
		s.logger.Error("get report failed", zap.String("report_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// precheck rejects obviously unreachable targets before a browser is
// launched for them. Unresolvable hosts fail here in milliseconds instead
// of after a full navigation timeout.
func precheck(ctx context.Context, raw string) error {
	u, err := engine.ValidateURL(raw)
	if err != nil {
		return err
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		return nil
	}
	var resolver net.Resolver
	if _, err := resolver.LookupHost(ctx, host); err != nil {
		return errors.Join(engine.ErrNetworkFailure, err)
	}
	return nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNavigationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, engine.ErrNetworkFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
