// Package api serves the replay HTTP API: page control, stored snapshots
// and batches, and Prometheus metrics.
//
//	GET    /healthz
//	GET    /metrics
//	GET    /pages
//	POST   /pages
//	DELETE /pages/{pageID}
//	POST   /pages/{pageID}/capture
//	GET    /pages/{pageID}/snapshot
//	POST   /snapshot
//	GET    /snapshots/{snapshotID}
//	GET    /snapshots/{snapshotID}/batches
//	GET    /sessions/{sessionID}/snapshots?limit=N
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/replay"
	"github.com/hazyhaar/replay/capture"
	"github.com/hazyhaar/replay/diff"
	"github.com/hazyhaar/replay/internal/urlguard"
	"github.com/hazyhaar/replay/recorder"
	"github.com/hazyhaar/replay/store"
)

// Recorder is the part of replay.Recorder the API drives.
type Recorder interface {
	Pages() []replay.PageStatus
	CapturePage(ctx context.Context, pc replay.PageConfig) error
	StopPage(pageID string) error
	CaptureNow(ctx context.Context, pageID string) (*capture.Output, error)
	SnapshotOnce(ctx context.Context, url string, privacy recorder.PrivacyLevel) (*diff.Snapshot, error)
}

// Server holds the API dependencies.
type Server struct {
	rec    Recorder
	store  *store.Store
	reg    prometheus.Gatherer
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStore serves stored snapshots from st. Without a store those routes
// answer 503.
func WithStore(st *store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.reg = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server.
func New(rec Recorder, opts ...Option) *Server {
	s := &Server{rec: rec, reg: prometheus.DefaultGatherer, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(headToGet)
	r.Use(securityHeaders)
	r.Use(maxBody(64 * 1024))
	r.Use(requestID(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	r.Route("/pages", func(r chi.Router) {
		r.Get("/", s.handleListPages)
		r.Post("/", s.handleCapturePage)
		r.Route("/{pageID}", func(r chi.Router) {
			r.Delete("/", s.handleStopPage)
			r.Post("/capture", s.handleCaptureNow)
			r.Get("/snapshot", s.handleLatestSnapshot)
		})
	})
	r.Post("/snapshot", s.handleSnapshotOnce)
	r.Get("/snapshots/{snapshotID}", s.handleGetSnapshot)
	r.Get("/snapshots/{snapshotID}/batches", s.handleBatches)
	r.Get("/sessions/{sessionID}/snapshots", s.handleSessionSnapshots)
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("api: listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleListPages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rec.Pages())
}

type capturePageRequest struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Source       string `json:"source"`
	StealthLevel string `json:"stealth_level"`
	Interval     string `json:"interval"`
	Privacy      string `json:"privacy"`
	SessionID    string `json:"session_id"`
	FullEvery    int    `json:"full_snapshot_every"`
}

func (s *Server) handleCapturePage(w http.ResponseWriter, r *http.Request) {
	var req capturePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == "" || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id and url are required"})
		return
	}
	pc := replay.PageConfig{
		ID:                req.ID,
		URL:               req.URL,
		Source:            req.Source,
		StealthLevel:      req.StealthLevel,
		Privacy:           req.Privacy,
		SessionID:         req.SessionID,
		FullSnapshotEvery: req.FullEvery,
	}
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		pc.Interval = d
	}
	if err := s.rec.CapturePage(r.Context(), pc); err != nil {
		code := http.StatusBadGateway
		switch {
		case errors.Is(err, replay.ErrPageExists):
			code = http.StatusConflict
		case rejected(err):
			code = http.StatusBadRequest
		}
		getLogger(r.Context()).Warn("api: capture page", "page_id", req.ID, "error", err)
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "status": "capturing"})
}

func (s *Server) handleStopPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageID")
	if err := s.rec.StopPage(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type captureResponse struct {
	Kind  string `json:"kind"` // snapshot | batch | unchanged
	ID    string `json:"id,omitempty"`
	Nodes int    `json:"nodes"`
}

func (s *Server) handleCaptureNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageID")
	out, err := s.rec.CaptureNow(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	resp := captureResponse{Kind: "unchanged", Nodes: out.Tree.Count()}
	switch {
	case out.Snapshot != nil:
		resp.Kind, resp.ID = "snapshot", out.Snapshot.ID
	case out.Batch != nil:
		resp.Kind, resp.ID = "batch", out.Batch.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type snapshotRequest struct {
	URL     string `json:"url"`
	Privacy string `json:"privacy"`
}

func (s *Server) handleSnapshotOnce(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}
	snap, err := s.rec.SnapshotOnce(r.Context(), req.URL, recorder.ParsePrivacyLevel(req.Privacy))
	if err != nil {
		getLogger(r.Context()).Warn("api: snapshot", "url", req.URL, "error", err)
		code := http.StatusBadGateway
		if rejected(err) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	snap, err := s.store.LatestSnapshot(r.Context(), chi.URLParam(r, "pageID"))
	s.writeSnapshot(w, r, snap, err)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	snap, err := s.store.GetSnapshot(r.Context(), chi.URLParam(r, "snapshotID"))
	s.writeSnapshot(w, r, snap, err)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request, snap *diff.Snapshot, err error) {
	switch {
	case err != nil:
		getLogger(r.Context()).Error("api: load snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	case snap == nil:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "snapshot not found"})
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	batches, err := s.store.BatchesSince(r.Context(), chi.URLParam(r, "snapshotID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if batches == nil {
		batches = []diff.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleSessionSnapshots(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	infos, err := s.store.ListSnapshots(r.Context(), chi.URLParam(r, "sessionID"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if infos == nil {
		infos = []store.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot store configured"})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, replay.ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// rejected reports whether err is a refusal of the caller's input rather
// than a failure to reach the page.
func rejected(err error) bool {
	return errors.Is(err, urlguard.ErrUnsafeScheme) ||
		errors.Is(err, urlguard.ErrPrivateAddress) ||
		errors.Is(err, urlguard.ErrInvalidIdentifier)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
