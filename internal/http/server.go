// Package http exposes the playback controller as a JSON control API next to
// health, readiness and Prometheus endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"playdeck/internal/core"
	"playdeck/internal/flood"
	"playdeck/internal/i18n"
	"playdeck/internal/playback"
	"playdeck/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxBodyBytes        = 1 << 16
	anonymousIdentity   = "anonymous"
)

// Player is the part of the playback controller served over HTTP.
type Player interface {
	Configure(enabled bool, identity string)
	Snapshot() playback.Snapshot
	Identity() string
	Play(ctx context.Context, trackID string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	SetVolume(ctx context.Context, level float64) error
	Disconnect()
}

// History lists recently started tracks.
type History interface {
	Recent(n int) []store.Entry
	Seen(trackID string) bool
}

// Options holds the collaborators of the control API. Player is required.
type Options struct {
	Player    Player
	History   History
	Gate      *flood.Floodgate
	Metrics   *Metrics
	Gatherer  prometheus.Gatherer
	Localizer *i18n.Localizer
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
}

func NewServer(config *core.ServerConfig, opts Options, logger *zap.Logger) *Server {
	mux := setupRoutes(opts, logger)

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, mux),
		metrics: opts.Metrics,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

// api carries the handlers' collaborators.
type api struct {
	player    Player
	history   History
	gate      *flood.Floodgate
	metrics   *Metrics
	localizer *i18n.Localizer
	logger    *zap.Logger
}

func setupRoutes(opts Options, logger *zap.Logger) *http.ServeMux {
	a := &api{
		player:    opts.Player,
		history:   opts.History,
		gate:      opts.Gate,
		metrics:   opts.Metrics,
		localizer: opts.Localizer,
		logger:    logger,
	}
	if a.localizer == nil {
		a.localizer = i18n.NewLocalizer(i18n.DefaultLanguage)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "playdeck"})
	})
	mux.HandleFunc("GET /readyz", a.handleReady)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/playback", a.route("snapshot", a.handleSnapshot))
	mux.HandleFunc("GET /api/playback/history", a.route("history", a.handleHistory))
	mux.HandleFunc("GET /api/playback/history/{trackId}", a.route("history_track", a.handleHistoryTrack))
	mux.HandleFunc("POST /api/playback/session", a.route("session", a.handleSession))
	mux.HandleFunc("POST /api/playback/disconnect", a.route("disconnect", a.handleDisconnect))
	mux.HandleFunc("POST /api/playback/play", a.route("play", a.limited(a.handlePlay)))
	mux.HandleFunc("POST /api/playback/pause", a.route("pause", a.limited(a.handlePause)))
	mux.HandleFunc("POST /api/playback/resume", a.route("resume", a.limited(a.handleResume)))
	mux.HandleFunc("POST /api/playback/seek", a.route("seek", a.limited(a.handleSeek)))
	mux.HandleFunc("POST /api/playback/volume", a.route("volume", a.limited(a.handleVolume)))

	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// statusWriter remembers the response code for the request counter.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *api) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		if a.metrics != nil {
			a.metrics.RequestsTotal.WithLabelValues(name, strconv.Itoa(sw.code)).Inc()
		}
	}
}

// limited rejects commands beyond the identity's per-minute budget.
func (a *api) limited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.gate == nil {
			h(w, r)
			return
		}
		identity := a.player.Identity()
		if identity == "" {
			identity = anonymousIdentity
		}
		if !a.gate.Allow(identity) {
			if a.metrics != nil {
				a.metrics.RateLimitedTotal.Inc()
			}
			a.logger.Warn("Playback command rate limited",
				zap.String("identity", identity),
				zap.String("path", r.URL.Path))
			if wait := a.gate.RetryAfter(identity); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			}
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Error:      "rate limited",
				Kind:       "rate_limited",
				Suggestion: a.localizer.T("error.rate_limited"),
			})
			return
		}
		h(w, r)
	}
}

func (a *api) handleReady(w http.ResponseWriter, _ *http.Request) {
	snap := a.player.Snapshot()
	code := http.StatusOK
	if snap.Status == core.StatusError {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(snap.Status), "service": "playdeck"})
}

func (a *api) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.player.Snapshot())
}

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeJSON(w, http.StatusOK, []store.Entry{})
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, a.history.Recent(limit))
}

type playedResponse struct {
	TrackID string `json:"trackId"`
	Played  bool   `json:"played"`
}

func (a *api) handleHistoryTrack(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("trackId")
	played := a.history != nil && a.history.Seen(trackID)
	writeJSON(w, http.StatusOK, playedResponse{TrackID: trackID, Played: played})
}

type sessionRequest struct {
	Enabled  bool   `json:"enabled"`
	Identity string `json:"identity"`
}

func (a *api) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.player.Configure(req.Enabled, req.Identity)
	writeJSON(w, http.StatusAccepted, a.player.Snapshot())
}

func (a *api) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	a.player.Disconnect()
	writeJSON(w, http.StatusOK, a.player.Snapshot())
}

type playRequest struct {
	TrackID string `json:"trackId"`
}

func (a *api) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.TrackID == "" {
		a.badRequest(w, "trackId is required")
		return
	}
	a.respond(w, a.player.Play(r.Context(), req.TrackID))
}

func (a *api) handlePause(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.player.Pause(r.Context()))
}

func (a *api) handleResume(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.player.Resume(r.Context()))
}

type seekRequest struct {
	PositionMs *int `json:"positionMs"`
}

func (a *api) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.PositionMs == nil {
		a.badRequest(w, "positionMs is required")
		return
	}
	a.respond(w, a.player.Seek(r.Context(), *req.PositionMs))
}

type volumeRequest struct {
	Level *float64 `json:"level"`
}

func (a *api) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Level == nil || *req.Level < 0 || *req.Level > 1 {
		a.badRequest(w, "level must be between 0 and 1")
		return
	}
	a.respond(w, a.player.SetVolume(r.Context(), *req.Level))
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.badRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (a *api) badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:      detail,
		Kind:       "bad_request",
		Suggestion: a.localizer.T("error.bad_request"),
	})
}

// respond writes the snapshot after a successful command, the mapped error otherwise.
func (a *api) respond(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, a.player.Snapshot())
		return
	}

	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		a.logger.Warn("Playback command failed", zap.Error(err))
	} else {
		a.logger.Debug("Playback command rejected", zap.Error(err))
	}
	writeJSON(w, code, errorBody{
		Error:      err.Error(),
		Kind:       core.KindCode(err),
		Suggestion: playback.Describe(a.localizer, err),
	})
}

type errorBody struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	Suggestion string `json:"suggestion,omitempty"`
}

// statusFor maps a playback error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrSessionNotReady):
		return http.StatusConflict
	case errors.Is(err, core.ErrMissingIdentity),
		errors.Is(err, core.ErrPremiumRequired),
		errors.Is(err, core.ErrScopesMissing),
		errors.Is(err, core.ErrPlaybackUnavailable),
		errors.Is(err, core.ErrUnsupportedPlatform):
		return http.StatusPreconditionFailed
	case errors.Is(err, core.ErrNoActiveDevice),
		errors.Is(err, core.ErrTokenRequestFailed):
		return http.StatusFailedDependency
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
