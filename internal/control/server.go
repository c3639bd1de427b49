package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server serves a Service over HTTP.
type Server struct {
	svc    Service
	router *mux.Router
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a control server for svc.
func NewServer(svc Service, logger zerolog.Logger) *Server {
	s := &Server{
		svc:    svc,
		router: mux.NewRouter(),
		logger: logger.With().Str("component", "control").Logger(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  time.Minute,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(loggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/launch/{package}", s.handleLaunch).Methods("POST")
	s.router.HandleFunc("/launch/{package}", s.handleCheckLaunch).Methods("GET")
	s.router.HandleFunc("/monitor", s.handlePreviewMonitor).Methods("GET")
	s.router.HandleFunc("/apps", s.handleListApps).Methods("GET")
	s.router.HandleFunc("/apps/{package}", s.handleGetApp).Methods("GET")
	s.router.HandleFunc("/apps/{package}/allowed", s.handleSetAllowed).Methods("PUT")
	s.router.HandleFunc("/apps/{package}/limit", s.handleSetLimit).Methods("PUT")
	s.router.HandleFunc("/apps/{package}/limit", s.handleClearLimit).Methods("DELETE")
	s.router.HandleFunc("/usage/today", s.handleTodayUsage).Methods("GET")
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen opens the control socket at path. A stale socket file left by a
// previous run is replaced; a socket that still answers is an error.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create control socket directory: %w", err)
	}
	if conn, err := net.DialTimeout("unix", path, time.Second); err == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("control socket %s is already in use", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale control socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(path, 0o660); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod control socket: %w", err)
	}
	return ln, nil
}

// Serve answers requests on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting control server")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the control server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Stopping control server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["package"]

	result, err := s.svc.RequestLaunch(r.Context(), pkg)
	if err != nil {
		s.fail(w, err, "Launch failed")
		return
	}
	writeJSON(w, http.StatusOK, encodeLaunch(result))
}

func (s *Server) handleCheckLaunch(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["package"]

	at := time.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid at %q (want RFC 3339)", v))
			return
		}
		at = t.In(time.Local)
	}

	result, err := s.svc.CheckLaunch(r.Context(), pkg, at)
	if err != nil {
		s.fail(w, err, "Launch check failed")
		return
	}
	writeJSON(w, http.StatusOK, encodeLaunch(result))
}

func (s *Server) handlePreviewMonitor(w http.ResponseWriter, r *http.Request) {
	preview, err := s.svc.PreviewMonitor(r.Context())
	if err != nil {
		s.fail(w, err, "Monitor preview failed")
		return
	}
	writeJSON(w, http.StatusOK, encodePreview(preview))
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.svc.Apps(r.Context())
	if err != nil {
		s.fail(w, err, "Failed to list apps")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.App(r.Context(), mux.Vars(r)["package"])
	if err != nil {
		s.fail(w, err, "Failed to get app")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSetAllowed(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["package"]

	var req allowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	app, err := s.svc.SetAllowed(r.Context(), pkg, req.DisplayName, req.Allowed)
	if err != nil {
		s.fail(w, err, "Failed to update allowlist")
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var rule storage.TimeLimit
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule.PackageName = mux.Vars(r)["package"]

	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.svc.SetLimit(r.Context(), rule); err != nil {
		s.fail(w, err, "Failed to set limit")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleClearLimit(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["package"]
	if err := s.svc.ClearLimit(r.Context(), pkg); err != nil {
		s.fail(w, err, "Failed to clear limit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Limit cleared"})
}

func (s *Server) handleTodayUsage(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.TodayUsage(r.Context())
	if err != nil {
		s.fail(w, err, "Failed to read usage")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// fail maps a service error to a response. Missing records are 404.
func (s *Server) fail(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, strings.TrimSuffix(err.Error(), ": "+storage.ErrNotFound.Error()))
		return
	}
	s.logger.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", msg, err))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func loggingMiddleware(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Msg("Control request")
		})
	}
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
