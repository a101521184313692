package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server exposes the pin API over HTTPS.
type Server struct {
	cfg       *Config
	registry  *LineRegistry
	selector  *Selector
	executor  *Executor
	lifecycle *Lifecycle
	clientCAs *x509.CertPool
	logger    *slog.Logger
	events    *EventLogger
	httpSrv   *http.Server
}

// NewServer wires the request path: selector and executor per request, with
// the lifecycle gating access to the hardware.
func NewServer(cfg *Config, reg *LineRegistry, driver Driver, lc *Lifecycle, clientCAs *x509.CertPool, logger *slog.Logger, events *EventLogger) *Server {
	polarity := Polarity{ActiveLow: cfg.ActiveLow}
	s := &Server{
		cfg:       cfg,
		registry:  reg,
		selector:  NewSelector(reg),
		executor:  NewExecutor(driver, polarity, cfg.RequestTimeout, logger),
		lifecycle: lc,
		clientCAs: clientCAs,
		logger:    logger,
		events:    events,
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler returns the complete middleware chain.  Authentication runs before
// routing, so unknown paths from unauthenticated clients also get a 401.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agent/config", s.handleConfig)
	mux.Handle("GET /agent/{mode}/{id}/{action}", s.requireReady(http.HandlerFunc(s.handleAction)))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, ErrNotFound)
	})

	var h http.Handler = mux
	h = s.withAuth(h)
	h = withSecurityHeaders(h)
	h = withAccessLog(s.logger, h)
	return withRequestID(h)
}

// ListenAndServe serves HTTPS until Shutdown.  It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) ListenAndServe(tlsConfig *tls.Config) error {
	s.httpSrv.TLSConfig = tlsConfig
	s.logger.Info("listening", "addr", "https://0.0.0.0"+s.httpSrv.Addr)
	return s.httpSrv.ListenAndServeTLS("", "")
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires, then closes whatever is left.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.httpSrv.Close()
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.lifecycle.Ready() {
			s.writeError(w, r, fmt.Errorf("%w (%s)", ErrNotReady, s.lifecycle.State()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type configResponse struct {
	EnabledPins []int `json:"enabled_pins"`
	GPIOMap     []int `json:"gpio_map"`
}

// handleConfig returns the allowlist and the gpio to pin table.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		EnabledPins: s.registry.Allowlist(),
		GPIOMap:     s.registry.GPIOMap(),
	})
}

type actionResponse struct {
	Error    string     `json:"error,omitempty"`
	PinState []PinState `json:"pinstate"`
}

// handleAction serves /agent/{mode}/{id}/{action}.  Every token is validated
// before any pin is touched.  When some pins fail the response is a 500 that
// still lists every pin, with the failures marked.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	mode, err := ParseMode(r.PathValue("mode"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sel, err := s.selector.Select(mode, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	action, err := ParseAction(r.PathValue("action"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	batch, err := s.executor.Execute(r.Context(), sel, action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	client := clientName(r.Context())
	for _, res := range batch {
		if res.Err != nil {
			s.events.Log("%s pin %d failed for %s: %v", action, res.Pin, client, res.Err)
			continue
		}
		if action != ActionStatus {
			s.events.Log("%s pin %d -> %t by %s", action, res.Pin, res.State, client)
		}
	}

	resp := actionResponse{PinState: batch.PinStates()}
	if err := batch.Err(); err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError renders err with the status from statusFor.  Authentication and
// routing failures use the standard status text rather than internal detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, ErrUnauthenticated):
		msg = "Access Denied"
	case errors.Is(err, ErrNotFound):
		msg = http.StatusText(http.StatusNotFound)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "path", r.URL.Path, "status", status, "error", err, "request_id", requestID(r.Context()))
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
