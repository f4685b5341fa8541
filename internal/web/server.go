// Package web provides the HTTP status server and virtual buttons for the
// stove-controller daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/logic"
	"github.com/sweeney/stove-controller/internal/status"
)

// CommandFunc delivers an operator command to the controller. It reports
// false when the controller is no longer accepting work.
type CommandFunc func(logic.Command) bool

// Options configures optional parts of the server.
type Options struct {
	// Command handles POST /command/{start,stop,force}. Nil disables the buttons.
	Command CommandFunc
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// EventsTopic is the MQTT topic the live page subscribes to.
	EventsTopic string
	Logger      zerolog.Logger
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	opts       Options
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	s := &Server{tracker: tracker, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("POST /command/{name}", s.handleCommand)
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.opts.EventsTopic, s.opts.Command != nil); err != nil {
		s.opts.Logger.Error().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleCommand is a virtual button. Browsers posting the status page form
// are redirected back to it; other clients get JSON.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.opts.Command == nil {
		writeCommandJSON(w, http.StatusNotFound, commandResponse{Error: "commands disabled"})
		return
	}
	cmd, err := logic.ParseCommand(r.PathValue("name"))
	if err != nil {
		writeCommandJSON(w, http.StatusNotFound, commandResponse{Error: err.Error()})
		return
	}
	if !s.opts.Command(cmd) {
		writeCommandJSON(w, http.StatusServiceUnavailable, commandResponse{Command: string(cmd), Error: "controller stopped"})
		return
	}
	s.opts.Logger.Info().Str("command", string(cmd)).Str("remote", r.RemoteAddr).Msg("virtual button")

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeCommandJSON(w, http.StatusAccepted, commandResponse{Command: string(cmd), Accepted: true})
}
