// v0
// internal/api/server.go
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"nrgchamp/fuzzycrac/internal/metrics"
)

// NewRouter registers every route. A nil m serves no /metrics and records
// nothing.
func NewRouter(h *Handlers, m *metrics.Metrics) *mux.Router {
	r := mux.NewRouter()
	route := func(path string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, m.WrapHandler(path, fn)).Methods(methods...)
	}
	route("/", h.Index, http.MethodGet)
	route("/api/health", h.Health, http.MethodGet)
	route("/api/control", h.Control, http.MethodPost)
	route("/api/manual-control", h.ManualControl, http.MethodPost)
	route("/api/simulation", h.Simulation, http.MethodPost)
	route("/api/membership", h.Membership, http.MethodGet)
	route("/api/rules", h.Rules, http.MethodGet)
	route("/api/alerts", h.Alerts, http.MethodGet)
	route("/api/bus/status", h.BusStatus, http.MethodGet)
	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	return r
}

// Wrap adds CORS and a combined access log in front of the router.
func Wrap(router http.Handler, accessLog io.Writer) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.CombinedLoggingHandler(accessLog, cors(router))
}

type Server struct {
	HTTP *http.Server
	Log  *slog.Logger
}

func NewServer(addr string, log *slog.Logger, handler http.Handler) *Server {
	hs := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// a full simulation takes a while at high resolution
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{HTTP: hs, Log: log}
}

func (s *Server) Start() error {
	s.Log.Info("http server starting", "addr", s.HTTP.Addr)
	return s.HTTP.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.Log.Info("http server stopping")
	return s.HTTP.Shutdown(ctx)
}
