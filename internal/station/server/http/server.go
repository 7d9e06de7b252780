package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/groundpeer/internal/coordinator"
	"github.com/autopeer-io/groundpeer/internal/journal"
	"github.com/autopeer-io/groundpeer/internal/logsink"
	"github.com/autopeer-io/groundpeer/internal/pkg/metrics"
	"github.com/autopeer-io/groundpeer/internal/ports"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/options"
)

const apiPrefix = "/api/v1"

// Backend is what the control API exposes.
type Backend struct {
	Coordinator *coordinator.Coordinator
	State       *ports.State
	Enumerator  ports.Enumerator
	Sink        *logsink.Sink

	// Journal is optional.
	Journal *journal.Journal

	// Ready reports readiness; nil means always ready.
	Ready func() bool
}

type Server struct {
	server  *http.Server
	backend *Backend
	options *options.HttpOptions
}

func NewServer(opts *options.HttpOptions, b *Backend) *Server {
	return &Server{
		server:  &http.Server{Addr: opts.Addr},
		backend: b,
		options: opts,
	}
}

// NewHandler builds the control API router. Submitted actions run under ctx,
// not under the request that submitted them.
func NewHandler(ctx context.Context, b *Backend) http.Handler {
	h := &handler{ctx: ctx, b: b}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// API routes live on the root router so a method mismatch answers 405.
	r.HandleFunc(apiPrefix+"/ports", h.listPorts).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/sessions", h.listSessions).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/vehicles/{role}/{action}", h.submitAction).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/missions/{role}", h.getMission).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/logs", h.listLogs).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/journal", h.listJournal).Methods(http.MethodGet)

	r.Use(logRequests)
	return r
}

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "addr", s.server.Addr)
	s.server.Handler = NewHandler(ctx, s.backend)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug("HTTP request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
