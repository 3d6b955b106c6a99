package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const indexPage = `<html>
<head><title>Chopsticks Metrics</title></head>
<body>
<h1>Chopsticks Metrics</h1>
<p><a href="/metrics">Prometheus metrics</a></p>
<p><a href="/v1/summary">Summary (JSON)</a></p>
</body>
</html>
`

// Server exposes the pull-based metrics endpoint. Reporting is a required
// deliverable of a run, so a bind failure at startup is returned as a fatal
// error rather than logged and ignored.
type Server struct {
	addr string
	src  SummarySource
	log  zerolog.Logger

	mux        *http.ServeMux
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates an exposition server on addr backed by src.
func NewServer(addr string, src SummarySource, log zerolog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewPromCollector(src))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/summary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(src.Summary(time.Now())); err != nil {
			log.Error().Err(err).Msg("summary encode failed")
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, indexPage)
	})

	return &Server{
		addr: addr,
		src:  src,
		log:  log,
		mux:  mux,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handle registers an additional route before Start (the coordinator mounts
// its snapshot ingest endpoint this way).
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and begins serving in the background. The bind
// error is returned synchronously so the caller can treat it as fatal.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind metrics endpoint %s: %w", s.addr, err)
	}
	s.listener = ln
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("metrics endpoint listening")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
