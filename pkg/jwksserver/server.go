// Package jwksserver serves a static JWKS document over HTTP. It is meant
// for local testing of clients, not for production use.
package jwksserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/jetstack/jwks-resolver/pkg/jwks"
)

const (
	// JWKSPath is where the document is served.
	JWKSPath = "/.well-known/jwks.json"
	// MetricsPath is where the Prometheus metrics are served.
	MetricsPath = "/metrics"
)

// Options configure a Server.
type Options struct {
	// Listen is the address to listen on, e.g. ":8080".
	Listen string
	// JWKSFile is the path of the JWKS document to serve.
	JWKSFile string
	// AllowedToken, when set, is the bearer token that requests for the
	// document must carry.
	AllowedToken string
	// Compact disables the colored request log.
	Compact bool
}

// Server serves one JWKS document and its request metrics.
type Server struct {
	opts     Options
	document []byte
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

// LoadDocument reads a JWKS document from path and checks that it parses.
// It returns the document as is, along with the number of usable keys.
func LoadDocument(ctx context.Context, path string) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read JWKS file: %w", err)
	}

	records, err := jwks.ParseKeySet(ctx, data, time.Now())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse JWKS file %s: %w", path, err)
	}
	return data, len(records), nil
}

// New creates a server for document.
func New(opts Options, document []byte) *Server {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jwks_resolver",
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "Requests for the JWKS document, by status code.",
	}, []string{"code"})
	registry.MustRegister(
		requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Server{
		opts:     opts,
		document: document,
		registry: registry,
		requests: requests,
	}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(JWKSPath, s.jwksHandler)
	mux.Handle(MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	log := klog.FromContext(ctx).WithName("server")

	server := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening to requests", "address", s.opts.Listen, "path", JWKSPath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) jwksHandler(w http.ResponseWriter, r *http.Request) {
	code, err := s.checkAuthorization(w, r)
	if err != nil {
		s.writeError(w, r, err.Error(), code)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, r, fmt.Sprintf("invalid method. Expected GET, received %s", r.Method), http.StatusMethodNotAllowed)
		return
	}

	s.requests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	if !s.opts.Compact {
		color.Green("-- %s %s -> %d (%d bytes)\n", r.Method, r.URL.Path, http.StatusOK, len(s.document))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(s.document)
	}
}

func (s *Server) checkAuthorization(w http.ResponseWriter, r *http.Request) (int, error) {
	if s.opts.AllowedToken != "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="JWKS"`)

		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 {
			return http.StatusBadRequest, fmt.Errorf("bad request: malformed Authorization header")
		}

		if parts[0] != "Bearer" {
			return http.StatusUnauthorized, fmt.Errorf("not authorized")
		}

		if parts[1] != s.opts.AllowedToken {
			return http.StatusUnauthorized, fmt.Errorf("not authorized")
		}
	}

	return 0, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, msg string, code int) {
	s.requests.WithLabelValues(strconv.Itoa(code)).Inc()
	if !s.opts.Compact {
		color.Red("-- %s %s -> error %d: %s\n", r.Method, r.URL.Path, code, msg)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{ "error": %q, "code": %d }`, msg, code)
}
