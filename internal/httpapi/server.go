// Package httpapi is the gateway's loopback-only HTTP surface: playlist,
// XMLTV, HDHomeRun emulation, the live stream endpoint, Prometheus
// exposition, and a test-mode seeding endpoint. Router shape, the
// logging middleware, and graceful shutdown follow
// internal/tuner/server.go.
package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamforge/tuner-gateway/internal/session"
	"github.com/streamforge/tuner-gateway/internal/store"
	"github.com/streamforge/tuner-gateway/internal/synth"
	"github.com/streamforge/tuner-gateway/internal/vault"
)

// Server wires every HTTP route to the store and the running services.
type Server struct {
	Addr         string
	BaseURL      string
	DeviceID     string
	FriendlyName string
	TestMode     bool

	DB       *store.Store
	Vault    *vault.Vault
	Sessions *session.Manager
	XMLTV    *synth.XMLTVCache

	httpSrv *http.Server
}

// Run builds the route table and serves until ctx is canceled, then
// shuts down gracefully with a 10s deadline.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/playlist.m3u", s.handlePlaylist)
	mux.HandleFunc("/epg.xml", s.handleEPG)
	mux.HandleFunc("/discover.json", s.handleDiscover)
	mux.HandleFunc("/lineup.json", s.handleLineup)
	mux.HandleFunc("/lineup_status.json", s.handleLineupStatus)
	mux.HandleFunc("/stream/", s.handleStream)
	mux.Handle("/metrics", promhttp.Handler())
	if s.TestMode {
		mux.HandleFunc("/test/seed", s.handleTestSeed)
	}

	addr := s.Addr
	if addr == "" {
		addr = "127.0.0.1:5004"
	}
	s.httpSrv = &http.Server{Addr: addr, Handler: logRequests(mux)}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("httpapi: listening on %s", addr)
		serverErr <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("httpapi: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("httpapi: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf("http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
