// Package previewhttp serves a run's project directory over HTTP so the
// generated site can be inspected — by the evaluator, or by a human — while
// the run is still in progress.
package previewhttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
)

// Server is a background file server rooted at one directory. Start is
// idempotent in the sense that a port already bound by a prior instance of
// this same server is tolerated rather than treated as a fatal error.
type Server struct {
	root string
	host string
	port int

	mu      sync.Mutex
	httpSrv *http.Server
	started bool
}

// New creates a server that will, once started, serve root at host:port.
func New(root, host string, port int) *Server {
	return &Server{root: root, host: host, port: port}
}

// Start launches the HTTP listener in the background. If the port is
// already in use, Start assumes a prior instance of this same preview is
// already serving it and returns successfully without starting a second
// listener.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if isAddrInUse(err) {
			s.started = true
			return nil
		}
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	fileServer := http.FileServer(http.Dir(s.root))
	mux.Handle("/", withPreviewHeaders(fileServer))

	srv := &http.Server{Handler: mux}
	s.httpSrv = srv
	s.started = true

	go func() {
		_ = srv.Serve(listener)
	}()
	return nil
}

// Stop shuts the server down; safe to call multiple times and safe to call
// even if Start tolerated a pre-existing listener on the port (in which case
// there is nothing local to shut down).
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv == nil {
		s.started = false
		return nil
	}
	err := s.httpSrv.Shutdown(ctx)
	s.httpSrv = nil
	s.started = false
	return err
}

func withPreviewHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	return errors.Is(opErr.Err, syscall.EADDRINUSE)
}
