package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/gossip"
)

// RuntimeInfo provides the daemon server with read-only access to a
// running node's gossip engine. This interface decouples the daemon
// package from cmd/slick-node's concrete wiring.
type RuntimeInfo interface {
	Snapshot(ctx context.Context) (gossip.Snapshot, error)
	Version() string
}

// Server is the daemon's Unix socket introspection API. It exposes
// exactly GET /v1/status, /v1/nodes, /v1/keys, and /v1/watches — no
// mutation endpoints. Publish/Discover/Retract/Forget/Lost remain
// in-process Go calls on slick.Discovery only.
type Server struct {
	runtime    RuntimeInfo
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	cookiePath string
	authToken  string
	version    string
	shutdownCh chan struct{}

	metrics *slick.Metrics
}

// NewServer creates a new daemon API server.
func NewServer(runtime RuntimeInfo, socketPath, cookiePath, version string) *Server {
	return &Server{
		runtime:    runtime,
		socketPath: socketPath,
		cookiePath: cookiePath,
		version:    version,
		shutdownCh: make(chan struct{}),
	}
}

// SetInstrumentation configures optional Prometheus instrumentation.
// Must be called before Start(). Nil-safe.
func (s *Server) SetInstrumentation(metrics *slick.Metrics) {
	s.metrics = metrics
}

// ShutdownCh returns a channel that is closed when the server stops.
func (s *Server) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

// Start creates the Unix socket, writes the cookie file, and starts
// serving. It returns immediately — the server runs on a background
// goroutine.
func (s *Server) Start() error {
	token, err := generateCookie()
	if err != nil {
		return fmt.Errorf("failed to generate auth cookie: %w", err)
	}
	s.authToken = token

	if err := s.checkStaleSocket(); err != nil {
		return err
	}

	// Setting umask(0077) before Listen ensures the socket is created
	// with 0600 permissions atomically, eliminating the window between
	// Listen() and Chmod() that a TOCTOU race could exploit.
	oldUmask := syscall.Umask(0077)
	listener, err := net.Listen("unix", s.socketPath)
	syscall.Umask(oldUmask)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Cookie is written only after the socket is secured, so a client
	// racing to read it can never connect before the socket accepts
	// authenticated requests.
	if err := os.WriteFile(s.cookiePath, []byte(token), 0600); err != nil {
		listener.Close()
		os.Remove(s.socketPath)
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	slog.Info("daemon cookie written", "path", s.cookiePath)

	s.listener = listener

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Handler:      InstrumentHandler(s.authMiddleware(mux), s.metrics),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("daemon server error", "error", err)
		}
	}()

	slog.Info("daemon API listening", "socket", s.socketPath)
	return nil
}

// Stop gracefully shuts down the HTTP server and removes the socket
// and cookie files.
func (s *Server) Stop() {
	slog.Info("daemon server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}

	os.Remove(s.socketPath)
	os.Remove(s.cookiePath)
	close(s.shutdownCh)
	slog.Info("daemon server stopped")
}

// checkStaleSocket removes a leftover socket file from a daemon that
// died without cleaning up, and rejects startup if another daemon is
// actually live on it.
func (s *Server) checkStaleSocket() error {
	if _, err := os.Stat(s.socketPath); os.IsNotExist(err) {
		return nil
	}

	conn, err := net.DialTimeout("unix", s.socketPath, 2*time.Second)
	if err != nil {
		slog.Info("removing stale daemon socket", "path", s.socketPath)
		os.Remove(s.socketPath)
		return nil
	}

	conn.Close()
	return fmt.Errorf("%w: socket %s is already in use", ErrDaemonAlreadyRunning, s.socketPath)
}

// generateCookie creates a 32-byte random hex token.
func generateCookie() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// authMiddleware checks the Authorization: Bearer <token> header on
// every request.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		expected := "Bearer " + s.authToken

		if auth != expected {
			respondError(w, http.StatusUnauthorized, "unauthorized: invalid or missing auth token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
