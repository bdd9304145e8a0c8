// Package server implements the local, single-use authorization capture
// listener. It serves a landing page, accepts the /save callback carrying the
// Max token and user id, persists them and then stops itself.
//
// The /save handler never shuts the listener down itself: it writes the
// response, flushes it and hands a stop signal to the supervisor goroutine in
// Serve, which calls http.Server.Shutdown. Shutdown waits for the in-flight
// response, so the browser always sees the success page.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/browser"

	"github.com/onnwee/max-bridge/credentials"
)

// DefaultAddr is the fixed capture address registered with the Max redirect.
const DefaultAddr = "localhost:8080"

// CredentialSaver persists a captured credential.
type CredentialSaver interface {
	Save(credentials.Credential) error
}

// Server is one capture session. It must not be reused after Serve returns.
type Server struct {
	Addr     string
	PagePath string
	Store    CredentialSaver
	// OpenBrowser is called with the landing URL once the listener is bound.
	// Defaults to browser.OpenURL. Errors are logged and ignored.
	OpenBrowser func(url string) error
	// Out receives the startup banner lines.
	Out io.Writer

	ln       net.Listener
	stop     chan struct{}
	captured atomic.Bool
}

// New returns a capture server for addr serving the landing page at pagePath.
func New(addr, pagePath string, store CredentialSaver) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		Addr:        addr,
		PagePath:    pagePath,
		Store:       store,
		OpenBrowser: browser.OpenURL,
		Out:         os.Stdout,
		stop:        make(chan struct{}, 1),
	}
}

// Listen binds the listener. Serve calls it when it has not been called yet.
func (s *Server) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("auth server listen %s: %w", s.Addr, err)
	}
	s.ln = ln
	return nil
}

// URL returns the landing page URL. Valid after Listen.
func (s *Server) URL() string {
	if s.ln == nil {
		return "http://" + s.Addr
	}
	host, _, err := net.SplitHostPort(s.Addr)
	_, port, _ := net.SplitHostPort(s.ln.Addr().String())
	if err != nil || host == "" {
		return "http://" + s.ln.Addr().String()
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Captured reports whether a valid callback has been accepted.
func (s *Server) Captured() bool { return s.captured.Load() }

// Run binds the listener, prints the banner, opens the browser and serves
// until a credential is captured or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	url := s.URL()
	fmt.Fprintf(s.out(), "Сервер авторизации запущен на %s\n", url)
	fmt.Fprintln(s.out(), "Откройте браузер для авторизации...")
	if s.OpenBrowser != nil {
		if err := s.OpenBrowser(url); err != nil {
			slog.Warn("could not open browser; open the URL manually", slog.String("url", url), slog.Any("err", err))
		}
	}
	return s.Serve(ctx)
}

// Serve blocks until a credential has been captured (nil), ctx is cancelled
// (ctx.Err()) or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		// Access and connection noise stays off the operator's terminal.
		ErrorLog: log.New(io.Discard, "", 0),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(s.ln) }()

	select {
	case <-s.stop:
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("auth server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("auth server shutdown error", slog.Any("err", err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("auth server: %w", err)
	}
	if !s.Captured() && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (s *Server) out() io.Writer {
	if s.Out == nil {
		return io.Discard
	}
	return s.Out
}

// requestStop hands the stop signal to the supervisor without blocking.
func (s *Server) requestStop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}
