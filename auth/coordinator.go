// Package auth guarantees a valid Max credential exists before any API call.
// When none is available it runs the local capture flow synchronously and
// reloads the credential afterwards.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/onnwee/max-bridge/credentials"
	"github.com/onnwee/max-bridge/server"
)

// ErrAuthorizationNotObtained is returned when the capture flow finished
// without leaving a usable credential behind. It is fatal for the bridge.
var ErrAuthorizationNotObtained = errors.New("authorization not obtained")

// CredentialSource yields the effective credential (file merged with env).
type CredentialSource interface {
	Resolve() (credentials.Credential, error)
}

// CaptureFunc runs one capture session and blocks until it ends.
type CaptureFunc func(ctx context.Context) error

// ServerCapture returns a CaptureFunc running a fresh capture server per call.
func ServerCapture(addr, pagePath string, store server.CredentialSaver) CaptureFunc {
	return func(ctx context.Context) error {
		return server.New(addr, pagePath, store).Run(ctx)
	}
}

// Coordinator owns the in-memory credential. Consumers read it through
// EnsureAuth or Credential; it only changes through Reload.
type Coordinator struct {
	source  CredentialSource
	capture CaptureFunc
	// Timeout bounds the human authorization step; zero waits forever.
	Timeout time.Duration
	// Out receives operator guidance.
	Out io.Writer

	mu   sync.RWMutex
	cred credentials.Credential
}

// NewCoordinator returns a Coordinator seeded with initial.
func NewCoordinator(initial credentials.Credential, source CredentialSource, capture CaptureFunc) *Coordinator {
	return &Coordinator{source: source, capture: capture, cred: initial, Out: os.Stdout}
}

// Credential returns the current credential without side effects.
func (c *Coordinator) Credential() credentials.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

// Reload replaces the credential with a fresh read from the source.
func (c *Coordinator) Reload() (credentials.Credential, error) {
	cred, err := c.source.Resolve()
	if err != nil {
		return credentials.Credential{}, err
	}
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
	return cred, nil
}

// EnsureAuth returns a valid credential, running the capture flow first when
// the current one is incomplete. A failed or empty capture yields
// ErrAuthorizationNotObtained; the flow is never retried here.
func (c *Coordinator) EnsureAuth(ctx context.Context) (credentials.Credential, error) {
	if cred := c.Credential(); cred.Valid() {
		return cred, nil
	}

	out := c.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintln(out, "Не найдены данные для авторизации в Max.")
	fmt.Fprintln(out, "Запускаю сервер авторизации...")

	captureCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		captureCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if err := c.capture(captureCtx); err != nil {
		return credentials.Credential{}, fmt.Errorf("%w: %w", ErrAuthorizationNotObtained, err)
	}

	cred, err := c.Reload()
	if err != nil {
		return credentials.Credential{}, fmt.Errorf("%w: reload: %w", ErrAuthorizationNotObtained, err)
	}
	if !cred.Valid() {
		return credentials.Credential{}, ErrAuthorizationNotObtained
	}
	slog.Info("max authorization obtained", slog.String("user_id", cred.UserID))
	return cred, nil
}
