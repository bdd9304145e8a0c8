package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onnwee/max-bridge/credentials"
	"github.com/onnwee/max-bridge/server"
)

type staticSource struct {
	cred  credentials.Credential
	err   error
	calls int
}

func (s *staticSource) Resolve() (credentials.Credential, error) {
	s.calls++
	return s.cred, s.err
}

func TestEnsureAuthValidShortCircuits(t *testing.T) {
	src := &staticSource{}
	captured := false
	c := NewCoordinator(credentials.Credential{Token: "t", UserID: "u"}, src, func(context.Context) error {
		captured = true
		return nil
	})
	c.Out = io.Discard

	cred, err := c.EnsureAuth(context.Background())
	if err != nil {
		t.Fatalf("EnsureAuth() error = %v", err)
	}
	if cred.Token != "t" || cred.UserID != "u" {
		t.Errorf("EnsureAuth() = %+v", cred)
	}
	if captured || src.calls != 0 {
		t.Error("valid credential must not trigger capture or reload")
	}
}

func TestEnsureAuthCapturesAndReloads(t *testing.T) {
	src := &staticSource{}
	c := NewCoordinator(credentials.Credential{Token: "only-token"}, src, func(context.Context) error {
		src.cred = credentials.Credential{Token: "abc", UserID: "123"}
		return nil
	})
	c.Out = io.Discard

	cred, err := c.EnsureAuth(context.Background())
	if err != nil {
		t.Fatalf("EnsureAuth() error = %v", err)
	}
	if cred.Token != "abc" || cred.UserID != "123" {
		t.Errorf("EnsureAuth() = %+v", cred)
	}
	if got := c.Credential(); got != cred {
		t.Errorf("Credential() = %+v, want %+v", got, cred)
	}
}

func TestEnsureAuthStillMissing(t *testing.T) {
	src := &staticSource{cred: credentials.Credential{Token: "abc"}}
	c := NewCoordinator(credentials.Credential{}, src, func(context.Context) error { return nil })
	c.Out = io.Discard

	if _, err := c.EnsureAuth(context.Background()); !errors.Is(err, ErrAuthorizationNotObtained) {
		t.Errorf("EnsureAuth() error = %v, want ErrAuthorizationNotObtained", err)
	}
}

func TestEnsureAuthCaptureError(t *testing.T) {
	bind := errors.New("address in use")
	c := NewCoordinator(credentials.Credential{}, &staticSource{}, func(context.Context) error { return bind })
	c.Out = io.Discard

	_, err := c.EnsureAuth(context.Background())
	if !errors.Is(err, ErrAuthorizationNotObtained) || !errors.Is(err, bind) {
		t.Errorf("EnsureAuth() error = %v, want both sentinel and cause", err)
	}
}

func TestEnsureAuthReloadError(t *testing.T) {
	c := NewCoordinator(credentials.Credential{}, &staticSource{err: errors.New("bad json")}, func(context.Context) error { return nil })
	c.Out = io.Discard
	if _, err := c.EnsureAuth(context.Background()); !errors.Is(err, ErrAuthorizationNotObtained) {
		t.Errorf("EnsureAuth() error = %v", err)
	}
}

func TestEnsureAuthTimeout(t *testing.T) {
	c := NewCoordinator(credentials.Credential{}, &staticSource{}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.Out = io.Discard
	c.Timeout = 20 * time.Millisecond

	_, err := c.EnsureAuth(context.Background())
	if !errors.Is(err, ErrAuthorizationNotObtained) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("EnsureAuth() error = %v, want deadline wrapped in sentinel", err)
	}
}

// Fresh process, no file, no env overrides: the capture server is started,
// the browser hook fires, and a callback completes the flow.
func TestEnsureAuthEndToEnd(t *testing.T) {
	t.Setenv(credentials.EnvToken, "")
	t.Setenv(credentials.EnvUserID, "")
	dir := t.TempDir()
	page := filepath.Join(dir, "auth.html")
	if err := os.WriteFile(page, []byte("<html></html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	store := credentials.NewStore(filepath.Join(dir, "max_config.json"), nil)

	browserOpened := make(chan struct{}, 1)
	capture := func(ctx context.Context) error {
		srv := server.New("127.0.0.1:0", page, store)
		srv.Out = io.Discard
		srv.OpenBrowser = func(u string) error {
			browserOpened <- struct{}{}
			go func() {
				client := &http.Client{Timeout: 2 * time.Second}
				resp, err := client.Get(u + "/save?token=abc&user_id=123")
				if err == nil {
					_ = resp.Body.Close()
				}
			}()
			return nil
		}
		return srv.Run(ctx)
	}

	c := NewCoordinator(credentials.Credential{}, credentials.NewResolver(store), capture)
	c.Out = io.Discard
	c.Timeout = 10 * time.Second

	cred, err := c.EnsureAuth(context.Background())
	if err != nil {
		t.Fatalf("EnsureAuth() error = %v", err)
	}
	select {
	case <-browserOpened:
	default:
		t.Error("browser was not opened")
	}
	if cred.Token != "abc" || cred.UserID != "123" {
		t.Errorf("EnsureAuth() = %+v, want abc/123", cred)
	}
}
