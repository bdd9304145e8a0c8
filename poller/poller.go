// Package poller fetches Max messages newer than the delivery cursor.
// Fetch failures are never fatal: they are logged and read as "no new
// messages". Only an authorization failure is returned to the caller.
package poller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/onnwee/max-bridge/credentials"
	"github.com/onnwee/max-bridge/maxapi"
	"github.com/onnwee/max-bridge/telemetry"
)

// Authenticator guarantees a usable credential, possibly blocking on the
// interactive capture flow.
type Authenticator interface {
	EnsureAuth(ctx context.Context) (credentials.Credential, error)
}

// Fetcher lists the latest page of messages.
type Fetcher interface {
	ListMessages(ctx context.Context, cred credentials.Credential, limit int) ([]maxapi.Message, error)
}

// Poller tracks the cursor across polls. The cursor lives in memory only.
type Poller struct {
	auth  Authenticator
	fetch Fetcher
	Limit int

	mu     sync.Mutex
	cursor Cursor
}

// New returns a Poller with an unset cursor.
func New(auth Authenticator, fetch Fetcher) *Poller {
	return &Poller{auth: auth, fetch: fetch, Limit: maxapi.PageSize}
}

// Cursor returns the current cursor.
func (p *Poller) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Poll returns messages newer than the cursor in their original order and
// advances the cursor to the highest id seen. The error is non-nil only when
// authorization could not be obtained.
func (p *Poller) Poll(ctx context.Context) ([]maxapi.Message, error) {
	cred, err := p.auth.EnsureAuth(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartPollSpan(ctx, cred.UserID, p.Limit)
	var items []maxapi.Message
	var fetchErr error
	telemetry.TimeFunc(telemetry.PollDuration, func() {
		items, fetchErr = p.fetch.ListMessages(ctx, cred, p.Limit)
	})
	telemetry.EndPollSpan(span, len(items), fetchErr)
	telemetry.IncPoll(fetchErr != nil)
	if fetchErr != nil {
		slog.Warn("error fetching max messages", slog.Any("err", fetchErr))
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	prior := p.cursor
	next := prior
	fresh := make([]maxapi.Message, 0, len(items))
	for _, m := range items {
		if !prior.Admits(m.ID) {
			continue
		}
		fresh = append(fresh, m)
		next = next.Advance(m.ID)
	}
	p.cursor = next
	if id, ok := next.Get(); ok {
		telemetry.SetCursor(id)
	}
	telemetry.AddFetched(len(fresh))
	if len(fresh) > 0 {
		slog.Debug("max messages fetched", slog.Int("count", len(fresh)))
	}
	return fresh, nil
}

// Accept applies the cursor rule to a single pushed message, advancing the
// cursor when the message is new.
func (p *Poller) Accept(m maxapi.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cursor.Admits(m.ID) {
		return false
	}
	p.cursor = p.cursor.Advance(m.ID)
	telemetry.SetCursor(m.ID)
	telemetry.AddFetched(1)
	return true
}
