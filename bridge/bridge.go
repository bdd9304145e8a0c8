// Package bridge drives the relay loop: poll Max on a fixed interval and
// hand every new message to the dispatcher. With a stream configured,
// pushed messages are relayed between polls through the same cursor, so a
// message seen by both paths goes out once.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/max-bridge/maxapi"
)

// Poller is the cursor-tracking message source.
type Poller interface {
	Poll(ctx context.Context) ([]maxapi.Message, error)
	Accept(m maxapi.Message) bool
}

// Dispatcher delivers messages to the destination sinks.
type Dispatcher interface {
	Dispatch(ctx context.Context, msgs []maxapi.Message)
	Relay(ctx context.Context, m maxapi.Message)
}

// Streamer pushes messages as they arrive.
type Streamer interface {
	Run(ctx context.Context, token func() string, handle func(maxapi.Message)) error
}

type Bridge struct {
	Poller     Poller
	Dispatcher Dispatcher
	Interval   time.Duration

	// Stream is optional. Token supplies its bearer token.
	Stream Streamer
	Token  func() string
}

// Run polls until ctx is done (nil) or authorization fails (that error).
// The stream, if any, starts after the first successful poll so it always
// connects with a valid credential.
func (b *Bridge) Run(ctx context.Context) error {
	interval := b.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pushed := make(chan maxapi.Message)
	streaming := false
	slog.Info("max monitoring started", slog.Duration("interval", interval), slog.Bool("stream", b.Stream != nil))

	for {
		msgs, err := b.Poller.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		b.Dispatcher.Dispatch(ctx, msgs)

		if b.Stream != nil && !streaming {
			streaming = true
			go func() {
				_ = b.Stream.Run(ctx, b.Token, func(m maxapi.Message) {
					select {
					case pushed <- m:
					case <-ctx.Done():
					}
				})
			}()
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				slog.Info("max monitoring stopped")
				return nil
			case m := <-pushed:
				if b.Poller.Accept(m) {
					b.Dispatcher.Relay(ctx, m)
				}
			case <-ticker.C:
				break wait
			}
		}
	}
}
