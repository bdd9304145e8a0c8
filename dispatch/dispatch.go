// Package dispatch forwards Max messages to every configured destination.
// Delivery is synchronous and send-and-ignore: a failing sink is logged and
// counted, and the remaining sinks and messages still go out.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/onnwee/max-bridge/maxapi"
	"github.com/onnwee/max-bridge/telemetry"
)

// Sink is a destination chat backend.
type Sink interface {
	Name() string
	Send(ctx context.Context, m maxapi.Message) error
}

type Dispatcher struct {
	sinks []Sink
}

// New returns a Dispatcher over sinks, skipping nil entries.
func New(sinks ...Sink) *Dispatcher {
	d := &Dispatcher{}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// Len returns the number of active sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Dispatch relays msgs in order.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []maxapi.Message) {
	for _, m := range msgs {
		if ctx.Err() != nil {
			return
		}
		d.Relay(ctx, m)
	}
}

// Relay sends one message to each sink in turn.
func (d *Dispatcher) Relay(ctx context.Context, m maxapi.Message) {
	slog.Info("max message", slog.Int64("message_id", m.ID), slog.String("sender", m.Sender))
	for _, s := range d.sinks {
		err := s.Send(ctx, m)
		telemetry.IncRelay(s.Name(), err)
		if err != nil {
			slog.Warn("relay failed", slog.String("sink", s.Name()), slog.Int64("message_id", m.ID), slog.Any("err", err))
			continue
		}
		slog.Debug("message relayed", slog.String("sink", s.Name()), slog.Int64("message_id", m.ID))
	}
}
