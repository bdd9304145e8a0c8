package maxapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/max-bridge/telemetry"
)

const DefaultStreamURL = "wss://max.ru/ws"

// Stream keeps a WebSocket subscription to Max open and hands every pushed
// chat message to a callback. Closed connections are re-dialled after
// ReconnectDelay.
type Stream struct {
	URL            string
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
}

// NewStream returns a Stream for url with a 10s reconnect delay.
func NewStream(url string) *Stream {
	if url == "" {
		url = DefaultStreamURL
	}
	return &Stream{URL: url, Dialer: websocket.DefaultDialer, ReconnectDelay: 10 * time.Second}
}

type streamFrame struct {
	Type string `json:"type"`
	wireMessage
}

// Run connects with the token returned by token and calls handle for each
// message frame until ctx is done.
func (s *Stream) Run(ctx context.Context, token func() string, handle func(Message)) error {
	for {
		err := s.session(ctx, token(), handle)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("max stream closed; reconnecting", slog.Any("err", err), slog.Duration("delay", s.ReconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.ReconnectDelay):
		}
		telemetry.IncStreamReconnect()
	}
}

func (s *Stream) session(ctx context.Context, token string, handle func(Message)) error {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	hdr.Set("User-Agent", UserAgent)
	conn, resp, err := dialer.DialContext(ctx, s.URL, hdr)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial max stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		return fmt.Errorf("send stream auth: %w", err)
	}
	slog.Info("max stream connected", slog.String("url", s.URL))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f streamFrame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("max stream frame not JSON", slog.Any("err", err))
			continue
		}
		if f.Type != "message" {
			continue
		}
		m, ok := f.message()
		if !ok {
			continue
		}
		handle(m)
	}
}
