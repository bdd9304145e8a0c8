// Package matrix relays Max messages into a Matrix room.
package matrix

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/onnwee/max-bridge/maxapi"
)

// Options selects the homeserver, identity and target room. Either
// Username/Password or AccessToken/UserID must be set.
type Options struct {
	Homeserver  string
	Username    string
	Password    string
	AccessToken string
	UserID      string
	RoomID      string
	HTTPClient  *http.Client
}

// Sink posts m.text events to one room.
type Sink struct {
	client *mautrix.Client
	room   id.RoomID
}

// New connects to the homeserver, logging in with a password when no access
// token is supplied.
func New(ctx context.Context, opts Options) (*Sink, error) {
	if opts.RoomID == "" {
		return nil, fmt.Errorf("matrix room id empty")
	}
	cli, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix client: %w", err)
	}
	cli.Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.WarnLevel).
		With().Timestamp().Str("component", "matrix").Logger()
	if opts.HTTPClient != nil {
		cli.Client = opts.HTTPClient
	}
	if opts.AccessToken == "" {
		if opts.Username == "" || opts.Password == "" {
			return nil, fmt.Errorf("matrix login requires username and password")
		}
		_, err := cli.Login(ctx, &mautrix.ReqLogin{
			Type:                     mautrix.AuthTypePassword,
			Identifier:               mautrix.UserIdentifier{Type: mautrix.IdentifierTypeUser, User: opts.Username},
			Password:                 opts.Password,
			InitialDeviceDisplayName: "max-bridge",
			StoreCredentials:         true,
		})
		if err != nil {
			return nil, fmt.Errorf("matrix login: %w", err)
		}
	}
	return &Sink{client: cli, room: id.RoomID(opts.RoomID)}, nil
}

func (s *Sink) Name() string { return "matrix" }

// Send posts m to the room.
func (s *Sink) Send(ctx context.Context, m maxapi.Message) error {
	if _, err := s.client.SendText(ctx, s.room, FormatText(m)); err != nil {
		return fmt.Errorf("matrix send: %w", err)
	}
	return nil
}

// FormatText renders m as "<sender>: <text>".
func FormatText(m maxapi.Message) string {
	return m.Sender + ": " + m.Text
}
