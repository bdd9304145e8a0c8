// Package maxapi contains minimal helpers to read messages from the Max
// platform: the REST message listing used by the poller and an optional
// WebSocket stream.
package maxapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/onnwee/max-bridge/credentials"
)

const (
	DefaultBaseURL = "https://api.max.ru"
	UserAgent      = "MaxBridge/1.0"
	// PageSize is the fixed number of messages requested per poll.
	PageSize = 20
	// UnknownSender is used when a message carries no sender name.
	UnknownSender = "Unknown"
)

// Message is a Max chat message reduced to what the bridge relays.
type Message struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// Client issues authenticated Max API requests.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient returns a Client for baseURL using hc (http.DefaultClient when nil).
func NewClient(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: hc, UserAgent: UserAgent}
}

// authed wraps the base client with a bearer token transport.
func (c *Client) authed(token string) *http.Client {
	base := c.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Base:   base.Transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		},
		Timeout: base.Timeout,
	}
}

// ListMessages fetches the latest page of messages for cred.UserID.
func (c *Client) ListMessages(ctx context.Context, cred credentials.Credential, limit int) ([]Message, error) {
	if !cred.Valid() {
		return nil, fmt.Errorf("max credential incomplete")
	}
	if limit <= 0 {
		limit = PageSize
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/messages", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("user_id", cred.UserID)
	req.URL.RawQuery = q.Encode()
	ua := c.UserAgent
	if ua == "" {
		ua = UserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := c.authed(cred.Token).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("max messages request failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var body struct {
		Items []wireMessage `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode max messages: %w", err)
	}
	out := make([]Message, 0, len(body.Items))
	for _, w := range body.Items {
		m, ok := w.message()
		if !ok {
			slog.Warn("max message without usable id skipped", slog.String("id", string(w.ID)))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// wireMessage mirrors a Max message object. Every field is optional on the
// wire and decoded raw, so one oddly typed field never fails the whole page.
type wireMessage struct {
	ID        json.RawMessage `json:"id"`
	Text      json.RawMessage `json:"text"`
	From      json.RawMessage `json:"from"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (w wireMessage) message() (Message, bool) {
	id, err := strconv.ParseInt(rawScalar(w.ID), 10, 64)
	if err != nil {
		return Message{}, false
	}
	m := Message{ID: id, Text: rawScalar(w.Text), Sender: senderName(w.From), Timestamp: rawScalar(w.Timestamp)}
	return m, true
}

// senderName reads from.name, falling back to UnknownSender when from is not
// an object or the name is missing or not a scalar.
func senderName(raw json.RawMessage) string {
	var from struct {
		Name json.RawMessage `json:"name"`
	}
	if err := json.Unmarshal(raw, &from); err != nil {
		return UnknownSender
	}
	if name := rawScalar(from.Name); name != "" {
		return name
	}
	return UnknownSender
}

// rawScalar renders a JSON string or number as text. Null, absent, objects
// and arrays become "".
func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s[0] == '{' || s[0] == '[' {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}
