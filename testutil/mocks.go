package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockMaxServer creates a test server that mocks the Max messages API.
type MockMaxServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []*http.Request
}

// NewMockMaxServer creates a new mock Max API server.
func NewMockMaxServer(t *testing.T) *MockMaxServer {
	t.Helper()
	m := &MockMaxServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, r.Clone(r.Context()))
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Requests returns the requests received so far.
func (m *MockMaxServer) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// MockMessages serves batches from /v1/messages, one per request. The last
// batch repeats once the rest are used up.
func (m *MockMaxServer) MockMessages(batches ...[]map[string]any) {
	var mu sync.Mutex
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers["/v1/messages"] = func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		var batch []map[string]any
		if len(batches) > 0 {
			batch = batches[0]
			if len(batches) > 1 {
				batches = batches[1:]
			}
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": batch}) //nolint:errcheck // test mock response
	}
}

// MockError makes /v1/messages answer with status and body.
func (m *MockMaxServer) MockError(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers["/v1/messages"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// Message builds a wire message as the Max API returns it.
func Message(id any, text, sender string) map[string]any {
	msg := map[string]any{"id": id, "text": text, "timestamp": 1700000000}
	if sender != "" {
		msg["from"] = map[string]any{"name": sender}
	}
	return msg
}
