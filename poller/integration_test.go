package poller

import (
	"context"
	"net/http"
	"testing"

	"github.com/onnwee/max-bridge/maxapi"
	"github.com/onnwee/max-bridge/testutil"
)

func TestPollAgainstMockMax(t *testing.T) {
	srv := testutil.NewMockMaxServer(t)
	srv.MockMessages(
		[]map[string]any{testutil.Message(1, "hi", "Anna"), testutil.Message("2", "yo", "")},
		[]map[string]any{testutil.Message(1, "hi", "Anna"), testutil.Message(2, "yo", ""), testutil.Message(3, "new", "Boris")},
	)
	p := New(&fakeAuth{}, maxapi.NewClient(srv.URL, srv.Client()))

	first, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("first Poll: %v", err)
	}
	if !equalIDs(ids(first), []int64{1, 2}) {
		t.Fatalf("first Poll ids = %v", ids(first))
	}
	if first[1].Sender != maxapi.UnknownSender {
		t.Errorf("sender = %q, want %q", first[1].Sender, maxapi.UnknownSender)
	}

	second, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if !equalIDs(ids(second), []int64{3}) {
		t.Errorf("second Poll ids = %v, want [3]", ids(second))
	}

	reqs := srv.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if got := reqs[0].Header.Get("Authorization"); got != "Bearer t" {
		t.Errorf("Authorization = %q", got)
	}
	if got := reqs[0].URL.Query().Get("user_id"); got != "u" {
		t.Errorf("user_id = %q", got)
	}
}

func TestPollMockMaxErrorKeepsCursor(t *testing.T) {
	srv := testutil.NewMockMaxServer(t)
	srv.MockMessages([]map[string]any{testutil.Message(4, "a", "x")})
	p := New(&fakeAuth{}, maxapi.NewClient(srv.URL, srv.Client()))
	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv.MockError(http.StatusBadGateway, "upstream down")
	got, err := p.Poll(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("Poll() = %v, %v; want empty, nil", got, err)
	}
	if id, ok := p.Cursor().Get(); !ok || id != 4 {
		t.Errorf("cursor = %d,%v; want 4", id, ok)
	}
}
