package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perrymanuk/radbot-sub001/internal/registry"
)

func newTestServer(t *testing.T) (*registry.Registry, *httptest.Server) {
	t.Helper()
	reg := registry.New()
	srv := NewServer(reg)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(ts.Close)
	return reg, ts
}

func dial(t *testing.T, ts *httptest.Server, owner string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "?owner=" + owner
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHandshakeRegistersOwner(t *testing.T) {
	reg, ts := newTestServer(t)
	dial(t, ts, "owner-1")

	waitFor(t, func() bool { return reg.Live("owner-1") }, "owner never became live")
}

func TestMissingOwnerRejected(t *testing.T) {
	_, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail without owner")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 response, got %+v", resp)
	}
}

func TestSenderReachesClient(t *testing.T) {
	reg, ts := newTestServer(t)
	conn := dial(t, ts, "owner-1")

	waitFor(t, func() bool { return reg.Live("owner-1") }, "owner never became live")

	send := reg.Sender("owner-1")
	if send == nil {
		t.Fatal("expected a sender for live owner")
	}
	if err := send([]byte(`{"kind":"reminder"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"kind":"reminder"}` {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	reg, ts := newTestServer(t)
	conn := dial(t, ts, "owner-1")

	waitFor(t, func() bool { return reg.Live("owner-1") }, "owner never became live")

	conn.Close()
	waitFor(t, func() bool { return !reg.Live("owner-1") }, "owner still live after disconnect")
}
