package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/interfaces"
)

type recordingDispatcher struct {
	mu          sync.Mutex
	frames      []string
	disconnects int
	done        chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{done: make(chan struct{}, 1)}
}

func (d *recordingDispatcher) Submit(conn interfaces.Connection, frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, string(frame))
	return nil
}

func (d *recordingDispatcher) Disconnect(conn interfaces.Connection) {
	d.mu.Lock()
	d.disconnects++
	d.mu.Unlock()
	d.done <- struct{}{}
}

func TestHandler_ForwardsFramesThenDisconnect(t *testing.T) {
	registry := NewRegistry()
	dispatcher := newRecordingDispatcher()
	handler := NewHandler(registry, dispatcher, DefaultOptions(), nil)

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	for _, f := range []string{"one", "two", "three"} {
		if err := client.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	_ = client.WriteMessage(websocket.BinaryMessage, []byte{0x1})
	_ = client.Close()

	select {
	case <-dispatcher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect was never dispatched")
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if strings.Join(dispatcher.frames, ",") != "one,two,three" {
		t.Errorf("Expected text frames in order, got %v", dispatcher.frames)
	}
	if dispatcher.disconnects != 1 {
		t.Errorf("Expected one disconnect, got %d", dispatcher.disconnects)
	}
	if registry.GetStats()["open_connections"] != 0 {
		t.Error("Closed connection should be untracked")
	}
}

func TestHandler_OriginAllowList(t *testing.T) {
	check := originChecker([]string{"https://school.example"})

	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "https://school.example")
	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example")

	if !check(allowed) {
		t.Error("Listed origin should be allowed")
	}
	if check(denied) {
		t.Error("Unlisted origin should be denied")
	}
	if !originChecker([]string{"*"})(denied) {
		t.Error("Wildcard should allow any origin")
	}
}
