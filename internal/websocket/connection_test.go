package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// socketPair returns the server side and client side of a live WebSocket.
func socketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverSide <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case s := <-serverSide:
		return s, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side never upgraded")
		return nil, nil
	}
}

// unstartedConnection has no socket and no writer, so its buffer never drains.
func unstartedConnection(buffer int) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:      "conn-test",
		writeCh: make(chan []byte, buffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func TestConnection_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Connection = &Connection{}
}

func TestConnection_AnonymousUntilJoined(t *testing.T) {
	server, _ := socketPair(t)
	conn := NewConnection(server, DefaultOptions())
	defer conn.Close()

	if conn.ID() == "" {
		t.Error("Connection should have an id")
	}
	if conn.IsJoined() {
		t.Error("New connection should be anonymous")
	}

	p := types.Participant{ChannelID: "C1", UserID: "s1", UserName: "Ana", Role: types.RoleStudent}
	if err := conn.SetIdentity(p); err != nil {
		t.Fatalf("SetIdentity failed: %v", err)
	}
	if !conn.IsJoined() || conn.GetChannelID() != "C1" || conn.GetUserID() != "s1" ||
		conn.GetUserName() != "Ana" || conn.GetRole() != types.RoleStudent {
		t.Errorf("Identity not applied: %+v", conn.participant)
	}

	conn.ClearIdentity()
	if conn.IsJoined() || conn.GetChannelID() != "" {
		t.Error("ClearIdentity should return the connection to anonymous")
	}
}

func TestConnection_SetIdentityRequiresIDs(t *testing.T) {
	conn := unstartedConnection(1)
	err := conn.SetIdentity(types.Participant{UserID: "s1"})
	if !errors.Is(err, types.ErrInvalidJoin) {
		t.Errorf("Expected ErrInvalidJoin, got %v", err)
	}
}

func TestConnection_SendDeliversInOrder(t *testing.T) {
	server, client := socketPair(t)
	conn := NewConnection(server, DefaultOptions())
	defer conn.Close()

	frames := []string{`{"event":"a"}`, `{"event":"b"}`, `{"event":"c"}`}
	for _, f := range frames {
		if err := conn.Send([]byte(f)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range frames {
		_, got, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}

func TestConnection_WriteJSON(t *testing.T) {
	server, client := socketPair(t)
	conn := NewConnection(server, DefaultOptions())
	defer conn.Close()

	if err := conn.WriteJSON(types.Envelope{Event: types.EventUserCount, Data: []byte("3")}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if err := conn.WriteJSON(make(chan int)); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	env, err := types.DecodeEnvelope(got)
	if err != nil || env.Event != types.EventUserCount || string(env.Data) != "3" {
		t.Errorf("Unexpected frame %s (%v)", got, err)
	}
}

func TestConnection_SlowConsumerIsClosed(t *testing.T) {
	conn := unstartedConnection(1)

	if err := conn.Send([]byte("one")); err != nil {
		t.Fatalf("First send should fit the buffer: %v", err)
	}
	if err := conn.Send([]byte("two")); !errors.Is(err, ErrSlowConsumer) {
		t.Fatalf("Expected ErrSlowConsumer, got %v", err)
	}

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("Slow consumer should be closed")
	}
	if err := conn.Send([]byte("three")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed after close, got %v", err)
	}
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	server, client := socketPair(t)
	conn := NewConnection(server, DefaultOptions())

	_ = conn.Close()
	_ = conn.Close()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Error("Client should observe the close")
	}
}

func TestConnection_PingKeepsPeerAlive(t *testing.T) {
	server, client := socketPair(t)
	opts := DefaultOptions()
	opts.PingInterval = 20 * time.Millisecond
	conn := NewConnection(server, opts)
	defer conn.Close()

	pings := make(chan struct{}, 4)
	client.SetPingHandler(func(string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pings:
	case <-time.After(time.Second):
		t.Fatal("Expected a ping from the writer loop")
	}
}
