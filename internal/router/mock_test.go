package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"classboard/internal/session"
	"classboard/internal/websocket"
	"classboard/pkg/types"
)

// mockConnection records every frame sent to it.
type mockConnection struct {
	id     string
	mu     sync.Mutex
	p      types.Participant
	joined bool
	closed bool
	frames [][]byte
}

func newMockConnection(id string) *mockConnection {
	return &mockConnection{id: id}
}

func (m *mockConnection) ID() string { return m.id }

func (m *mockConnection) Send(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return websocket.ErrConnectionClosed
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *mockConnection) WriteJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Send(b)
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConnection) GetUserID() string    { return m.p.UserID }
func (m *mockConnection) GetUserName() string  { return m.p.UserName }
func (m *mockConnection) GetRole() types.Role  { return m.p.Role }
func (m *mockConnection) GetChannelID() string { return m.p.ChannelID }
func (m *mockConnection) IsJoined() bool       { return m.joined }

func (m *mockConnection) SetIdentity(p types.Participant) error {
	m.p = p
	m.joined = true
	return nil
}

func (m *mockConnection) ClearIdentity() {
	m.p = types.Participant{}
	m.joined = false
}

// received returns the envelopes of every frame delivered so far.
func (m *mockConnection) received(t *testing.T) []*types.Envelope {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Envelope, 0, len(m.frames))
	for _, f := range m.frames {
		env, err := types.DecodeEnvelope(f)
		if err != nil {
			t.Fatalf("Undecodable frame %s: %v", f, err)
		}
		out = append(out, env)
	}
	return out
}

// rawFrames returns frames carrying event, as received.
func (m *mockConnection) rawFrames(t *testing.T, event string) [][]byte {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, f := range m.frames {
		env, err := types.DecodeEnvelope(f)
		if err != nil {
			t.Fatalf("Undecodable frame %s: %v", f, err)
		}
		if env.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (m *mockConnection) count(t *testing.T, event string) int {
	return len(m.rawFrames(t, event))
}

// last decodes the payload of the most recent frame carrying event into v.
func (m *mockConnection) last(t *testing.T, event string, v interface{}) bool {
	t.Helper()
	envs := m.received(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event != event {
			continue
		}
		if v != nil && len(envs[i].Data) > 0 {
			if err := json.Unmarshal(envs[i].Data, v); err != nil {
				t.Fatalf("Failed to decode %s payload: %v", event, err)
			}
		}
		return true
	}
	return false
}

func (m *mockConnection) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// mockEventLog is an in-memory interfaces.EventLog.
type mockEventLog struct {
	mu     sync.Mutex
	events []*types.ChannelEvent
	err    error
}

func (l *mockEventLog) RecordEvent(ctx context.Context, e *types.ChannelEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, e)
	return nil
}

func (l *mockEventLog) ChannelHistory(ctx context.Context, channelID string, limit int) ([]*types.ChannelEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*types.ChannelEvent
	for _, e := range l.events {
		if e.ChannelID == channelID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *mockEventLog) HealthCheck(ctx context.Context) error { return nil }
func (l *mockEventLog) Close() error                          { return nil }

func (l *mockEventLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

// fixture wires a router to a real registry and directory.
type fixture struct {
	router    *Router
	registry  *websocket.Registry
	directory *session.Directory
	eventLog  *mockEventLog
}

func newFixture(t *testing.T, opts Options, verifier TokenVerifier) *fixture {
	t.Helper()
	f := &fixture{
		registry:  websocket.NewRegistry(),
		directory: session.NewDirectory(),
		eventLog:  &mockEventLog{},
	}
	r, err := NewRouter(f.registry, f.directory, f.eventLog, verifier, opts)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	t.Cleanup(r.Close)
	f.router = r
	return f
}

func (f *fixture) send(t *testing.T, conn *mockConnection, event string, data interface{}) {
	t.Helper()
	frame, err := types.EncodeEnvelope(event, data)
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", event, err)
	}
	f.router.HandleFrame(context.Background(), conn, frame)
}

func (f *fixture) join(t *testing.T, id, channelID, userID string, role types.Role) *mockConnection {
	t.Helper()
	conn := newMockConnection(id)
	f.registry.Track(conn)
	f.send(t, conn, types.EventJoinWhiteboard, types.JoinRequest{
		ChannelID: channelID,
		UserID:    userID,
		UserName:  userID,
		Role:      role,
	})
	if !conn.IsJoined() {
		var payload types.ErrorPayload
		conn.last(t, types.EventError, &payload)
		t.Fatalf("Join of %s failed: %+v", userID, payload)
	}
	return conn
}

// expectError asserts the last frame to conn is an error with code.
func expectError(t *testing.T, conn *mockConnection, code string) {
	t.Helper()
	var payload types.ErrorPayload
	if !conn.last(t, types.EventError, &payload) {
		t.Fatalf("Expected error %s, got none", code)
	}
	if payload.Code != code {
		t.Errorf("Expected error code %s, got %s (%s)", code, payload.Code, payload.Message)
	}
}

func drawing(channelID, userID, phase string, x, y float64) types.DrawingEvent {
	return types.DrawingEvent{
		ChannelID: channelID,
		UserID:    userID,
		Type:      phase,
		Tool:      types.ToolPen,
		Color:     "#000000",
		LineWidth: 2,
		X:         x,
		Y:         y,
	}
}

var errBoom = errors.New("boom")
