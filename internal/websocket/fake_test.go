package websocket

import (
	"sync"

	"classboard/pkg/types"
)

// fakeConn is an in-memory interfaces.Connection.
type fakeConn struct {
	id     string
	mu     sync.Mutex
	p      types.Participant
	joined bool
	closed bool
	frames [][]byte
}

func newFakeConn(id, channelID, userID string, role types.Role) *fakeConn {
	c := &fakeConn{id: id}
	if channelID != "" {
		_ = c.SetIdentity(types.Participant{ChannelID: channelID, UserID: userID, Role: role})
	}
	return c
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnectionClosed
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) WriteJSON(v interface{}) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) GetUserID() string    { return f.p.UserID }
func (f *fakeConn) GetUserName() string  { return f.p.UserName }
func (f *fakeConn) GetRole() types.Role  { return f.p.Role }
func (f *fakeConn) GetChannelID() string { return f.p.ChannelID }
func (f *fakeConn) IsJoined() bool       { return f.joined }

func (f *fakeConn) SetIdentity(p types.Participant) error {
	f.p = p
	f.joined = true
	return nil
}

func (f *fakeConn) ClearIdentity() {
	f.p = types.Participant{}
	f.joined = false
}
