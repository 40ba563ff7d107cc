package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classboard/internal/config"
	"classboard/pkg/types"
)

func testConfig(t *testing.T, withDatabase bool) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = 18080
	cfg.Database.Enabled = withDatabase
	cfg.Database.Path = filepath.Join(t.TempDir(), "audit.db")
	return cfg
}

func TestNewApplicationRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = -1
	application, err := NewApplication(cfg)
	if err == nil {
		t.Error("Constructor should reject invalid configuration")
	}
	if application != nil {
		t.Error("Constructor should not return application with invalid config")
	}
}

func TestNewApplicationStrictNeedsSecret(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Relay.SecurityMode = config.ModeStrict
	if _, err := NewApplication(cfg); err == nil {
		t.Error("Strict mode without a secret should fail")
	}
}

func TestApplicationServesJoinAndAudit(t *testing.T) {
	application, err := NewApplication(testConfig(t, true))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.StartWorkers(ctx); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}

	server := httptest.NewServer(application.Handler())
	defer func() {
		server.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = application.Stop(shutdownCtx)
	}()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	frame, _ := types.EncodeEnvelope(types.EventJoinWhiteboard, types.JoinRequest{
		ChannelID: "C1", UserID: "teacher", UserName: "Ms T", Role: types.RoleTeacher,
	})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	env, err := types.DecodeEnvelope(msg)
	if err != nil || env.Event != types.EventSessionSnapshot {
		t.Fatalf("Expected session-snapshot, got %s (%v)", msg, err)
	}

	resp, err := http.Get(server.URL + "/api/channels/C1")
	if err != nil {
		t.Fatalf("GET channel failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	// The audit write is asynchronous; poll the events endpoint briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		r, err := http.Get(server.URL + "/api/channels/C1/events")
		if err != nil {
			t.Fatalf("GET events failed: %v", err)
		}
		var body struct {
			Events []types.ChannelEvent `json:"events"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		r.Body.Close()
		if len(body.Events) == 1 && body.Events[0].Kind == types.KindJoin {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Join was not audited, got %+v", body.Events)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
