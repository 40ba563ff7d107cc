package integration

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"classboard/internal/app"
	"classboard/internal/board"
	"classboard/internal/client"
	"classboard/internal/config"
	"classboard/pkg/types"
)

// testConfig returns a relay config with the audit log in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "audit.db")
	return cfg
}

// startRelay runs a full application behind httptest and returns its ws URL.
func startRelay(t *testing.T, cfg *config.Config) (*app.Application, string) {
	t.Helper()
	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := application.StartWorkers(ctx); err != nil {
		cancel()
		t.Fatalf("StartWorkers failed: %v", err)
	}
	server := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		server.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := application.Stop(shutdownCtx); err != nil {
			t.Logf("Stop: %v", err)
		}
		cancel()
	})
	return application, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

// participant is one connected client plus the state a test waits on.
type participant struct {
	*client.Client
	t *testing.T
}

func join(t *testing.T, url, userID string, role types.Role, token string) *participant {
	t.Helper()
	opts := board.DefaultOptions()
	opts.Width, opts.Height = 320, 240
	c, err := client.New(client.Config{
		URL:        url,
		ChannelID:  "C1",
		UserID:     userID,
		UserName:   userID,
		Role:       role,
		Token:      token,
		Canvas:     opts,
		MinBackoff: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	p := &participant{Client: c, t: t}
	p.await(types.EventSessionSnapshot)
	return p
}

// await blocks until the client reports name, skipping other events.
func (p *participant) await(name string) client.Event {
	p.t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-p.Events():
			if e.Name == name {
				return e
			}
		case <-deadline:
			p.t.Fatalf("Timed out waiting for %q", name)
			return client.Event{}
		}
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
