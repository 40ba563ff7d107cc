package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "classboard/pkg/database"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Manager is the sqlite-backed EventLog.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // single writer for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
}

var _ interfaces.EventLog = (*Manager)(nil)

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the audit database, applies the embedded migrations and
// starts the writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}
	if err := dbconfig.NewMigrationManager(db, dbconfig.Migrations()).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: A failed write is retried exactly once
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in %v: %v", m.retryDelay, err)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrLogClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrLogClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordEvent appends one control event.
func (m *Manager) RecordEvent(ctx context.Context, event *types.ChannelEvent) error {
	if event == nil || event.ChannelID == "" || event.Kind == "" {
		return errors.New("channel event requires channel id and kind")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	detail := []byte("{}")
	if len(event.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(event.Detail); err != nil {
			return fmt.Errorf("failed to marshal event detail: %w", err)
		}
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO channel_events (channel_id, kind, user_id, role, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, event.ChannelID, event.Kind, event.UserID, string(event.Role), string(detail), event.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert channel event: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			event.ID = id
		}
		return nil
	})
}

// ChannelHistory returns the newest limit events of a channel in chronological order.
func (m *Manager) ChannelHistory(ctx context.Context, channelID string, limit int) ([]*types.ChannelEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	// ARCHITECTURAL DISCOVERY: Reads bypass the writer goroutine; WAL allows them concurrently
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, channel_id, kind, user_id, role, detail, created_at
		FROM channel_events
		WHERE channel_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.ChannelEvent
	for rows.Next() {
		var (
			event  types.ChannelEvent
			role   string
			detail string
		)
		if err := rows.Scan(&event.ID, &event.ChannelID, &event.Kind, &event.UserID, &role, &detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel event: %w", err)
		}
		event.Role = types.Role(role)
		if detail != "" && detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &event.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event detail: %w", err)
			}
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel events: %w", err)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// PruneBefore deletes events older than cutoff and returns how many were removed.
func (m *Manager) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM channel_events WHERE created_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune channel events: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

// RetentionLoop prunes expired events every interval until ctx is done.
func (m *Manager) RetentionLoop(ctx context.Context, interval time.Duration) {
	if m.config.RetentionDays == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -m.config.RetentionDays)
			n, err := m.PruneBefore(ctx, cutoff)
			if err != nil {
				log.Printf("Audit retention prune failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Audit retention pruned %d events older than %s", n, cutoff.Format(time.RFC3339))
			}
		case <-ctx.Done():
			return
		}
	}
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM channel_events LIMIT 1").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the writer and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
