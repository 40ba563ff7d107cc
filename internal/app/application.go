package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"classboard/internal/api"
	"classboard/internal/auth"
	"classboard/internal/config"
	"classboard/internal/database"
	"classboard/internal/hub"
	"classboard/internal/router"
	"classboard/internal/session"
	"classboard/internal/websocket"
	pkgdatabase "classboard/pkg/database"
	"classboard/pkg/interfaces"
)

const (
	retentionInterval   = time.Hour
	maintenanceInterval = 5 * time.Minute
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	directory  *session.Directory
	registry   *websocket.Registry
	router     *router.Router
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server

	cancelWorkers context.CancelFunc
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Directory → Registry → Router → Hub → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Audit log (optional). The interface stays nil when disabled.
	var (
		dbManager *database.Manager
		eventLog  interfaces.EventLog
	)
	if cfg.Database.Enabled {
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Database.Path
		dbConfig.RetentionDays = cfg.Database.RetentionDays

		var err error
		dbManager, err = database.NewManager(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database manager: %w", err)
		}
		eventLog = dbManager
		log.Printf("Audit log enabled at %s (retention %d days)", cfg.Database.Path, cfg.Database.RetentionDays)
	} else {
		log.Printf("Audit log disabled")
	}

	// STEP 2: Shared state and connection tracking
	directory := session.NewDirectory()
	registry := websocket.NewRegistry()

	// STEP 3: Token verification for strict mode
	var verifier router.TokenVerifier
	if cfg.Strict() {
		v, err := auth.NewVerifier(cfg.Security.JWTSecret, cfg.Security.Issuer)
		if err != nil {
			closeQuietly(dbManager)
			return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
		}
		verifier = v
	} else {
		log.Printf("WARNING: relay running in %s mode; roles are client-asserted and teacher-only actions are not enforced", cfg.Relay.SecurityMode)
	}

	// STEP 4: Router and hub
	messageRouter, err := router.NewRouter(registry, directory, eventLog, verifier, router.Options{
		Strict:            cfg.Strict(),
		MaxDocumentBytes:  cfg.Relay.MaxDocumentBytes,
		DrawRatePerMinute: cfg.Relay.DrawRatePerMinute,
		AuditTimeout:      cfg.Database.Timeout,
	})
	if err != nil {
		closeQuietly(dbManager)
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}
	messageHub := hub.NewHub(messageRouter, cfg.Relay.HubBufferSize)

	// STEP 5: WebSocket handler and HTTP API
	wsHandler := websocket.NewHandler(registry, messageHub, websocket.Options{
		BufferSize:      cfg.WebSocket.BufferSize,
		WriteTimeout:    cfg.WebSocket.WriteTimeout,
		PingInterval:    cfg.WebSocket.PingInterval,
		ReadTimeout:     cfg.WebSocket.ReadTimeout,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
	}, cfg.HTTP.AllowedOrigins)
	apiServer := api.NewServer(directory, eventLog, registry, wsHandler.HandleWebSocket, cfg.HTTP.AllowedOrigins)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		directory:  directory,
		registry:   registry,
		router:     messageRouter,
		hub:        messageHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// StartWorkers starts the hub and background maintenance without listening.
// Tests serve Handler() through httptest after calling it.
func (app *Application) StartWorkers(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	if err := app.hub.Start(workerCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start message hub: %w", err)
	}
	app.cancelWorkers = cancel

	go app.router.RunMaintenance(workerCtx, maintenanceInterval)
	if app.dbManager != nil {
		go app.dbManager.RetentionLoop(workerCtx, retentionInterval)
	}
	return nil
}

// Start begins application execution
// Hub starts first to handle messages, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting classboard relay on %s", app.httpServer.Addr)

	if err := app.StartWorkers(ctx); err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.stopWorkers()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("classboard relay started successfully")
		return nil
	case <-ctx.Done():
		app.stopWorkers()
		return ctx.Err()
	}
}

func (app *Application) stopWorkers() {
	if err := app.hub.Stop(); err != nil && err != hub.ErrHubNotRunning {
		log.Printf("Message hub shutdown error: %v", err)
	}
	if app.cancelWorkers != nil {
		app.cancelWorkers()
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Connections → Hub → Router → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down classboard relay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Closing connections queues their disconnects for the hub.
	app.registry.CloseAll()
	app.stopWorkers()
	app.router.Close()

	closeQuietly(app.dbManager)
	log.Printf("classboard relay shutdown complete")
	return nil
}

// Handler returns the HTTP handler serving the API and the WebSocket endpoint.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Directory exposes channel state for tests and tooling.
func (app *Application) Directory() *session.Directory {
	return app.directory
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}

func closeQuietly(m *database.Manager) {
	if m == nil {
		return
	}
	if err := m.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}
}
