package api

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Registry is the slice of the connection registry the API reads.
type Registry interface {
	GetStats() map[string]int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	directory interfaces.SessionDirectory
	eventLog  interfaces.EventLog
	registry  Registry
	engine    *gin.Engine
	started   time.Time
}

// NewServer builds the gin engine. eventLog may be nil when auditing is off;
// wsHandler is mounted at /ws.
func NewServer(directory interfaces.SessionDirectory, eventLog interfaces.EventLog, registry Registry, wsHandler http.HandlerFunc, allowedOrigins []string) *Server {
	s := &Server{
		directory: directory,
		eventLog:  eventLog,
		registry:  registry,
		engine:    gin.New(),
		started:   time.Now(),
	}
	s.setupRoutes(wsHandler, allowedOrigins)
	return s
}

func (s *Server) setupRoutes(wsHandler http.HandlerFunc, allowedOrigins []string) {
	s.engine.Use(gin.Recovery())
	s.engine.Use(cors.New(corsConfig(allowedOrigins)))

	s.engine.GET("/health", s.healthCheck)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if wsHandler != nil {
		s.engine.GET("/ws", gin.WrapF(wsHandler))
	}

	api := s.engine.Group("/api")
	{
		api.GET("/channels", s.listChannels)
		api.GET("/channels/:id", s.getChannel)
		api.GET("/channels/:id/events", s.channelEvents)
	}
}

// corsConfig mirrors the WebSocket origin policy: empty or "*" allows all.
func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	allowAll := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cfg
}

// ServeHTTP makes the server usable directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// DocumentMeta describes a shared document without its content.
type DocumentMeta struct {
	FileName          string    `json:"fileName"`
	SharedBy          string    `json:"sharedBy"`
	VisibleToStudents bool      `json:"visibleToStudents"`
	SizeBytes         int       `json:"sizeBytes"`
	SharedAt          time.Time `json:"sharedAt"`
}

type ChannelSummary struct {
	ChannelID        string        `json:"channelId"`
	Locked           bool          `json:"locked"`
	ParticipantCount int           `json:"participantCount"`
	Document         *DocumentMeta `json:"document,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
}

type ChannelDetail struct {
	ChannelSummary
	Participants []types.Participant `json:"participants"`
}

type ListChannelsResponse struct {
	Channels []ChannelSummary `json:"channels"`
}

type ChannelEventsResponse struct {
	ChannelID string                `json:"channelId"`
	Events    []*types.ChannelEvent `json:"events"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func summarize(s *types.SessionSnapshot) ChannelSummary {
	out := ChannelSummary{
		ChannelID:        s.ChannelID,
		Locked:           s.Locked,
		ParticipantCount: s.ParticipantCount,
		CreatedAt:        s.CreatedAt,
	}
	if s.Document != nil {
		out.Document = &DocumentMeta{
			FileName:          s.Document.FileName,
			SharedBy:          s.Document.SharedBy,
			VisibleToStudents: s.Document.VisibleToStudents,
			SizeBytes:         s.Document.Size(),
			SharedAt:          s.Document.SharedAt,
		}
	}
	return out
}

// FUNCTIONAL DISCOVERY: GET /api/channels lists live channels; document blobs never leave the relay over HTTP.
func (s *Server) listChannels(c *gin.Context) {
	snapshots := s.directory.List()
	channels := make([]ChannelSummary, 0, len(snapshots))
	for _, snap := range snapshots {
		channels = append(channels, summarize(snap))
	}
	c.JSON(http.StatusOK, ListChannelsResponse{Channels: channels})
}

func (s *Server) getChannel(c *gin.Context) {
	channelID := c.Param("id")
	snap, ok := s.directory.Get(channelID)
	if !ok {
		s.sendError(c, http.StatusNotFound, ErrUnknownChannel.Error())
		return
	}
	c.JSON(http.StatusOK, ChannelDetail{
		ChannelSummary: summarize(snap),
		Participants:   s.directory.Participants(channelID),
	})
}

// FUNCTIONAL DISCOVERY: Audit history outlives the channel, so an empty channel
// still answers with its recorded events.
func (s *Server) channelEvents(c *gin.Context) {
	if s.eventLog == nil {
		s.sendError(c, http.StatusServiceUnavailable, ErrAuditDisabled.Error())
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(c, http.StatusBadRequest, ErrInvalidLimit.Error())
			return
		}
		if n > maxEventLimit {
			n = maxEventLimit
		}
		limit = n
	}

	channelID := c.Param("id")
	events, err := s.eventLog.ChannelHistory(c.Request.Context(), channelID, limit)
	if err != nil {
		s.sendError(c, http.StatusInternalServerError, "Failed to load channel events")
		return
	}
	if events == nil {
		events = []*types.ChannelEvent{}
	}
	c.JSON(http.StatusOK, ChannelEventsResponse{ChannelID: channelID, Events: events})
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "disabled"
	if s.eventLog != nil {
		dbStatus = "healthy"
		if err := s.eventLog.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			dbStatus = "error: " + err.Error()
		}
	}

	channels := s.directory.List()
	participants, documents := 0, 0
	for _, ch := range channels {
		participants += ch.ParticipantCount
		if ch.Document != nil {
			documents++
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
		System: map[string]interface{}{
			"goroutines":   runtime.NumGoroutine(),
			"uptime":       time.Since(s.started).Round(time.Second).String(),
			"channels":     len(channels),
			"participants": participants,
			"documents":    documents,
		},
	})
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
