package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Security modes for the relay.
const (
	// ModePermissive trusts the role asserted at join time.
	ModePermissive = "permissive"
	// ModeStrict takes the role from a verified token and enforces teacher-only intents.
	ModeStrict = "strict"
)

// EnvPrefix namespaces every environment override, e.g. CLASSBOARD_HTTP_PORT.
const EnvPrefix = "CLASSBOARD"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
type Config struct {
	HTTP      *HTTPConfig      `json:"http" mapstructure:"http"`
	WebSocket *WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	Database  *DatabaseConfig  `json:"database" mapstructure:"database"`
	Relay     *RelayConfig     `json:"relay" mapstructure:"relay"`
	Security  *SecurityConfig  `json:"security" mapstructure:"security"`
}

type HTTPConfig struct {
	Port            int           `json:"port" mapstructure:"port"`
	Host            string        `json:"host" mapstructure:"host"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// FUNCTIONAL DISCOVERY: WebSocket settings sized for a classroom; MaxMessageBytes
// must fit a base64 encoded document plus envelope.
type WebSocketConfig struct {
	PingInterval    time.Duration `json:"ping_interval" mapstructure:"ping_interval"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	BufferSize      int           `json:"buffer_size" mapstructure:"buffer_size"`
	MaxMessageBytes int64         `json:"max_message_bytes" mapstructure:"max_message_bytes"`
}

// DatabaseConfig configures the optional control-event audit log.
type DatabaseConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	Path          string        `json:"path" mapstructure:"path"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	RetentionDays int           `json:"retention_days" mapstructure:"retention_days"`
}

type RelayConfig struct {
	SecurityMode     string `json:"security_mode" mapstructure:"security_mode"`
	MaxDocumentBytes int    `json:"max_document_bytes" mapstructure:"max_document_bytes"`
	// DrawRatePerMinute caps drawing frames per connection; 0 disables the limiter.
	DrawRatePerMinute int `json:"draw_rate_per_minute" mapstructure:"draw_rate_per_minute"`
	HubBufferSize     int `json:"hub_buffer_size" mapstructure:"hub_buffer_size"`
}

type SecurityConfig struct {
	JWTSecret string        `json:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl" mapstructure:"token_ttl"`
	Issuer    string        `json:"issuer" mapstructure:"issuer"`
}

// DefaultConfig returns settings that run a single classroom relay out of the box.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		WebSocket: &WebSocketConfig{
			PingInterval:    30 * time.Second,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    5 * time.Second,
			BufferSize:      256,
			MaxMessageBytes: 16 << 20,
		},
		Database: &DatabaseConfig{
			Enabled:       true,
			Path:          "./data/classboard.db",
			Timeout:       5 * time.Second,
			RetentionDays: 30,
		},
		Relay: &RelayConfig{
			SecurityMode:      ModePermissive,
			MaxDocumentBytes:  10 << 20,
			DrawRatePerMinute: 6000,
			HubBufferSize:     1024,
		},
		Security: &SecurityConfig{
			TokenTTL: 12 * time.Hour,
			Issuer:   "classboard",
		},
	}
}

// Validate rejects configurations the relay cannot run with.
func (c *Config) Validate() error {
	if c.HTTP == nil || c.WebSocket == nil || c.Database == nil || c.Relay == nil || c.Security == nil {
		return errors.New("http, websocket, database, relay and security sections are required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP shutdown timeout must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	// TECHNICAL DISCOVERY: Pongs must be able to arrive before the read deadline lapses
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Database.Enabled {
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
		if c.Database.Timeout <= 0 {
			return fmt.Errorf("database timeout must be positive")
		}
		if c.Database.RetentionDays < 0 {
			return fmt.Errorf("database retention days cannot be negative")
		}
	}

	switch c.Relay.SecurityMode {
	case ModePermissive, ModeStrict:
	default:
		return fmt.Errorf("relay security mode must be %q or %q, got %q", ModePermissive, ModeStrict, c.Relay.SecurityMode)
	}
	if c.Relay.MaxDocumentBytes <= 0 {
		return fmt.Errorf("relay max document bytes must be positive")
	}
	// base64 inflates by 4/3; the frame must still fit the document.
	if int64(c.Relay.MaxDocumentBytes)*4/3 >= c.WebSocket.MaxMessageBytes {
		return fmt.Errorf("WebSocket max message bytes too small for max document size")
	}
	if c.Relay.DrawRatePerMinute < 0 {
		return fmt.Errorf("relay draw rate cannot be negative")
	}
	if c.Relay.HubBufferSize <= 0 {
		return fmt.Errorf("relay hub buffer size must be positive")
	}

	if c.Relay.SecurityMode == ModeStrict && len(c.Security.JWTSecret) < 16 {
		return fmt.Errorf("strict mode requires a JWT secret of at least 16 bytes")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	return nil
}

// Strict reports whether the relay enforces server-side roles.
func (c *Config) Strict() bool {
	return c.Relay.SecurityMode == ModeStrict
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// newViper seeds a viper instance with every default so AutomaticEnv can
// resolve nested keys during Unmarshal.
func newViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()

	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.buffer_size", d.WebSocket.BufferSize)
	v.SetDefault("websocket.max_message_bytes", d.WebSocket.MaxMessageBytes)

	v.SetDefault("database.enabled", d.Database.Enabled)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.timeout", d.Database.Timeout)
	v.SetDefault("database.retention_days", d.Database.RetentionDays)

	v.SetDefault("relay.security_mode", d.Relay.SecurityMode)
	v.SetDefault("relay.max_document_bytes", d.Relay.MaxDocumentBytes)
	v.SetDefault("relay.draw_rate_per_minute", d.Relay.DrawRatePerMinute)
	v.SetDefault("relay.hub_buffer_size", d.Relay.HubBufferSize)

	v.SetDefault("security.jwt_secret", d.Security.JWTSecret)
	v.SetDefault("security.token_ttl", d.Security.TokenTTL)
	v.SetDefault("security.issuer", d.Security.Issuer)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	config := DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadFromEnv returns defaults overridden by CLASSBOARD_* variables.
func LoadFromEnv() (*Config, error) {
	return decode(newViper())
}

// LoadFromFile reads a json, yaml or toml file (by extension) on top of defaults.
// Environment variables still take precedence over file values.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return decode(v)
}

// Load resolves configuration with precedence env > file > defaults.
// An empty path skips the file layer.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromEnv()
	}
	return LoadFromFile(path)
}
