package database

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds audit store settings.
type Config struct {
	DatabasePath    string        `json:"database_path" mapstructure:"path"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	// RetentionDays bounds how long control events are kept; 0 keeps them forever.
	RetentionDays int `json:"retention_days" mapstructure:"retention_days"`
}

// DefaultConfig returns the audit store defaults.
// FUNCTIONAL DISCOVERY: Control events are low volume (joins, toggles), so a small
// pool is plenty even with every classroom of a deployment writing to one file.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/classboard.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
		RetentionDays:   30,
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.RetentionDays < 0 {
		return errors.New("retention days cannot be negative")
	}
	return nil
}

// ARCHITECTURAL DISCOVERY: WAL keeps API reads of the audit log from blocking the
// single writer goroutine.
const sqliteOptimizations = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -16000;
	PRAGMA temp_store = MEMORY;
	PRAGMA busy_timeout = 5000;
`

// ApplySQLiteOptimizations applies the pragmas above to db.
func ApplySQLiteOptimizations(db *sql.DB) error {
	_, err := db.Exec(sqliteOptimizations)
	return err
}
