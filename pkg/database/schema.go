package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that the audit schema matches what the code writes.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

var requiredColumns = map[string]string{
	"id":         "INTEGER",
	"channel_id": "TEXT",
	"kind":       "TEXT",
	"user_id":    "TEXT",
	"role":       "TEXT",
	"detail":     "TEXT",
	"created_at": "DATETIME",
}

var requiredIndexes = []string{
	"idx_channel_events_channel_time",
	"idx_channel_events_kind",
}

// Validate runs every schema check.
func (v *SchemaValidator) Validate() error {
	for _, table := range []string{"channel_events", "schema_migrations"} {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	if err := v.validateColumns("channel_events", requiredColumns); err != nil {
		return fmt.Errorf("channel_events table structure invalid: %w", err)
	}
	for _, index := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return v.validateKindConstraint()
}

// validateKindConstraint confirms unknown event kinds are refused by the store.
func (v *SchemaValidator) validateKindConstraint() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO channel_events (channel_id, kind) VALUES ('schema-check', 'stroke')`)
	if err == nil {
		return fmt.Errorf("check constraint not enforced: channel_events.kind")
	}
	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue interface{}
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = typ
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for col, typ := range expected {
		got, ok := found[col]
		if !ok {
			return fmt.Errorf("column %s not found", col)
		}
		if got != typ {
			return fmt.Errorf("column %s has type %s, expected %s", col, got, typ)
		}
	}
	return nil
}
