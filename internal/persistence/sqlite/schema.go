package sqlite

import (
	"context"
	"fmt"
)

// schemaStatements is the full schema. Every statement is idempotent so
// Migrate is safe to run against an existing database file.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		area TEXT NOT NULL,
		role TEXT NOT NULL,
		weekly_schedule TEXT,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS rides (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		passenger_username TEXT NOT NULL,
		area TEXT NOT NULL,
		time INTEGER NOT NULL,
		weekday INTEGER NOT NULL,
		status TEXT DEFAULT 'pending',
		driver_username TEXT,
		driver_ip TEXT,
		driver_port INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_rides (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		passenger_username TEXT NOT NULL,
		driver_username TEXT NOT NULL,
		area TEXT NOT NULL,
		date TEXT NOT NULL,
		time INTEGER NOT NULL,
		weekday INTEGER NOT NULL,
		status TEXT DEFAULT 'scheduled',
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ride_id INTEGER NOT NULL,
		rater_username TEXT NOT NULL,
		ratee_username TEXT NOT NULL,
		score INTEGER NOT NULL,
		comment TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		sidebar_color TEXT DEFAULT '#2c3e50',
		background_color TEXT DEFAULT '#FFEAEC',
		button_color TEXT DEFAULT '#2c3e50',
		button_hover_color TEXT DEFAULT '#34495e',
		text_color TEXT DEFAULT 'white',
		theme_name TEXT DEFAULT 'default',
		font_size INTEGER DEFAULT 14
	)`,
}

// Migrate creates the schema and applies additive column migrations for
// databases created before a column existed.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	// preferred_driver_username was introduced after the first release of the
	// user_preferences table; add it when upgrading an older database.
	hasColumn, err := s.tableHasColumn(ctx, "user_preferences", "preferred_driver_username")
	if err != nil {
		return err
	}
	if !hasColumn {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE user_preferences ADD COLUMN preferred_driver_username TEXT`); err != nil {
			return fmt.Errorf("failed to add preferred_driver_username column: %w", err)
		}
	}

	return nil
}

func (s *Store) tableHasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &primaryKey); err != nil {
			return false, fmt.Errorf("failed to scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
