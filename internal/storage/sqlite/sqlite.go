package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pointtbridge/internal/auth"
)

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db       *sql.DB
	deviceID string
}

// New creates a new SQLite storage instance scoped to one device. Tokens
// persisted for a different device are ignored on load, not reused.
func New(dbPath, deviceID string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{
		db:       db,
		deviceID: deviceID,
	}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS oauth_tokens (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			device_id TEXT NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// LoadToken retrieves the persisted token, or nil when none is stored or the
// stored token belongs to another device.
// Implements auth.TokenStore interface
func (s *SQLiteStorage) LoadToken(ctx context.Context) (*auth.Token, error) {
	var token auth.Token
	var deviceID string
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT device_id, access_token, refresh_token, expires_at
		FROM oauth_tokens WHERE id = 1
	`).Scan(&deviceID, &token.AccessToken, &token.RefreshToken, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil // No token stored yet
	}
	if err != nil {
		return nil, err
	}

	if deviceID != s.deviceID {
		return nil, nil
	}

	if expiresAt.Valid {
		token.ExpiresAt = expiresAt.Time
	}

	return &token, nil
}

// SaveToken saves or replaces the persisted token
// Implements auth.TokenStore interface
func (s *SQLiteStorage) SaveToken(ctx context.Context, token *auth.Token) error {
	now := time.Now()

	var expiresAt sql.NullTime
	if !token.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: token.ExpiresAt, Valid: true}
	}

	// Check if a token exists
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM oauth_tokens WHERE id = 1)").Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		_, err = s.db.ExecContext(ctx, `
			UPDATE oauth_tokens
			SET device_id = ?, access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
			WHERE id = 1
		`, s.deviceID, token.AccessToken, token.RefreshToken, expiresAt, now)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO oauth_tokens (id, device_id, access_token, refresh_token, expires_at, created_at, updated_at)
			VALUES (1, ?, ?, ?, ?, ?, ?)
		`, s.deviceID, token.AccessToken, token.RefreshToken, expiresAt, now, now)
	}

	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
