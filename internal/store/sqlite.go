package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// expirationFormat is the column encoding for ExpirationTime. An empty
// string means no recorded expiry.
const expirationFormat = time.RFC3339Nano

// SQLiteStore implements Store on an embedded SQLite database with WAL
// mode. Use ":memory:" for tests.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	findStmt   *sql.Stmt
	saveStmt   *sql.Stmt
	removeStmt *sql.Stmt
}

// NewSQLiteStore opens the database at dbPath, applies migrations, and
// prepares all repeated statements.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	logger.Info("opening credential database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.prepare(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// setPragmas enables WAL journaling and foreign keys. WAL lets concurrent
// function invocations read while one writes.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: setting pragma %q: %w", p, err)
		}
	}

	return nil
}

func (s *SQLiteStore) prepare(ctx context.Context) error {
	var err error

	s.findStmt, err = s.db.PrepareContext(ctx, `
		SELECT user_id, access_token, refresh_token, expiration_time,
		       display_name, picture_url, last_auth_code, status_message, timezone
		FROM credentials WHERE user_id = ?`)
	if err != nil {
		return fmt.Errorf("store: preparing find: %w", err)
	}

	s.saveStmt, err = s.db.PrepareContext(ctx, `
		INSERT INTO credentials (
			user_id, access_token, refresh_token, expiration_time,
			display_name, picture_url, last_auth_code, status_message, timezone, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token    = excluded.access_token,
			refresh_token   = excluded.refresh_token,
			expiration_time = excluded.expiration_time,
			display_name    = excluded.display_name,
			picture_url     = excluded.picture_url,
			last_auth_code  = excluded.last_auth_code,
			status_message  = excluded.status_message,
			timezone        = excluded.timezone,
			updated_at      = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("store: preparing save: %w", err)
	}

	s.removeStmt, err = s.db.PrepareContext(ctx, `DELETE FROM credentials WHERE user_id = ?`)
	if err != nil {
		return fmt.Errorf("store: preparing remove: %w", err)
	}

	return nil
}

// FindByID returns the stored credential for userID, or (nil, nil) when
// no record exists.
func (s *SQLiteStore) FindByID(ctx context.Context, userID string) (*Credential, error) {
	var (
		cred Credential
		exp  string
	)

	row := s.findStmt.QueryRowContext(ctx, userID)

	err := row.Scan(
		&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &exp,
		&cred.DisplayName, &cred.PictureURL, &cred.LastAuthCode,
		&cred.StatusMessage, &cred.Timezone,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: finding credential %s: %w", userID, err)
	}

	if exp != "" {
		t, parseErr := time.Parse(expirationFormat, exp)
		if parseErr != nil {
			return nil, fmt.Errorf("store: decoding expiration for %s: %w", userID, parseErr)
		}

		cred.ExpirationTime = t
	}

	return &cred, nil
}

// Save upserts the credential record keyed by UserID.
func (s *SQLiteStore) Save(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.UserID == "" {
		return fmt.Errorf("store: saving credential: missing user id")
	}

	exp := ""
	if !cred.ExpirationTime.IsZero() {
		exp = cred.ExpirationTime.Format(expirationFormat)
	}

	_, err := s.saveStmt.ExecContext(ctx,
		cred.UserID, cred.AccessToken, cred.RefreshToken, exp,
		cred.DisplayName, cred.PictureURL, cred.LastAuthCode,
		cred.StatusMessage, cred.Timezone,
		time.Now().UTC().Format(expirationFormat),
	)
	if err != nil {
		return fmt.Errorf("store: saving credential %s: %w", cred.UserID, err)
	}

	return nil
}

// RemoveByID deletes the stored credential. Absent records are not an error.
func (s *SQLiteStore) RemoveByID(ctx context.Context, userID string) error {
	if _, err := s.removeStmt.ExecContext(ctx, userID); err != nil {
		return fmt.Errorf("store: removing credential %s: %w", userID, err)
	}

	return nil
}

// Close finalizes prepared statements and closes the database.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.findStmt, s.saveStmt, s.removeStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}
