package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sessiond/core"
)

//go:embed schema/sqlite/schema.sql
var sqliteSchema string

// SQLiteStore persists the provider session and cached profiles so
// mock-mode edits and the live session survive a daemon restart.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(sqliteSchema)
	return err
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session *core.StoredSession) error {
	query := `
		INSERT INTO session (id, user_id, refresh_token, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		session.UserID.String(),
		session.RefreshToken,
		session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSession(ctx context.Context) (*core.StoredSession, error) {
	query := `
		SELECT user_id, refresh_token, updated_at
		FROM session
		WHERE id = 1
	`

	var idStr, refreshToken string
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, query).Scan(&idStr, &refreshToken, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	userID, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt session row: %w", err)
	}

	return &core.StoredSession{
		UserID:       userID,
		RefreshToken: refreshToken,
		UpdatedAt:    time.Unix(updatedAt, 0).UTC(),
	}, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, profile *core.UserProfile) error {
	query := `
		INSERT INTO profiles (id, full_name, email, role, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			role = excluded.role,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		profile.ID.String(),
		profile.FullName,
		profile.Email,
		string(profile.Role),
		profile.AvatarURL,
		profile.CreatedAt.Unix(),
		profile.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadProfile(ctx context.Context, id uuid.UUID) (*core.UserProfile, error) {
	query := `
		SELECT id, full_name, email, role, avatar_url, created_at, updated_at
		FROM profiles
		WHERE id = ?
	`

	var idStr, fullName, email, role, avatarURL string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(
		&idStr, &fullName, &email, &role, &avatarURL, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	profileID, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt profile row: %w", err)
	}

	return &core.UserProfile{
		ID:        profileID,
		FullName:  fullName,
		Email:     email,
		Role:      core.Role(role),
		AvatarURL: avatarURL,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
		UpdatedAt: time.Unix(updatedAt, 0).UTC(),
	}, nil
}
