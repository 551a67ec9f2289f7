// Package profiles provides structured storage for the people Gen
// knows: chat identities, chosen aliases, home channels, and the
// relationship descriptor injected into the system prompt.
package profiles

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// User is one known chat participant.
type User struct {
	ID                  string // chat service user ID
	Username            string // account name on the chat service
	Alias               string // what Gen calls them; defaults to Username
	DMChannelID         string
	LastActiveChannelID string
	Relationship        string // free-text descriptor, e.g. "close friend"
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NameRef pairs a display name with the user it refers to, used for
// greedy alias substitution in free text.
type NameRef struct {
	Name   string
	UserID string
}

// Store manages user profile persistence in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the profile database at dbPath using the
// given database/sql driver name.
func Open(driver, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			alias TEXT NOT NULL,
			dm_channel_id TEXT,
			last_active_channel_id TEXT,
			relationship TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ensure creates the user if unknown, or refreshes the stored username
// if the chat service reports a new one. The alias is left alone: it is
// the user's chosen name and only changes via UpdateAlias.
func (s *Store) Ensure(ctx context.Context, userID, username string) error {
	now := time.Now().UTC()
	existing, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO users (id, username, alias, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			userID, username, username, now, now)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		s.logger.Info("new user profile created", "user_id", userID, "username", username)
		return nil
	}
	if existing.Username != username {
		_, err = s.db.ExecContext(ctx,
			`UPDATE users SET username = ?, updated_at = ? WHERE id = ?`,
			username, now, userID)
		if err != nil {
			return fmt.Errorf("update username: %w", err)
		}
	}
	return nil
}

// Get returns the user with the given ID, or nil if unknown.
func (s *Store) Get(ctx context.Context, userID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, alias,
		       COALESCE(dm_channel_id, ''), COALESCE(last_active_channel_id, ''),
		       COALESCE(relationship, ''), created_at, updated_at
		FROM users WHERE id = ?`, userID)

	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Alias, &u.DMChannelID,
		&u.LastActiveChannelID, &u.Relationship, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Alias returns the display alias for userID, or "" if unknown.
func (s *Store) Alias(ctx context.Context, userID string) string {
	u, err := s.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("alias lookup failed", "user_id", userID, "error", err)
		return ""
	}
	if u == nil {
		return ""
	}
	return u.Alias
}

// UpdateAlias sets the user's chosen alias (and refreshes username).
func (s *Store) UpdateAlias(ctx context.Context, userID, alias, username string) error {
	if err := s.Ensure(ctx, userID, username); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET alias = ?, updated_at = ? WHERE id = ?`,
		alias, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("update alias: %w", err)
	}
	return nil
}

// SetDMChannel records the user's direct-message channel.
func (s *Store) SetDMChannel(ctx context.Context, userID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET dm_channel_id = ?, updated_at = ? WHERE id = ?`,
		channelID, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("set dm channel: %w", err)
	}
	return nil
}

// SetLastActive records the channel the user was last seen in.
func (s *Store) SetLastActive(ctx context.Context, userID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_active_channel_id = ?, updated_at = ? WHERE id = ?`,
		channelID, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("set last active: %w", err)
	}
	return nil
}

// SetRelationship sets the relationship descriptor for the prompt.
func (s *Store) SetRelationship(ctx context.Context, userID, rel string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET relationship = ?, updated_at = ? WHERE id = ?`,
		rel, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("set relationship: %w", err)
	}
	return nil
}

// Relationship returns the relationship descriptor for userID, or a
// neutral default when none is recorded.
func (s *Store) Relationship(ctx context.Context, userID string) string {
	u, err := s.Get(ctx, userID)
	if err != nil || u == nil || u.Relationship == "" {
		return "an acquaintance"
	}
	return u.Relationship
}

// KnownNames returns every (alias, user) pair sorted by name length
// descending. The ordering matters: greedy substitution must try the
// longest names first so "Gen the Great" is never corrupted by a rule
// matching "Gen".
func (s *Store) KnownNames(ctx context.Context) ([]NameRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT alias, id FROM users WHERE alias != ''`)
	if err != nil {
		return nil, fmt.Errorf("query known names: %w", err)
	}
	defer rows.Close()

	var refs []NameRef
	for rows.Next() {
		var r NameRef
		if err := rows.Scan(&r.Name, &r.UserID); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return len(refs[i].Name) > len(refs[j].Name)
	})
	return refs, nil
}
