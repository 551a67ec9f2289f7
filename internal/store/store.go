// Package store provides conversation persistence: messages, system
// actions, and interactions, backed by SQLite. The history builder reads
// from it; the reasoning loop writes audit actions to it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one stored chat message.
type Message struct {
	ID            string
	InteractionID string
	ChannelID     string
	AuthorID      string
	Role          string // user or assistant
	Content       string
	Timestamp     int64 // epoch seconds
	TokenCount    int   // 0 = unknown, estimate at read time
	IsDM          bool
	HasAttachment bool
}

// Action is one stored system action record (audit trail of tool use
// and other non-message events).
type Action struct {
	ID            string
	InteractionID string
	ChannelID     string
	Type          string
	Timestamp     int64
	Reason        string
	ResultSummary string
	ToolCallID    string
}

// Store manages conversation persistence in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the conversation database at dbPath using the
// given database/sql driver name and runs migrations.
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
	schema := `
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		interaction_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		is_dm INTEGER NOT NULL DEFAULT 0,
		has_attachment INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_channel_ts
		ON messages(channel_id, timestamp);

	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		interaction_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		reason TEXT,
		result_summary TEXT,
		tool_call_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateInteraction records the start of a new interaction.
func (s *Store) CreateInteraction(ctx context.Context, id, userID string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO interactions (id, user_id, timestamp) VALUES (?, ?, ?)`,
		id, userID, ts)
	if err != nil {
		return fmt.Errorf("create interaction: %w", err)
	}
	return nil
}

// SaveMessage persists a chat message.
func (s *Store) SaveMessage(ctx context.Context, m Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages
			(id, interaction_id, channel_id, author_id, role, content,
			 timestamp, token_count, is_dm, has_attachment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.InteractionID, m.ChannelID, m.AuthorID, m.Role, m.Content,
		m.Timestamp, m.TokenCount, boolToInt(m.IsDM), boolToInt(m.HasAttachment))
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// MessagesFromChannels returns the most recent messages in the given
// channels, optionally bounded by an oldest-timestamp cutoff (0 = no
// cutoff), capped at limit rows. Results are in no guaranteed order;
// callers sort by timestamp as needed.
func (s *Store) MessagesFromChannels(ctx context.Context, channelIDs []string, oldestCutoff int64, limit int) ([]Message, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(channelIDs)), ",")
	query := fmt.Sprintf(`
		SELECT id, interaction_id, channel_id, author_id, role, content,
		       timestamp, token_count, is_dm, has_attachment
		FROM messages
		WHERE channel_id IN (%s)`, placeholders)

	args := make([]any, 0, len(channelIDs)+2)
	for _, id := range channelIDs {
		args = append(args, id)
	}
	if oldestCutoff > 0 {
		query += " AND timestamp >= ?"
		args = append(args, oldestCutoff)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var isDM, hasAtt int
		if err := rows.Scan(&m.ID, &m.InteractionID, &m.ChannelID, &m.AuthorID,
			&m.Role, &m.Content, &m.Timestamp, &m.TokenCount, &isDM, &hasAtt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.IsDM = isDM != 0
		m.HasAttachment = hasAtt != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// Actions returns stored action records, optionally bounded by an
// oldest-timestamp cutoff (0 = no cutoff).
func (s *Store) Actions(ctx context.Context, oldestCutoff int64) ([]Action, error) {
	query := `
		SELECT id, interaction_id, channel_id, type, timestamp,
		       COALESCE(reason, ''), COALESCE(result_summary, ''), COALESCE(tool_call_id, '')
		FROM actions`
	var args []any
	if oldestCutoff > 0 {
		query += " WHERE timestamp >= ?"
		args = append(args, oldestCutoff)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.InteractionID, &a.ChannelID, &a.Type,
			&a.Timestamp, &a.Reason, &a.ResultSummary, &a.ToolCallID); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordAction writes one audit action. Callers treat this as
// fire-and-forget: the reasoning loop logs failures and moves on.
func (s *Store) RecordAction(ctx context.Context, a Action) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp == 0 {
		a.Timestamp = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions
			(id, interaction_id, channel_id, type, timestamp, reason, result_summary, tool_call_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.InteractionID, a.ChannelID, a.Type, a.Timestamp,
		a.Reason, a.ResultSummary, a.ToolCallID)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
