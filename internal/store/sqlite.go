// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Caches conversations, messages, research card batches and the promotion log

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-compose/internal/conversation"
	"github.com/2389/coven-compose/internal/timeline"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps :memory: databases and PRAGMAs consistent
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Debug("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
				ON DELETE CASCADE ON UPDATE CASCADE,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, position);

		CREATE TABLE IF NOT EXISTS card_batches (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			query TEXT NOT NULL,
			cards_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_card_batches_conversation
			ON card_batches(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS promotions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			promoted_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "card_batches",
			column: "mode",
			apply:  `ALTER TABLE card_batches ADD COLUMN mode TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Debug("applied migration", "column", m.column, "table", m.table)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Debug("closing SQLite store")
	return s.db.Close()
}

// SaveConversation inserts or replaces a conversation and all its messages.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *conversation.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at
	`,
		conv.ID,
		conv.Title,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}

	for i, msg := range conv.Messages {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO messages (id, conversation_id, position, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			conv.ID,
			i,
			string(msg.Role),
			msg.Content,
			formatTime(msg.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("saved conversation", "id", conv.ID, "messages", len(conv.Messages))
	return nil
}

// GetConversation retrieves a conversation with its messages.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	var conv conversation.Conversation
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`, id).Scan(&conv.ID, &conv.Title, &createdAtStr, &updatedAtStr)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	if conv.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg conversation.Message
		var role, createdAt string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.Role = conversation.Role(role)
		if msg.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return &conv, nil
}

// ListConversations returns conversations without messages, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]*conversation.Conversation, error) {
	query := `
		SELECT id, title, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC, id ASC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*conversation.Conversation
	for rows.Next() {
		var conv conversation.Conversation
		var createdAtStr, updatedAtStr string
		if err := rows.Scan(&conv.ID, &conv.Title, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		if conv.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if conv.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// RenameConversation moves oldID to newID, replacing anything under newID.
func (s *SQLiteStore) RenameConversation(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, oldID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying conversation: %w", err)
	}

	// Messages cascade with the conversation row
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, newID); err != nil {
		return fmt.Errorf("removing conversation %s: %w", newID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM card_batches WHERE conversation_id = ?`, newID); err != nil {
		return fmt.Errorf("removing card batches of %s: %w", newID, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("renaming conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE card_batches SET conversation_id = ? WHERE conversation_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("moving card batches: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rename: %w", err)
	}

	s.logger.Debug("renamed conversation", "from", oldID, "to", newID)
	return nil
}

// SaveCardBatch inserts or replaces a research card batch.
func (s *SQLiteStore) SaveCardBatch(ctx context.Context, batch *timeline.Batch) error {
	if batch.ID == "" {
		return fmt.Errorf("card batch id required")
	}
	cards, err := json.Marshal(batch.Cards)
	if err != nil {
		return fmt.Errorf("encoding cards: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO card_batches (id, conversation_id, query, mode, cards_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		batch.ID,
		batch.ConversationID,
		batch.Query,
		batch.Mode,
		string(cards),
		formatTime(batch.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting card batch: %w", err)
	}

	s.logger.Debug("saved card batch", "id", batch.ID, "conversation_id", batch.ConversationID, "cards", len(batch.Cards))
	return nil
}

// ListCardBatches returns the batches of a conversation, oldest first.
func (s *SQLiteStore) ListCardBatches(ctx context.Context, conversationID string) ([]timeline.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, query, mode, cards_json, created_at
		FROM card_batches
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying card batches: %w", err)
	}
	defer rows.Close()

	var batches []timeline.Batch
	for rows.Next() {
		var b timeline.Batch
		var cardsJSON, createdAt string
		if err := rows.Scan(&b.ID, &b.ConversationID, &b.Query, &b.Mode, &cardsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning card batch row: %w", err)
		}
		if err := json.Unmarshal([]byte(cardsJSON), &b.Cards); err != nil {
			return nil, fmt.Errorf("decoding cards of batch %s: %w", b.ID, err)
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing card batch created_at: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating card batch rows: %w", err)
	}
	return batches, nil
}

// RecordPromotion appends to the promotion log.
func (s *SQLiteStore) RecordPromotion(ctx context.Context, p conversation.Promotion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promotions (from_id, to_id, promoted_at)
		VALUES (?, ?, ?)
	`, p.From, p.To, formatTime(p.At))
	if err != nil {
		return fmt.Errorf("inserting promotion: %w", err)
	}
	return nil
}

// ListPromotions returns the promotion log in insertion order.
func (s *SQLiteStore) ListPromotions(ctx context.Context) ([]conversation.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, promoted_at
		FROM promotions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying promotions: %w", err)
	}
	defer rows.Close()

	var log []conversation.Promotion
	for rows.Next() {
		var p conversation.Promotion
		var at string
		if err := rows.Scan(&p.From, &p.To, &at); err != nil {
			return nil, fmt.Errorf("scanning promotion row: %w", err)
		}
		if p.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parsing promoted_at: %w", err)
		}
		log = append(log, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating promotion rows: %w", err)
	}
	return log, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
