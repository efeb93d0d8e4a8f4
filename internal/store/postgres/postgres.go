package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"chatrelay/internal/models"
	"chatrelay/internal/store"
)

const (
	maxPingAttempts = 10
	pingInterval    = 2 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS user_api_keys (
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	provider_id TEXT NOT NULL,
	api_key     TEXT NOT NULL,
	PRIMARY KEY (user_id, provider_id)
);
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	model      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	image_url       TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL
);`

// Store implements the store interfaces on PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to dsn, retrying the initial ping, and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		if attempt == maxPingAttempts {
			db.Close()
			return nil, fmt.Errorf("connect to database after %d attempts: %w", maxPingAttempts, err)
		}
		slog.Warn("database not ready", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(pingInterval):
		}
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("connected to database")
	return s, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddUser inserts userID into the directory if absent.
func (s *Store) AddUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", userID, err)
	}
	return nil
}

// SetKey upserts a user's key for a provider.
func (s *Store) SetKey(ctx context.Context, userID, providerID, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_api_keys (user_id, provider_id, api_key) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, provider_id) DO UPDATE SET api_key = EXCLUDED.api_key`,
		userID, providerID, key)
	if err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	return nil
}

func (s *Store) GetKey(ctx context.Context, userID, providerID string) (string, bool, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT api_key FROM user_api_keys WHERE user_id = $1 AND provider_id = $2`,
		userID, providerID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query api key: %w", err)
	}
	return key, key != "", nil
}

func (s *Store) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := s.now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ID, conv.UserID, conv.Title, conv.Model, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, model, created_at, updated_at
		FROM conversations WHERE id = $1`, conversationID).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Model, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("query conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, msg.ConversationID, msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Message{}, fmt.Errorf("conversation %s: %w", msg.ConversationID, store.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.ImageURL, msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

func (s *Store) RecentHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, image_url, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY seq DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.ImageURL, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
