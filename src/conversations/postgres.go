package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plexmate/plexmate/src/models"
)

// Postgres stores conversations in a PostgreSQL table, one row per
// conversation with the messages as JSONB.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s := &Postgres{pool: pool, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			user_id         BIGINT      NOT NULL,
			conversation_id TEXT        NOT NULL,
			title           TEXT        NOT NULL,
			messages        JSONB       NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, conversation_id)
		);
		CREATE INDEX IF NOT EXISTS conversations_user_updated
			ON conversations (user_id, updated_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) cutoff() time.Time {
	return s.now().Add(-TTL)
}

func (s *Postgres) Save(ctx context.Context, userID int64, conversationID string, msgs []models.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	now := s.now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (user_id, conversation_id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, conversation_id)
		DO UPDATE SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at
	`, userID, conversationID, DeriveTitle(msgs), data, now)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", conversationID, err)
	}

	// Trim expired conversations and anything beyond the per-user cap.
	_, err = s.pool.Exec(ctx, `
		DELETE FROM conversations
		WHERE user_id = $1 AND conversation_id NOT IN (
			SELECT conversation_id FROM conversations
			WHERE user_id = $1 AND updated_at > $2
			ORDER BY updated_at DESC
			LIMIT $3
		)
	`, userID, s.cutoff(), MaxPerUser)
	if err != nil {
		return fmt.Errorf("trim conversations for user %d: %w", userID, err)
	}
	return nil
}

func (s *Postgres) Load(ctx context.Context, userID int64, conversationID string) ([]models.Message, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT messages FROM conversations
		WHERE user_id = $1 AND conversation_id = $2 AND updated_at > $3
	`, userID, conversationID, s.cutoff()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", conversationID, err)
	}
	return msgs, nil
}

func (s *Postgres) List(ctx context.Context, userID int64, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, title, created_at, updated_at FROM conversations
		WHERE user_id = $1 AND updated_at > $2
		ORDER BY updated_at DESC
		LIMIT $3
	`, userID, s.cutoff(), limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ConversationID, &sum.Title, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, userID int64, conversationID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM conversations WHERE user_id = $1 AND conversation_id = $2
	`, userID, conversationID)
	if err != nil {
		return false, fmt.Errorf("delete conversation %s: %w", conversationID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) History(ctx context.Context, userID int64, conversationID string) (*History, error) {
	var title string
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT title, messages FROM conversations
		WHERE user_id = $1 AND conversation_id = $2 AND updated_at > $3
	`, userID, conversationID, s.cutoff()).Scan(&title, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", conversationID, err)
	}
	return &History{
		ConversationID: conversationID,
		Title:          title,
		Messages:       displayMessages(msgs),
	}, nil
}

var _ Store = (*Postgres)(nil)
