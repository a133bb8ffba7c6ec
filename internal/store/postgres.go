package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS chats (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users (id),
			name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			seq BIGSERIAL,
			chat_id UUID NOT NULL REFERENCES chats (id),
			role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
			content TEXT,
			image_ref TEXT NOT NULL DEFAULT '',
			visible BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_chats_user_id ON chats (user_id);
		CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages (chat_id, created_at, seq);
	`)
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	user := &User{ID: uuid.NewString(), Username: username, Email: email, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, user.ID, user.Username, user.Email, user.PasswordHash).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, username, email, password_hash, created_at
		FROM users WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) CreateChat(ctx context.Context, userID, systemPrompt string) (*Chat, error) {
	now := time.Now().UTC()
	chat := &Chat{ID: uuid.NewString(), UserID: userID, CreatedAt: now}
	system := &Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		Role:      RoleSystem,
		Content:   systemPrompt,
		CreatedAt: now,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO chats (id, user_id, created_at) VALUES ($1, $2, $3)`, chat.ID, chat.UserID, chat.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to execute chat insert: %w", err)
	}
	if err := pgInsertMessage(ctx, tx, system); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit chat: %w", err)
	}
	return chat, nil
}

func (s *PostgresStore) GetChatByID(ctx context.Context, chatID, userID string) (*Chat, error) {
	if _, err := uuid.Parse(chatID); err != nil {
		return nil, nil // Not a UUID, cannot exist
	}

	var chat Chat
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, name, created_at
		FROM chats WHERE id = $1 AND user_id = $2
	`, chatID, userID).Scan(&chat.ID, &chat.UserID, &chat.Name, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

func (s *PostgresStore) GetChatsByUserID(ctx context.Context, userID string) ([]Chat, error) {
	return s.queryChats(ctx, `
		SELECT id::text, user_id::text, name, created_at
		FROM chats WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
}

func (s *PostgresStore) GetNamedChats(ctx context.Context) ([]Chat, error) {
	return s.queryChats(ctx, `
		SELECT id::text, user_id::text, name, created_at
		FROM chats WHERE name IS NOT NULL ORDER BY created_at ASC
	`)
}

func (s *PostgresStore) queryChats(ctx context.Context, query string, args ...any) ([]Chat, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Name, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *PostgresStore) SetChatNameIfUnset(ctx context.Context, chatID, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE chats SET name = $1 WHERE id = $2 AND name IS NULL`, name, chatID)
	if err != nil {
		return false, fmt.Errorf("failed to execute chat name update: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetMessagesByChatID(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, chat_id::text, role, COALESCE(content, ''), image_ref, visible, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, seq ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.ImageRef, &msg.Visible, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) HasUserMessage(ctx context.Context, chatID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE chat_id = $1 AND role = $2)`, chatID, RoleUser).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user messages: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) AppendMessages(ctx context.Context, msgs ...*Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, msg := range msgs {
		prepareMessage(msg)
		if err := pgInsertMessage(ctx, tx, msg); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func pgInsertMessage(ctx context.Context, tx pgx.Tx, msg *Message) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO messages (id, chat_id, role, content, image_ref, visible, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.ChatID, msg.Role, msg.Content, msg.ImageRef, msg.Visible, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}
