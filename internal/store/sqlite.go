package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// SQLite serialises writers anyway; a single connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        username TEXT UNIQUE NOT NULL,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        name TEXT,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        chat_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
        content TEXT,
        image_ref TEXT NOT NULL DEFAULT '',
        visible BOOLEAN NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (chat_id) REFERENCES chats (id)
    );

    CREATE INDEX IF NOT EXISTS idx_chats_user_id ON chats (user_id);
    CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages (chat_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Chat methods

// CreateChat inserts the chat together with its hidden system message.
func (s *SQLiteStore) CreateChat(ctx context.Context, userID, systemPrompt string) (*Chat, error) {
	now := time.Now().UTC()
	chat := &Chat{ID: uuid.NewString(), UserID: userID, CreatedAt: now}
	system := &Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		Role:      RoleSystem,
		Content:   systemPrompt,
		Visible:   false,
		CreatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT INTO chats (id, user_id, name, created_at) VALUES (?, ?, NULL, ?)", chat.ID, chat.UserID, chat.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to execute chat insert: %w", err)
	}
	if err := insertMessage(ctx, tx, system); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chat: %w", err)
	}
	return chat, nil
}

func (s *SQLiteStore) GetChatByID(ctx context.Context, chatID, userID string) (*Chat, error) {
	var chat Chat
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT id, user_id, name, created_at FROM chats WHERE id = ? AND user_id = ?", chatID, userID).
		Scan(&chat.ID, &chat.UserID, &name, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if name.Valid {
		chat.Name = &name.String
	}
	return &chat, nil
}

func (s *SQLiteStore) GetChatsByUserID(ctx context.Context, userID string) ([]Chat, error) {
	return s.queryChats(ctx, "SELECT id, user_id, name, created_at FROM chats WHERE user_id = ? ORDER BY created_at DESC", userID)
}

// GetNamedChats returns every chat that has a name, for rebuilding the search index.
func (s *SQLiteStore) GetNamedChats(ctx context.Context) ([]Chat, error) {
	return s.queryChats(ctx, "SELECT id, user_id, name, created_at FROM chats WHERE name IS NOT NULL ORDER BY created_at ASC")
}

func (s *SQLiteStore) queryChats(ctx context.Context, query string, args ...any) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		var name sql.NullString
		if err := rows.Scan(&chat.ID, &chat.UserID, &name, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		if name.Valid {
			chat.Name = &name.String
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// SetChatNameIfUnset names the chat only if it has no name yet and reports whether it did.
func (s *SQLiteStore) SetChatNameIfUnset(ctx context.Context, chatID, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE chats SET name = ? WHERE id = ? AND name IS NULL", name, chatID)
	if err != nil {
		return false, fmt.Errorf("failed to execute chat name update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// Message methods
func (s *SQLiteStore) GetMessagesByChatID(ctx context.Context, chatID string) ([]Message, error) {
	query := "SELECT id, chat_id, role, content, image_ref, visible, created_at FROM messages WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC"
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var content sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &content, &msg.ImageRef, &msg.Visible, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Content = content.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) HasUserMessage(ctx context.Context, chatID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM messages WHERE chat_id = ? AND role = ?)", chatID, RoleUser).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user messages: %w", err)
	}
	return exists, nil
}

// AppendMessages inserts all messages in one transaction, in argument order.
// Missing IDs and timestamps are filled in.
func (s *SQLiteStore) AppendMessages(ctx context.Context, msgs ...*Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		prepareMessage(msg)
		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg *Message) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO messages (id, chat_id, role, content, image_ref, visible, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ChatID, msg.Role, msg.Content, msg.ImageRef, msg.Visible, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func prepareMessage(msg *Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
}
