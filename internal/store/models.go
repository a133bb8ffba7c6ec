package store

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      *string   `json:"name"` // Nullable until the first user message
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID       string `json:"id"`
	ChatID   string `json:"chat_id"`
	Role     string `json:"role"` // "system", "user" or "assistant"
	Content  string `json:"content"`
	ImageRef string `json:"image_ref,omitempty"` // data URI, empty when no image was attached
	Visible  bool   `json:"visible"`
	// Messages are ordered by CreatedAt, ties broken by insertion order.
	CreatedAt time.Time `json:"created_at"`
}
