package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gwi.com/chat-backend/internal/search"
	"gwi.com/chat-backend/internal/store"
)

const searchResultLimit = 20

// ChatStore is the storage the chat service needs.
type ChatStore interface {
	CreateChat(ctx context.Context, userID, systemPrompt string) (*store.Chat, error)
	GetChatByID(ctx context.Context, chatID, userID string) (*store.Chat, error)
	GetChatsByUserID(ctx context.Context, userID string) ([]store.Chat, error)
	GetNamedChats(ctx context.Context) ([]store.Chat, error)
	GetMessagesByChatID(ctx context.Context, chatID string) ([]store.Message, error)
	HasUserMessage(ctx context.Context, chatID string) (bool, error)
	SetChatNameIfUnset(ctx context.Context, chatID, name string) (bool, error)
	AppendMessages(ctx context.Context, msgs ...*store.Message) error
}

// ChatIndex is the search sink for chat titles.
type ChatIndex interface {
	UpsertChats(ctx context.Context, docs ...search.ChatDocument) error
	SearchChats(ctx context.Context, userID, query string, limit int) ([]search.ChatDocument, error)
}

type Completer interface {
	Complete(ctx context.Context, turns []ProviderTurn) (string, error)
}

type ChatService struct {
	dbStore      ChatStore
	index        ChatIndex
	llm          Completer
	titles       *TitleDeriver
	systemPrompt string
	now          func() time.Time
}

func NewChatService(db ChatStore, index ChatIndex, llm Completer, titleMaxLength int, systemPrompt string) *ChatService {
	return &ChatService{
		dbStore:      db,
		index:        index,
		llm:          llm,
		titles:       NewTitleDeriver(db, index, titleMaxLength),
		systemPrompt: systemPrompt,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateChat starts a chat seeded with the hidden system message.
func (s *ChatService) CreateChat(ctx context.Context, userID string) (*store.Chat, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	chat, err := s.dbStore.CreateChat(ctx, userID, s.systemPrompt)
	if err != nil {
		return nil, storageErr("create chat", err)
	}
	log.Info().Str("chat_id", chat.ID).Str("user_id", userID).Msg("chat created")
	return chat, nil
}

func (s *ChatService) GetChats(ctx context.Context, userID string) ([]store.Chat, error) {
	chats, err := s.dbStore.GetChatsByUserID(ctx, userID)
	if err != nil {
		return nil, storageErr("list chats", err)
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	return chats, nil
}

// GetChatDetails returns the chat and the messages the user may see.
func (s *ChatService) GetChatDetails(ctx context.Context, chatID, userID string) (*store.Chat, []store.Message, error) {
	chat, err := s.getOwnedChat(ctx, chatID, userID)
	if err != nil {
		return nil, nil, err
	}

	messages, err := s.dbStore.GetMessagesByChatID(ctx, chatID)
	if err != nil {
		return nil, nil, storageErr("load messages", err)
	}
	visible := make([]store.Message, 0, len(messages))
	for _, m := range messages {
		if m.Visible {
			visible = append(visible, m)
		}
	}
	return chat, visible, nil
}

func (s *ChatService) SearchChats(ctx context.Context, userID, query string) ([]search.ChatDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []search.ChatDocument{}, nil
	}
	return s.index.SearchChats(ctx, userID, query, searchResultLimit)
}

// ReindexChats pushes every named chat to the search index.
func (s *ChatService) ReindexChats(ctx context.Context) (int, error) {
	chats, err := s.dbStore.GetNamedChats(ctx)
	if err != nil {
		return 0, storageErr("list named chats", err)
	}

	docs := make([]search.ChatDocument, 0, len(chats))
	for _, c := range chats {
		docs = append(docs, search.ChatDocument{ID: c.ID, Name: *c.Name, UserID: c.UserID})
	}
	if err := s.index.UpsertChats(ctx, docs...); err != nil {
		return 0, fmt.Errorf("failed to index chats: %w", err)
	}
	return len(docs), nil
}

type PostMessageRequest struct {
	ChatID     string
	Text       string
	Attachment *Attachment
}

type PostMessageResult struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// PostMessage appends a user turn and the provider's reply to a chat.
//
// Nothing is written when the chat is missing, the history is empty, the attachment cannot be
// read or the provider fails. The chat title, when derived from the user's text, is committed
// before the provider call and survives a provider failure.
func (s *ChatService) PostMessage(ctx context.Context, userID string, req PostMessageRequest) (*PostMessageResult, error) {
	defer req.Attachment.Close()

	if userID == "" {
		return nil, ErrUnauthorized
	}

	chat, err := s.getOwnedChat(ctx, req.ChatID, userID)
	if err != nil {
		return nil, err
	}

	history, err := s.dbStore.GetMessagesByChatID(ctx, chat.ID)
	if err != nil {
		return nil, storageErr("load history", err)
	}
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	imageRef, err := EncodeAttachment(req.Attachment)
	if err != nil {
		return nil, err
	}

	turns := Assemble(MessageViews(history), req.Text, imageRef)

	isFirstUserMessage := false
	if chat.Name == nil {
		hasUserMessage, err := s.dbStore.HasUserMessage(ctx, chat.ID)
		if err != nil {
			return nil, storageErr("check user messages", err)
		}
		isFirstUserMessage = !hasUserMessage
	}

	// With user text the title does not depend on the reply, so commit it now.
	if req.Text != "" {
		if _, err := s.titles.MaybeName(ctx, chat, isFirstUserMessage, req.Text, ""); err != nil {
			return nil, err
		}
	}

	reply, err := s.llm.Complete(ctx, turns)
	if err != nil {
		log.Error().Err(err).Str("chat_id", chat.ID).Msg("completion failed")
		return nil, err
	}

	if req.Text == "" {
		if _, err := s.titles.MaybeName(ctx, chat, isFirstUserMessage, "", reply); err != nil {
			return nil, err
		}
	}

	userMsg := &store.Message{
		ChatID:    chat.ID,
		Role:      store.RoleUser,
		Content:   req.Text,
		ImageRef:  imageRef,
		Visible:   true,
		CreatedAt: s.now(),
	}
	assistantMsg := &store.Message{
		ChatID:    chat.ID,
		Role:      store.RoleAssistant,
		Content:   reply,
		Visible:   true,
		CreatedAt: s.now(),
	}
	if err := s.dbStore.AppendMessages(ctx, userMsg, assistantMsg); err != nil {
		return nil, storageErr("persist messages", err)
	}

	log.Info().
		Str("chat_id", chat.ID).
		Str("message_id", userMsg.ID).
		Bool("with_image", imageRef != "").
		Msg("message pair stored")

	return &PostMessageResult{MessageID: userMsg.ID, Content: assistantMsg.Content}, nil
}

func (s *ChatService) getOwnedChat(ctx context.Context, chatID, userID string) (*store.Chat, error) {
	chat, err := s.dbStore.GetChatByID(ctx, chatID, userID)
	if err != nil {
		return nil, storageErr("load chat", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}
