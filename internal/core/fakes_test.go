package core

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"gwi.com/chat-backend/internal/search"
	"gwi.com/chat-backend/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	chats    map[string]*store.Chat
	messages map[string][]store.Message
	writes   int

	appendErr  error
	historyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{chats: map[string]*store.Chat{}, messages: map[string][]store.Message{}}
}

func (f *fakeStore) seedChat(userID string, name *string, systemPrompt string) *store.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat := &store.Chat{ID: uuid.NewString(), UserID: userID, Name: name, CreatedAt: time.Now()}
	f.chats[chat.ID] = chat
	if systemPrompt != "" {
		f.messages[chat.ID] = []store.Message{{ID: uuid.NewString(), ChatID: chat.ID, Role: store.RoleSystem, Content: systemPrompt}}
	}
	return chat
}

func (f *fakeStore) CreateChat(ctx context.Context, userID, systemPrompt string) (*store.Chat, error) {
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	c := f.seedChat(userID, nil, systemPrompt)
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetChatByID(ctx context.Context, chatID, userID string) (*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[chatID]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetChatsByUserID(ctx context.Context, userID string) ([]store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Chat
	for _, c := range f.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetNamedChats(ctx context.Context) ([]store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Chat
	for _, c := range f.chats {
		if c.Name != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetMessagesByChatID(ctx context.Context, chatID string) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]store.Message(nil), f.messages[chatID]...), nil
}

func (f *fakeStore) HasUserMessage(ctx context.Context, chatID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages[chatID] {
		if m.Role == store.RoleUser {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SetChatNameIfUnset(ctx context.Context, chatID, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[chatID]
	if !ok || c.Name != nil {
		return false, nil
	}
	f.writes++
	c.Name = &name
	return true, nil
}

func (f *fakeStore) AppendMessages(ctx context.Context, msgs ...*store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.writes++
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		f.messages[m.ChatID] = append(f.messages[m.ChatID], *m)
	}
	return nil
}

func (f *fakeStore) chatName(chatID string) *string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats[chatID].Name
}

type fakeIndex struct {
	mu   sync.Mutex
	docs []search.ChatDocument
	err  error
}

func (f *fakeIndex) UpsertChats(ctx context.Context, docs ...search.ChatDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, docs...)
	return nil
}

func (f *fakeIndex) SearchChats(ctx context.Context, userID, query string, limit int) ([]search.ChatDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []search.ChatDocument
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeCompleter struct {
	reply string
	err   error
	calls [][]ProviderTurn
}

func (f *fakeCompleter) Complete(ctx context.Context, turns []ProviderTurn) (string, error) {
	f.calls = append(f.calls, turns)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// trackingReader records whether it was closed and can fail mid-read.
type trackingReader struct {
	data    []byte
	readErr error
	closed  int
	read    bool
}

func (r *trackingReader) Read(p []byte) (int, error) {
	if r.readErr != nil {
		if !r.read && len(r.data) > 0 {
			r.read = true
			return copy(p, r.data), nil
		}
		return 0, r.readErr
	}
	if r.read || len(r.data) == 0 {
		return 0, io.EOF
	}
	r.read = true
	return copy(p, r.data), nil
}

func (r *trackingReader) Close() error {
	r.closed++
	return nil
}
