package core

import (
	"context"

	"github.com/rs/zerolog/log"
	"gwi.com/chat-backend/internal/search"
	"gwi.com/chat-backend/internal/store"
	"gwi.com/chat-backend/internal/utils"
)

const DefaultTitleMaxLength = 30

type chatNamer interface {
	SetChatNameIfUnset(ctx context.Context, chatID, name string) (bool, error)
}

// TitleDeriver names a chat after its first user turn and mirrors the name into the search index.
type TitleDeriver struct {
	store  chatNamer
	index  ChatIndex
	maxLen int
}

func NewTitleDeriver(s chatNamer, index ChatIndex, maxLen int) *TitleDeriver {
	if maxLen <= 0 {
		maxLen = DefaultTitleMaxLength
	}
	return &TitleDeriver{store: s, index: index, maxLen: maxLen}
}

// DeriveTitle prefers the user's text and falls back to the assistant's reply.
func DeriveTitle(userText, assistantText string, maxLen int) string {
	candidate := userText
	if candidate == "" {
		candidate = assistantText
	}
	return utils.TruncateRunes(candidate, maxLen)
}

// MaybeName sets the chat name when the chat is unnamed and this is its first user turn.
// It returns the new name, or nil when nothing was written. Indexing failures are logged only:
// the stored name stays committed and the index catches up on the next reindex.
func (d *TitleDeriver) MaybeName(ctx context.Context, chat *store.Chat, isFirstUserMessage bool, userText, assistantText string) (*string, error) {
	if chat.Name != nil || !isFirstUserMessage {
		return nil, nil
	}

	title := DeriveTitle(userText, assistantText, d.maxLen)
	if title == "" {
		return nil, nil
	}

	updated, err := d.store.SetChatNameIfUnset(ctx, chat.ID, title)
	if err != nil {
		return nil, storageErr("set chat name", err)
	}
	if !updated {
		// A concurrent first message named the chat already.
		log.Info().Str("chat_id", chat.ID).Msg("chat already named, keeping existing title")
		return nil, nil
	}
	chat.Name = &title

	doc := search.ChatDocument{ID: chat.ID, Name: title, UserID: chat.UserID}
	if err := d.index.UpsertChats(ctx, doc); err != nil {
		log.Warn().Err(err).Str("chat_id", chat.ID).Msg("failed to index chat title")
	}
	return &title, nil
}
