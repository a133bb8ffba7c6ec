package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/chat-backend/internal/search"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		assistant string
		maxLen    int
		expected  string
	}{
		{"short user text", "Hello", "Hi!", 30, "Hello"},
		{"falls back to assistant", "", "Here is a picture of a cat", 30, "Here is a picture of a cat"},
		{"truncated", strings.Repeat("a", 45), "", 30, strings.Repeat("a", 30)},
		{"short deployment limit", "Tell me about gophers", "", 10, "Tell me ab"},
		{"both empty", "", "", 30, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DeriveTitle(tc.user, tc.assistant, tc.maxLen))
		})
	}
}

func TestTitleDeriver_NamesOnce(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	index := &fakeIndex{}
	d := NewTitleDeriver(db, index, 30)
	chat := db.seedChat("u1", nil, "sys")

	name, err := d.MaybeName(ctx, chat, true, "Hello", "")
	require.NoError(t, err)
	require.NotNil(t, name)
	assert.Equal(t, "Hello", *name)
	assert.Equal(t, []search.ChatDocument{{ID: chat.ID, Name: "Hello", UserID: "u1"}}, index.docs)

	// A stale copy that still looks unnamed loses the conditional update.
	stale := *chat
	stale.Name = nil
	name, err = d.MaybeName(ctx, &stale, true, "Second", "")
	require.NoError(t, err)
	assert.Nil(t, name)
	assert.Equal(t, "Hello", *db.chatName(chat.ID))
	assert.Len(t, index.docs, 1)
}

func TestTitleDeriver_SkipsNamedOrNotFirst(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	d := NewTitleDeriver(db, &fakeIndex{}, 30)

	existing := "Existing"
	named := db.seedChat("u1", &existing, "sys")
	name, err := d.MaybeName(ctx, named, true, "Hello", "")
	require.NoError(t, err)
	assert.Nil(t, name)

	unnamed := db.seedChat("u1", nil, "sys")
	name, err = d.MaybeName(ctx, unnamed, false, "Hello", "")
	require.NoError(t, err)
	assert.Nil(t, name)
	assert.Nil(t, db.chatName(unnamed.ID))
}

func TestTitleDeriver_IndexFailureTolerated(t *testing.T) {
	ctx := context.Background()
	db := newFakeStore()
	d := NewTitleDeriver(db, &fakeIndex{err: errors.New("meilisearch down")}, 30)
	chat := db.seedChat("u1", nil, "sys")

	name, err := d.MaybeName(ctx, chat, true, "Hello", "")
	require.NoError(t, err)
	require.NotNil(t, name)
	assert.Equal(t, "Hello", *db.chatName(chat.ID))
}
