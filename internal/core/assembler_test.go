package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gwi.com/chat-backend/internal/store"
)

func TestAssemble_SystemOnly(t *testing.T) {
	history := []MessageView{{Role: store.RoleSystem, Content: "You are a helpful assistant."}}

	turns := Assemble(history, "Hello", "")

	assert.Equal(t, []ProviderTurn{
		{Role: store.RoleSystem, Text: "You are a helpful assistant."},
		{Role: store.RoleUser, Parts: []ContentPart{{Type: PartText, Text: "Hello"}}, Structured: true},
	}, turns)
}

func TestAssemble_ImageBeforeText(t *testing.T) {
	turns := Assemble(nil, "What is this?", "data:image/png;base64,AA==")

	assert.Len(t, turns, 1)
	assert.Equal(t, []ContentPart{
		{Type: PartImageURL, ImageURL: "data:image/png;base64,AA=="},
		{Type: PartText, Text: "What is this?"},
	}, turns[0].Parts)
}

func TestAssemble_HistoricalImagesNotReplayed(t *testing.T) {
	history := []MessageView{
		{Role: store.RoleSystem, Content: "sys"},
		{Role: store.RoleUser, Content: "look", ImageRef: "data:image/jpeg;base64,AA=="},
		{Role: store.RoleAssistant, Content: "a cat"},
	}

	turns := Assemble(history, "more?", "")

	assert.Len(t, turns, 4)
	assert.Equal(t, ProviderTurn{Role: store.RoleUser, Text: "look"}, turns[1])
	assert.Equal(t, ProviderTurn{Role: store.RoleAssistant, Text: "a cat"}, turns[2])
}

func TestAssemble_EmptyNewTurn(t *testing.T) {
	turns := Assemble([]MessageView{{Role: store.RoleSystem, Content: "sys"}}, "", "")

	last := turns[len(turns)-1]
	assert.Equal(t, store.RoleUser, last.Role)
	assert.True(t, last.Structured)
	assert.Empty(t, last.Parts)
}

func TestAssemble_Deterministic(t *testing.T) {
	history := []MessageView{
		{Role: store.RoleSystem, Content: "sys"},
		{Role: store.RoleUser, Content: "hi"},
		{Role: store.RoleAssistant, Content: "hello"},
	}

	first := Assemble(history, "again", "data:image/png;base64,AA==")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Assemble(history, "again", "data:image/png;base64,AA=="))
	}
}

func TestMessageViews(t *testing.T) {
	views := MessageViews([]store.Message{
		{ID: "1", Role: store.RoleSystem, Content: "sys", Visible: false},
		{ID: "2", Role: store.RoleUser, Content: "hi", ImageRef: "data:image/png;base64,AA==", Visible: true},
	})

	assert.Equal(t, []MessageView{
		{Role: store.RoleSystem, Content: "sys"},
		{Role: store.RoleUser, Content: "hi", ImageRef: "data:image/png;base64,AA=="},
	}, views)
}
