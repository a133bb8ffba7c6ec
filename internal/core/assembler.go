package core

import "gwi.com/chat-backend/internal/store"

type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// MessageView holds the stored message fields the assembler reads.
type MessageView struct {
	Role     string
	Content  string
	ImageRef string
}

type ContentPart struct {
	Type     PartType
	Text     string
	ImageURL string
}

// ProviderTurn is one role-tagged entry of the conversation sent for completion.
// Historical turns carry plain Text; the new user turn carries Parts instead.
type ProviderTurn struct {
	Role       string
	Text       string
	Parts      []ContentPart
	Structured bool
}

func MessageViews(msgs []store.Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{Role: m.Role, Content: m.Content, ImageRef: m.ImageRef})
	}
	return views
}

// Assemble builds the provider input: every stored message as a text-only turn, in order,
// followed by the new user turn with the image part (if any) before the text part (if any).
// Stored image references are not replayed.
func Assemble(history []MessageView, text, imageRef string) []ProviderTurn {
	turns := make([]ProviderTurn, 0, len(history)+1)
	for _, m := range history {
		turns = append(turns, ProviderTurn{Role: m.Role, Text: m.Content})
	}

	parts := []ContentPart{}
	if imageRef != "" {
		parts = append(parts, ContentPart{Type: PartImageURL, ImageURL: imageRef})
	}
	if text != "" {
		parts = append(parts, ContentPart{Type: PartText, Text: text})
	}
	turns = append(turns, ProviderTurn{Role: store.RoleUser, Parts: parts, Structured: true})
	return turns
}
