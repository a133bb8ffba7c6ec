package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultChatModelName = openai.GPT4o
	defaultMaxTokens     = 400
	defaultTimeout       = 60 * time.Second
)

type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// LLMService is the gateway to the chat-completion provider.
type LLMService struct {
	client    *resty.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// chatMessage always carries a content key: a string for stored turns, a part list for the new turn.
// openai.ChatCompletionMessage omits an empty string content, which the provider rejects.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

func NewLLMService(cfg LLMConfig) *LLMService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openai.DefaultConfig(cfg.APIKey).BaseURL
	}

	s := &LLMService{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetAuthToken(cfg.APIKey).
			SetHeader("Content-Type", "application/json").
			SetRetryCount(0),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}
	if s.model == "" {
		s.model = defaultChatModelName
	}
	if s.maxTokens <= 0 {
		s.maxTokens = defaultMaxTokens
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	return s
}

// Complete sends the turns and returns the text of the first choice. It does not retry.
func (s *LLMService) Complete(ctx context.Context, turns []ProviderTurn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	var result openai.ChatCompletionResponse
	var apiErr openai.ErrorResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(chatRequest{Model: s.model, Messages: toChatMessages(turns), MaxTokens: s.maxTokens}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrProviderTimeout, s.timeout)
		}
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if resp.IsError() {
		if apiErr.Error != nil {
			return "", fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode(), apiErr.Error.Message)
		}
		return "", fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode())
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrProvider)
	}

	log.Debug().
		Str("model", s.model).
		Int("turns", len(turns)).
		Int("prompt_tokens", result.Usage.PromptTokens).
		Int("completion_tokens", result.Usage.CompletionTokens).
		Dur("latency", time.Since(started)).
		Msg("completion received")

	return result.Choices[0].Message.Content, nil
}

func toChatMessages(turns []ProviderTurn) []chatMessage {
	messages := make([]chatMessage, 0, len(turns))
	for _, turn := range turns {
		if !turn.Structured {
			messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Text})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			switch part.Type {
			case PartImageURL:
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL},
				})
			case PartText:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			}
		}
		messages = append(messages, chatMessage{Role: turn.Role, Content: parts})
	}
	return messages
}
