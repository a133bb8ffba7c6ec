package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// ChatDocument is the shape of a chat in the search index.
type ChatDocument struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

type ClientConfig struct {
	URL     string
	APIKey  string
	Index   string
	Timeout time.Duration
}

// MeiliClient talks to the Meilisearch HTTP API.
type MeiliClient struct {
	http  *resty.Client
	index string
}

func NewMeiliClient(cfg ClientConfig) *MeiliClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(0)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &MeiliClient{http: client, index: cfg.Index}
}

// EnsureIndex creates the index if needed and makes user_id filterable.
// Meilisearch processes both calls as async tasks, so an existing index is not an error here.
func (c *MeiliClient) EnsureIndex(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"uid": c.index, "primaryKey": "id"}).
		Post("/indexes")
	if err != nil {
		return fmt.Errorf("create index request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("create index returned status %d: %s", resp.StatusCode(), resp.String())
	}

	resp, err = c.http.R().
		SetContext(ctx).
		SetBody([]string{"user_id"}).
		Put("/indexes/" + c.index + "/settings/filterable-attributes")
	if err != nil {
		return fmt.Errorf("update filterable attributes request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("update filterable attributes returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *MeiliClient) UpsertChats(ctx context.Context, docs ...ChatDocument) error {
	if len(docs) == 0 {
		return nil
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(docs).
		Post("/indexes/" + c.index + "/documents")
	if err != nil {
		return fmt.Errorf("upsert documents request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("upsert documents returned status %d: %s", resp.StatusCode(), resp.String())
	}
	log.Debug().Int("documents", len(docs)).Str("index", c.index).Msg("queued chat documents for indexing")
	return nil
}

type searchRequest struct {
	Q      string `json:"q"`
	Filter string `json:"filter"`
	Limit  int    `json:"limit"`
}

type searchResponse struct {
	Hits []ChatDocument `json:"hits"`
}

// SearchChats returns the owner's chats whose names match query.
func (c *MeiliClient) SearchChats(ctx context.Context, userID, query string, limit int) ([]ChatDocument, error) {
	var out searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(searchRequest{
			Q:      query,
			Filter: "user_id = " + strconv.Quote(userID),
			Limit:  limit,
		}).
		SetResult(&out).
		Post("/indexes/" + c.index + "/search")
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Hits, nil
}

// NoopIndex is used when no search service is configured.
type NoopIndex struct{}

func (NoopIndex) EnsureIndex(context.Context) error                  { return nil }
func (NoopIndex) UpsertChats(context.Context, ...ChatDocument) error { return nil }
func (NoopIndex) SearchChats(context.Context, string, string, int) ([]ChatDocument, error) {
	return []ChatDocument{}, nil
}
