package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gwi.com/chat-backend/internal/api"
	"gwi.com/chat-backend/internal/auth"
	"gwi.com/chat-backend/internal/config"
	"gwi.com/chat-backend/internal/core"
	"gwi.com/chat-backend/internal/search"
	"gwi.com/chat-backend/internal/store"
)

type appStore interface {
	core.ChatStore
	core.UserStore
	Close() error
}

type searchIndex interface {
	core.ChatIndex
	EnsureIndex(ctx context.Context) error
}

func main() {
	// Command line flag for rebuilding the search index
	reindexFlag := flag.Bool("reindex", false, "Upsert every named chat into the search index and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.SetupLogging()
	log.Debug().Msg("service starting in debug mode")

	ctx := context.Background()

	// Initialize database store
	dbStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer dbStore.Close()

	// Initialize search index
	var index searchIndex = search.NoopIndex{}
	if cfg.MeiliURL != "" {
		index = search.NewMeiliClient(search.ClientConfig{URL: cfg.MeiliURL, APIKey: cfg.MeiliAPIKey, Index: cfg.MeiliIndex})
	} else {
		log.Warn().Msg("MEILI_URL not set, chat titles will not be indexed")
	}
	if err := index.EnsureIndex(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to bootstrap search index")
	}

	// Initialize LLM service
	llmService := core.NewLLMService(core.LLMConfig{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.OpenAIModel,
		MaxTokens: cfg.CompletionMaxTokens,
		Timeout:   cfg.CompletionTimeout,
	})

	chatService := core.NewChatService(dbStore, index, llmService, cfg.TitleMaxLength, cfg.SystemPrompt)

	if *reindexFlag {
		log.Info().Msg("starting search reindex")
		n, err := chatService.ReindexChats(ctx)
		if err != nil {
			dbStore.Close()
			log.Fatal().Err(err).Msg("reindex failed")
		}
		log.Info().Int("chats", n).Msg("reindex complete, exiting")
		return
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	userService := core.NewUserService(dbStore, tokens)

	var limiter *api.RateLimiter
	if cfg.RedisURL != "" {
		client, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		limiter = api.NewRateLimiter(client, cfg.RateLimitPerMinute, time.Minute)
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, userService)
	router := api.NewRouter(apiHandler, tokens, limiter)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CompletionTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("could not listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}
	log.Info().Msg("server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (appStore, error) {
	if cfg.UsesPostgres() {
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	return store.NewSQLiteStore(cfg.DatabaseURL)
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client, nil
}
