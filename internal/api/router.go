package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the routes. limiter may be nil to disable rate limiting.
func NewRouter(apiHandler *APIHandler, tokens TokenValidator, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	// Public routes
	r.Post("/register", apiHandler.RegisterHandler)
	r.Post("/login", apiHandler.LoginHandler)
	r.Get("/version", apiHandler.VersionHandler)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// User-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(tokens))

		r.Post("/chat", apiHandler.CreateChatHandler)
		r.Get("/chats", apiHandler.ListChatsHandler)
		r.Get("/chats/search", apiHandler.SearchChatsHandler)
		r.Get("/chats/{chatID}", apiHandler.GetChatDetailsHandler)

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Post("/chat/messages", apiHandler.PostMessageHandler)
		})
	})

	return r
}
