package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"gwi.com/chat-backend/internal/core"
	"gwi.com/chat-backend/internal/store"
)

const (
	maxUploadSize  = 20 << 20
	serviceVersion = "ChatGPT-4"
)

type APIHandler struct {
	chatService *core.ChatService
	userService *core.UserService
}

func NewAPIHandler(cs *core.ChatService, us *core.UserService) *APIHandler {
	return &APIHandler{chatService: cs, userService: us}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg})
}

// writeError maps core errors to a status and a short reason. Internal details are only logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var readErr *core.AttachmentReadError
	var validationErr *core.ValidationError

	switch {
	case errors.As(err, &readErr):
		writeMsg(w, http.StatusBadRequest, readErr.Error())
	case errors.As(err, &validationErr):
		writeMsg(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, core.ErrUnauthorized):
		writeMsg(w, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, core.ErrInvalidCredentials):
		writeMsg(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, core.ErrChatNotFound):
		writeMsg(w, http.StatusNotFound, "Chat not found")
	case errors.Is(err, core.ErrUserExists):
		writeMsg(w, http.StatusConflict, "Username or email already registered")
	case errors.Is(err, core.ErrEmptyHistory):
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("chat has no system message")
		writeMsg(w, http.StatusConflict, "No messages found, expected at least system message")
	case errors.Is(err, core.ErrProviderTimeout):
		writeMsg(w, http.StatusGatewayTimeout, "Completion provider timed out")
	case errors.Is(err, core.ErrProvider):
		writeMsg(w, http.StatusBadGateway, "Completion provider error")
	default:
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		writeMsg(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req core.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMsg(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMsg(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.userService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	chat, err := h.chatService.CreateChat(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"chat_id": chat.ID})
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chatService.GetChats(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

type GetChatDetailsResponse struct {
	*store.Chat
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	chat, messages, err := h.chatService.GetChatDetails(r.Context(), chi.URLParam(r, "chatID"), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GetChatDetailsResponse{Chat: chat, Messages: messages})
}

func (h *APIHandler) SearchChatsHandler(w http.ResponseWriter, r *http.Request) {
	hits, err := h.chatService.SearchChats(r.Context(), userIDFrom(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// PostMessageHandler accepts a multipart or urlencoded form with chat_id, message and an optional file.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeMsg(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	chatID := r.FormValue("chat_id")
	if chatID == "" {
		writeMsg(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	// message may be empty but must be present.
	if _, ok := r.Form["message"]; !ok {
		writeMsg(w, http.StatusBadRequest, "message is required")
		return
	}

	req := core.PostMessageRequest{ChatID: chatID, Text: r.FormValue("message")}
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		req.Attachment = &core.Attachment{File: file, Filename: header.Filename}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		writeMsg(w, http.StatusBadRequest, "Failed to process file: "+err.Error())
		return
	}

	result, err := h.chatService.PostMessage(r.Context(), userIDFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": serviceVersion})
}
