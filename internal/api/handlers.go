package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/plantae-ai/plantae-server/internal/auth"
	"github.com/plantae-ai/plantae-server/internal/core"
	"github.com/plantae-ai/plantae-server/internal/store"
	"github.com/plantae-ai/plantae-server/internal/usage"
)

// ImageAnalyzer is the slice of the LLM service the analysis endpoints use.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageBase64 string, kind core.AnalysisKind) (string, error)
}

type APIHandler struct {
	chatService *core.ChatService
	migration   *core.MigrationService
	ledger      *usage.Ledger
	userStore   *store.SQLiteStore
	analyzer    ImageAnalyzer
}

func NewAPIHandler(cs *core.ChatService, ms *core.MigrationService, ledger *usage.Ledger, users *store.SQLiteStore, analyzer ImageAnalyzer) *APIHandler {
	return &APIHandler{
		chatService: cs,
		migration:   ms,
		ledger:      ledger,
		userStore:   users,
		analyzer:    analyzer,
	}
}

// Auth handlers

type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	SessionID string `json:"session_id,omitempty"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	existing, err := h.userStore.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("Error checking existing user %s: %v", req.Email, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "Account already exists. Please log in instead.", http.StatusConflict)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.Email, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.userStore.CreateUser(r.Context(), req.Email, hashedPassword)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.Email, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.ID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.handleAuthTransition(r.Context(), req.SessionID, user.ID)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"token": token, "user": user})
}

type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	SessionID string `json:"session_id,omitempty"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.userStore.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.Email, err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.ID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.handleAuthTransition(r.Context(), req.SessionID, user.ID)

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// handleAuthTransition reacts to the one anonymous-to-authenticated
// transition of a session: carry the anonymous history over and reset the
// free-usage counters. The migration drains the session, so the transition
// is consumed here and cannot fire again for the same token.
func (h *APIHandler) handleAuthTransition(ctx context.Context, sessionID, userID string) {
	if sessionID == "" {
		return
	}
	h.migration.Migrate(ctx, sessionID, userID)
}

// SessionHandler mints an anonymous session token. The client presents it on
// every request until it signs in; chats and usage counters are scoped to it.
func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"session_id": uuid.NewString()})
}

// UsageHandler reports remaining free uses per feature for the caller.
func (h *APIHandler) UsageHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if ok && owner.Authenticated {
		json.NewEncoder(w).Encode(map[string]bool{"authenticated": true})
		return
	}
	if !ok || owner.ID == "" {
		http.Error(w, "Session header is required", http.StatusBadRequest)
		return
	}

	remaining := make(map[string]int, len(usage.FreeLimits))
	for feature := range usage.FreeLimits {
		n, err := h.ledger.Remaining(r.Context(), owner.ID, feature)
		if err != nil {
			log.Printf("Error reading usage for session %s: %v", owner.ID, err)
			http.Error(w, "Failed to read usage", http.StatusInternalServerError)
			return
		}
		remaining[string(feature)] = n
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"remaining": remaining})
}

// Analysis handlers

type AnalyzeRequest struct {
	Image string `json:"image"` // base64, data URL prefix allowed
}

func (h *APIHandler) IdentifyHandler(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, core.AnalysisIdentification, usage.FeatureIdentification)
}

func (h *APIHandler) AnalyzeHealthHandler(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, core.AnalysisHealth, usage.FeatureHealth)
}

func (h *APIHandler) analyze(w http.ResponseWriter, r *http.Request, kind core.AnalysisKind, feature usage.Feature) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Image == "" {
		http.Error(w, "Image data is required", http.StatusBadRequest)
		return
	}

	analysis, err := h.analyzer.AnalyzeImage(r.Context(), req.Image, kind)
	if err != nil {
		log.Printf("Error running %s analysis: %v", kind, err)
		http.Error(w, "Analysis failed. Please try again.", http.StatusBadGateway)
		return
	}

	// Free usage is spent only on a successful unit of work.
	h.spendUsage(r, feature)

	json.NewEncoder(w).Encode(map[string]string{"analysis": analysis})
}

func (h *APIHandler) spendUsage(r *http.Request, feature usage.Feature) {
	owner, ok := ownerFromContext(r.Context())
	if !ok || owner.Authenticated || owner.ID == "" {
		return
	}
	if _, err := h.ledger.Increment(r.Context(), owner.ID, feature); err != nil {
		log.Printf("Error incrementing %s usage for session %s: %v", feature, owner.ID, err)
	}
}

// Chat handlers

type CreateChatRequest struct {
	Title string `json:"title,omitempty"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication or session header required", http.StatusUnauthorized)
		return
	}

	var req CreateChatRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	chat, err := h.chatService.CreateChat(r.Context(), owner, req.Title)
	if err != nil {
		h.writeStoreError(w, "create chat", err)
		return
	}

	// One anonymous chat session is the free allowance.
	h.spendUsage(r, usage.FeatureChat)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(chat)
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication or session header required", http.StatusUnauthorized)
		return
	}

	chats, err := h.chatService.ListChats(r.Context(), owner)
	if err != nil {
		h.writeStoreError(w, "list chats", err)
		return
	}
	json.NewEncoder(w).Encode(chats)
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication or session header required", http.StatusUnauthorized)
		return
	}
	chatID := chi.URLParam(r, "chatID")

	chat, err := h.chatService.GetChat(r.Context(), owner, chatID)
	if err != nil {
		h.writeStoreError(w, "get chat", err)
		return
	}
	json.NewEncoder(w).Encode(chat)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication or session header required", http.StatusUnauthorized)
		return
	}
	chatID := chi.URLParam(r, "chatID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		return
	}

	chat, err := h.chatService.SendMessage(r.Context(), owner, chatID, req.Content)
	if err != nil {
		h.writeStoreError(w, "post message", err)
		return
	}
	json.NewEncoder(w).Encode(chat)
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication or session header required", http.StatusUnauthorized)
		return
	}
	chatID := chi.URLParam(r, "chatID")

	if err := h.chatService.DeleteChat(r.Context(), owner, chatID); err != nil {
		h.writeStoreError(w, "delete chat", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeStoreError maps the store error taxonomy onto HTTP: a missing chat is
// definitive (404, do not retry), an unavailable backend is transient (503,
// retry), everything else is a plain server error.
func (h *APIHandler) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrChatNotFound):
		http.Error(w, "Chat no longer available", http.StatusNotFound)
	case errors.Is(err, store.ErrStoreUnavailable):
		log.Printf("Store unavailable during %s: %v", op, err)
		http.Error(w, "Chat storage is temporarily unavailable. Please try again.", http.StatusServiceUnavailable)
	default:
		log.Printf("Error during %s: %v", op, err)
		http.Error(w, "Failed to "+op, http.StatusInternalServerError)
	}
}
