package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/plantae-ai/plantae-server/internal/auth"
	"github.com/plantae-ai/plantae-server/internal/core"
)

type contextKey string

const ownerContextKey contextKey = "owner"

// sessionHeader carries the anonymous session token minted by POST /api/session.
const sessionHeader = "X-Session-ID"

// IdentityMiddleware resolves who is calling: a valid bearer JWT yields an
// authenticated owner, otherwise a session header yields an anonymous one.
// A request with neither passes through with no owner; gated routes then
// fail closed. A present-but-invalid JWT is rejected outright rather than
// silently downgraded to anonymous.
func (h *APIHandler) IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			userID, err := auth.ValidateJWT(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			user, err := h.userStore.GetUserByID(r.Context(), userID)
			if err != nil {
				log.Printf("Error resolving user %s: %v", userID, err)
				http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, "User not found", http.StatusUnauthorized)
				return
			}

			owner := core.Owner{ID: user.ID, Authenticated: true}
			next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), owner)))
			return
		}

		if sessionID := r.Header.Get(sessionHeader); sessionID != "" {
			owner := core.Owner{ID: sessionID, Authenticated: false}
			next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), owner)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func withOwner(ctx context.Context, owner core.Owner) context.Context {
	return context.WithValue(ctx, ownerContextKey, owner)
}

func ownerFromContext(ctx context.Context) (core.Owner, bool) {
	owner, ok := ctx.Value(ownerContextKey).(core.Owner)
	return owner, ok
}
