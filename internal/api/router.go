package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/plantae-ai/plantae-server/internal/usage"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Post("/session", apiHandler.SessionHandler)
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Routes that need an identity (authenticated or anonymous)
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.IdentityMiddleware)

			r.Get("/usage", apiHandler.UsageHandler)

			// Image analysis features
			r.With(apiHandler.AccessGate(usage.FeatureIdentification)).
				Post("/identify", apiHandler.IdentifyHandler)
			r.With(apiHandler.AccessGate(usage.FeatureHealth)).
				Post("/analyze-health", apiHandler.AnalyzeHealthHandler)

			// Chat routes. Only starting a new chat draws on the free
			// allowance; an anonymous caller at the limit can still read
			// and continue the chats it already has.
			r.With(apiHandler.AccessGate(usage.FeatureChat)).
				Post("/chats", apiHandler.CreateChatHandler)
			r.Get("/chats", apiHandler.ListChatsHandler)
			r.Get("/chats/{chatID}", apiHandler.GetChatHandler)
			r.Post("/chats/{chatID}/messages", apiHandler.PostMessageHandler)
			r.Delete("/chats/{chatID}", apiHandler.DeleteChatHandler)
		})
	})

	return r
}
