package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/plantae-ai/plantae-server/internal/usage"
)

// limitReachedResponse tells the client why it was turned away and where to
// send the user back to after a successful sign-in.
type limitReachedResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect"`
	From     string `json:"from"`
}

// AccessGate guards one feature route. Authenticated callers always pass.
// Anonymous callers pass while their free-usage counter for the feature is
// under its limit; at the limit they are redirected to sign-in with the
// original path attached. Routes gated with an unknown feature deny all
// anonymous access.
func (h *APIHandler) AccessGate(feature usage.Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, ok := ownerFromContext(r.Context())
			if ok && owner.Authenticated {
				next.ServeHTTP(w, r)
				return
			}

			// No feature mapping or no session token: fail closed.
			if !usage.Known(feature) || !ok || owner.ID == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			reached, err := h.ledger.ReachedLimit(r.Context(), owner.ID, feature)
			if err != nil {
				log.Printf("Error checking usage limit for session %s: %v", owner.ID, err)
				http.Error(w, "Failed to check usage limit", http.StatusInternalServerError)
				return
			}

			if reached {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(limitReachedResponse{
					Error:    fmt.Sprintf("You've used all your free %s analysis. Sign up to continue.", feature),
					Redirect: "/login",
					From:     r.URL.Path,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CanAccess is the gate decision without the HTTP plumbing, used by the
// usage endpoint and tests.
func (h *APIHandler) CanAccess(r *http.Request, feature usage.Feature) (bool, error) {
	owner, ok := ownerFromContext(r.Context())
	if ok && owner.Authenticated {
		return true, nil
	}
	if !usage.Known(feature) || !ok || owner.ID == "" {
		return false, nil
	}
	reached, err := h.ledger.ReachedLimit(r.Context(), owner.ID, feature)
	if err != nil {
		return false, err
	}
	return !reached, nil
}
