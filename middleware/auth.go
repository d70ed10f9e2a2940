package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"agentgateway/appctx"
	"agentgateway/core"
	"agentgateway/models"
)

// AccessChecker validates an API key for a scope against the identity
// service.
type AccessChecker interface {
	CheckAccess(ctx context.Context, apiKey, scope string) (*models.Principal, error)
}

// APIKeyAuthMiddleware authenticates requests via the X-API-Key header and
// stores the resulting principal in the request context. A denied key is 401;
// an unreachable identity service is 503 - never a pass-through.
func APIKeyAuthMiddleware(checker AccessChecker, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				writeErrorResponse(w, http.StatusUnauthorized, "missing X-API-Key header")
				return
			}

			principal, err := checker.CheckAccess(r.Context(), apiKey, scope)
			if err != nil {
				switch {
				case core.IsAuthDenied(err):
					writeErrorResponse(w, http.StatusUnauthorized, "access denied")
				case core.IsAuthUnavailable(err):
					log.Printf("❌ Auth check unavailable: %v", err)
					writeErrorResponse(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
				default:
					log.Printf("❌ Auth check failed: %v", err)
					writeErrorResponse(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
				}
				return
			}

			ctx := appctx.SetPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
