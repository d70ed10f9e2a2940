package appctx

import (
	"context"
	"fmt"

	"agentgateway/models"
)

type contextKey string

const principalContextKey contextKey = "principal"

// SetPrincipal stores the authenticated principal in the request context.
func SetPrincipal(ctx context.Context, principal *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// GetPrincipal retrieves the authenticated principal from the request
// context. Returns an error if authentication middleware did not run.
func GetPrincipal(ctx context.Context) (*models.Principal, error) {
	principal, ok := ctx.Value(principalContextKey).(*models.Principal)
	if !ok || principal == nil {
		return nil, fmt.Errorf("no authenticated principal in context")
	}
	return principal, nil
}
