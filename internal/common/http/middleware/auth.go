package middleware

import (
	"context"
	"strings"

	"hirejudge/internal/common/auth"
	pkgerrors "hirejudge/pkg/errors"
	"hirejudge/pkg/utils/contextkey"
	"hirejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// TokenVerifier resolves a bearer token to a caller identity.
type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// AuthMiddleware validates the bearer token and enforces the allowed roles.
// An empty roles list accepts any authenticated caller.
func AuthMiddleware(verifier TokenVerifier, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth verifier unavailable")
			return
		}
		id, err := verifier.Verify(extractBearerToken(c.GetHeader("Authorization")))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		if len(roles) > 0 && !hasRole(id.Role, roles) {
			response.AbortWithErrorCode(c, pkgerrors.Forbidden, "insufficient role")
			return
		}

		c.Set(string(contextkey.UserID), id.UserID)
		c.Set(string(contextkey.UserRole), id.Role)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, id.UserID)
		ctx = context.WithValue(ctx, contextkey.UserRole, id.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user id set by AuthMiddleware.
func CurrentUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(string(contextkey.UserID))
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
