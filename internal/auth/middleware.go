package auth

import (
	"context"
	"net/http"
	"strings"

	pkgerrors "algoarena/pkg/errors"
	"algoarena/pkg/utils/contextkey"
	"algoarena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Authenticator is satisfied by *Service.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (Identity, error)
}

// Middleware rejects requests without a valid access token and stores the identity.
func Middleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := authn.Authenticate(c.Request.Context(), ExtractToken(c.Request))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		SetIdentity(c, id)
		c.Next()
	}
}

// RequireAdmin must run after Middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromGin(c)
		if !ok || !id.IsAdmin {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.Forbidden).WithMessage("admin role required"))
			return
		}
		c.Next()
	}
}

// SetIdentity binds id to the request and its logging context.
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(identityKey, id)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.UserID, id.UserID))
}

// FromGin returns the identity set by Middleware.
func FromGin(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// ExtractToken reads a bearer token from the Authorization header, falling
// back to the token query parameter used by browser websocket clients.
func ExtractToken(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func bearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
