package auth

import (
	"strings"

	"vetchat/domain"
	"vetchat/errors"

	"github.com/gin-gonic/gin"
)

const (
	// identityKey holds the authenticated *CustomClaims in the gin context.
	identityKey = "identity"
	// AccessTokenParam carries the token for clients that cannot set headers
	// on a websocket handshake (browsers).
	AccessTokenParam = "access_token"
)

// TokenFromRequest extracts the bearer token from the Authorization header,
// falling back to the access_token query parameter.
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query(AccessTokenParam)
}

// Middleware rejects requests without a valid token and stores the identity
// for downstream handlers.
func Middleware(authenticator *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticator.Authenticate(TokenFromRequest(c))
		if err != nil {
			c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{
				"error": gin.H{"code": errors.Code(err), "message": "invalid or expired token"},
			})
			return
		}
		c.Set(identityKey, claims)
		c.Next()
	}
}

// Identity returns the claims stored by Middleware.
func Identity(c *gin.Context) (*CustomClaims, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*CustomClaims)
	return claims, ok
}

// UserID is a shortcut for handlers mounted behind Middleware.
func UserID(c *gin.Context) string {
	if claims, ok := Identity(c); ok {
		return claims.UserID
	}
	return ""
}

// ProfileOf returns the public profile of the caller.
func ProfileOf(c *gin.Context) domain.Profile {
	if claims, ok := Identity(c); ok {
		return claims.Profile()
	}
	return domain.Profile{}
}
