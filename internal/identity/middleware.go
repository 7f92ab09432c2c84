package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxAddress is the gin context key the middleware stores the
// authenticated ledger address under.
const ctxAddress = "crediflow_address"

// RequireAddress returns a middleware that enforces a valid Bearer token
// and injects the caller's ledger address into the request context.
func RequireAddress(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxAddress, claims.Address)
		c.Next()
	}
}

// OptionalAddress parses a Bearer token when present and injects the
// address on success. Never aborts; read endpoints use it so callers can
// fall back to their own history scope without re-stating it.
func OptionalAddress(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			if claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer ")); err == nil {
				c.Set(ctxAddress, claims.Address)
			}
		}
		c.Next()
	}
}

// AddressFromCtx retrieves the authenticated ledger address injected by
// RequireAddress or OptionalAddress, or "" when unauthenticated.
func AddressFromCtx(c *gin.Context) string {
	if v, ok := c.Get(ctxAddress); ok {
		if addr, ok := v.(string); ok {
			return addr
		}
	}
	return ""
}
