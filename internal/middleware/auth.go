package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/auth"
)

// ContextKeyIdentity is where Auth stores the caller's auth.Identity.
const ContextKeyIdentity = "identity"

// Auth resolves the bearer credential before any handler runs. A request
// without a usable identity stops here with 401 and never reaches the
// authorization layer.
func Auth(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, err := auth.CredentialFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization"})
			return
		}

		id, err := resolver.Resolve(credential)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ContextKeyIdentity, id)
		c.Next()
	}
}

// GetIdentity returns the caller set by Auth, or the zero Identity, which
// every authorization check rejects.
func GetIdentity(c *gin.Context) auth.Identity {
	val, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return auth.Identity{}
	}
	id, ok := val.(auth.Identity)
	if !ok {
		return auth.Identity{}
	}
	return id
}

func GetUserID(c *gin.Context) uuid.UUID {
	return GetIdentity(c).UserID
}

func GetTenantID(c *gin.Context) uuid.UUID {
	return GetIdentity(c).TenantID
}
