package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rpgquest/cache"
	"github.com/kasuganosora/rpgquest/config"
)

const CharIDKey = "char_id"

// SessionKey is the cache key that keeps an issued token valid.
func SessionKey(token string) string { return "session:" + token }

// IssueToken signs a token for charID and records its session so Auth
// accepts it until the TTL runs out or the session is revoked.
func IssueToken(ctx context.Context, sec config.SecurityConfig, c cache.Cache, charID int64) (string, error) {
	ttl := sec.JWTTTLH
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := GenerateToken(charID, sec.JWTSecret, ttl)
	if err != nil {
		return "", err
	}
	if err := c.Set(ctx, SessionKey(token), "1", ttl); err != nil {
		return "", err
	}
	return token, nil
}

// bearer returns the token from the Authorization header, or from the token
// query parameter for WebSocket upgrades where browsers cannot set headers.
func bearer(ctx *gin.Context) string {
	if header := ctx.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return ""
		}
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ctx.Query("token")
}

// Auth validates the JWT and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := bearer(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Check session still valid in cache.
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(CharIDKey, claims.CharID)
		ctx.Next()
	}
}

// GetCharID retrieves the authenticated character ID from the Gin context.
func GetCharID(c *gin.Context) int64 {
	if v, exists := c.Get(CharIDKey); exists {
		return v.(int64)
	}
	return 0
}

// AdminKey guards the admin API with the X-Admin-Key header. An empty key
// disables the admin API entirely.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Admin-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin key required"})
			return
		}
		c.Next()
	}
}
