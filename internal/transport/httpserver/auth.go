package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const identityContextKey = "identity"

var errNoIdentityClaim = errors.New("token carries no identity claim")

// AuthMiddleware verifies an HS256 bearer token and exposes the verified
// username to downstream handlers. Identity issuance is external; this layer
// only verifies.
//
// The token is read from the Authorization header, or from the access_token
// query parameter for websocket upgrades, where browsers cannot set headers.
func AuthMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			logger.Debug("token verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		identity, err := identityFromClaims(token.Claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// IdentityFromContext returns the verified username set by AuthMiddleware.
func IdentityFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return "", false
	}
	identity, ok := val.(string)
	return identity, ok && identity != ""
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("access_token")
}

// identityFromClaims extracts the username, preferring the subject claim and
// falling back to name claims used by common issuers.
func identityFromClaims(claims jwt.Claims) (string, error) {
	mapClaims, ok := claims.(jwt.MapClaims)
	if !ok {
		return "", errNoIdentityClaim
	}
	for _, key := range []string{"sub", "name", "unique_name"} {
		if v, ok := mapClaims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", errNoIdentityClaim
}
