// middlewares/auth_middleware.go
package middlewares

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDKey is where the authenticated owner id lives in the gin context.
const UserIDKey = "userID"

// AuthMiddleware verifies HS256 bearer tokens issued elsewhere and stores
// the owner id from the userId (or sub) claim.
func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		if len(key) == 0 {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server misconfigured: JWT_SECRET not set"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			return
		}

		id, ok := ownerFromClaims(claims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user id claim missing"})
			return
		}
		c.Set(UserIDKey, id)
		c.Next()
	}
}

func ownerFromClaims(claims jwt.MapClaims) (uint, bool) {
	for _, name := range []string{"userId", "sub"} {
		v, ok := claims[name]
		if !ok {
			continue
		}
		switch id := v.(type) {
		case float64: // JSON numbers decode as float64
			if id > 0 && id == float64(uint(id)) {
				return uint(id), true
			}
		case string:
			if n, err := strconv.ParseUint(id, 10, 64); err == nil && n > 0 {
				return uint(n), true
			}
		}
	}
	return 0, false
}
