package middleware

import (
	"net/http"
	"strings"

	"chatly-server/internal/auth"
	"chatly-server/internal/userstore"
	"github.com/gin-gonic/gin"
)

const userIDContextKey = "userID"

func UserIDFromContext(c *gin.Context) (string, bool) {
	userID, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	value, ok := userID.(string)
	return value, ok && value != ""
}

// RequireAuth verifies the bearer token and, when a user store is supplied,
// additionally requires the token to be the account's current one. Logging in
// elsewhere replaces the current token and retires every older one.
func RequireAuth(cfg auth.TokenConfig, users *userstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authentication token"})
			c.Abort()
			return
		}

		claims, err := auth.VerifyToken(parts[1], cfg)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authentication token"})
			c.Abort()
			return
		}

		if users != nil {
			user, err := users.GetUserByID(claims.UserID)
			if err != nil || user.CurrentToken != parts[1] {
				c.JSON(http.StatusUnauthorized, gin.H{"message": "Session expired, please log in again"})
				c.Abort()
				return
			}
		}

		c.Set(userIDContextKey, claims.UserID)
		c.Next()
	}
}
