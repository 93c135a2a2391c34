package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the caller identity resolved by the upstream auth
// gateway. This service trusts the header; authentication itself happens
// before traffic reaches us.
const UserIDHeader = "X-User-ID"

// UserContext extracts the user id from the gateway header and stores it
// in the request context. Requests without it are rejected.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing " + UserIDHeader + " header"})
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}
