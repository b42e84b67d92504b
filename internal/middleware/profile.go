package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const profileIDKey = "profile_id"

// ErrNoProfileContext indicates the request carried no usable profile ID.
var ErrNoProfileContext = errors.New("missing profile context")

// ProfileContext requires an X-Profile-ID header on every request and makes
// it available to handlers. Callers are pre-authorized upstream; the header
// scopes which profile's documents the request operates on.
func ProfileContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Profile-ID")
		profileID, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": "MISSING_PROFILE", "message": "X-Profile-ID header is required"},
			})
			return
		}
		c.Set(profileIDKey, profileID)
		c.Next()
	}
}

// GetProfileID returns the request's profile ID set by ProfileContext.
func GetProfileID(c *gin.Context) (uuid.UUID, error) {
	v, ok := c.Get(profileIDKey)
	if !ok {
		return uuid.Nil, ErrNoProfileContext
	}
	profileID, ok := v.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrNoProfileContext
	}
	return profileID, nil
}
