package handler

import (
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errInvalidAuthorization = errors.New("authorization header missing or invalid")

// authorizeRequest verifies the bearer token and attaches the user's
// controller. Browsers cannot set headers on a WebSocket handshake, so /ws
// also accepts the token as a query parameter.
func (a *API) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	sess, err := a.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			a.logger.Info("token validation failed", zap.Error(err))
		} else {
			a.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	controller, attached, err := a.registry.Attach(sess)
	if err != nil {
		a.logger.Error("failed to attach chat controller", zap.String("user_id", sess.UserID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session_unavailable"})
		return
	}
	c.Set(sessionContextKey, attached)
	c.Set(controllerContextKey, controller)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if c.FullPath() == "/ws" {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}
