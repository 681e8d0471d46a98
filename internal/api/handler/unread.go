package handler

import (
	"net/http"

	"talentchat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type markReadRequest struct {
	IDs []string `json:"ids"`
}

func (a *API) handleChannelUnread(c *gin.Context) {
	ch, ok := channelParams(c)
	if !ok {
		return
	}
	sess := sessionFrom(c)
	allowed, err := a.registry.Participant(c.Request.Context(), sess, ch)
	if err != nil {
		a.logger.Warn("participant lookup failed", zap.String("channel", ch.Key()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable", "count": 0})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	count, err := a.unread.UnreadCountForChannel(c.Request.Context(), ch, sess.UserID, sess.Viewed)
	if err != nil {
		a.logger.Warn("unread count failed", zap.String("channel", ch.Key()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable", "count": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": ch.Key(), "count": count})
}

// handleTotalUnread degrades to zero on failure so badges never block the UI.
func (a *API) handleTotalUnread(c *gin.Context) {
	kind, err := models.ParseChannelKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_channel_kind"})
		return
	}
	sess := sessionFrom(c)
	total, err := a.unread.TotalUnreadChannels(c.Request.Context(), sess.UserID, kind, sess.Viewed)
	if err != nil {
		a.logger.Warn("total unread failed", zap.String("kind", string(kind)), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"kind": kind, "total": 0, "degraded": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "total": total})
}

// handleMarkAllRead adds every listed channel of one kind to the session's
// viewed set.
func (a *API) handleMarkAllRead(c *gin.Context) {
	kind, err := models.ParseChannelKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_channel_kind"})
		return
	}
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	channels := make([]models.Channel, 0, len(req.IDs))
	for _, id := range req.IDs {
		ch, err := models.NewChannel(kind, id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_channel"})
			return
		}
		channels = append(channels, ch)
	}
	sessionFrom(c).Viewed.AddAll(channels)
	c.Status(http.StatusNoContent)
}
