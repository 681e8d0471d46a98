package handler

import (
	"errors"
	"net/http"

	"talentchat/backend/internal/chat"
	"talentchat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type sendRequest struct {
	Content string `json:"content"`
}

type interactingRequest struct {
	Interacting bool `json:"interacting"`
}

type transcriptResponse struct {
	State   string      `json:"state"`
	Channel string      `json:"channel,omitempty"`
	Error   string      `json:"error,omitempty"`
	Unread  int         `json:"unread"`
	Lines   []chat.Line `json:"lines"`
}

func (a *API) handleOpen(c *gin.Context) {
	ch, ok := channelParams(c)
	if !ok {
		return
	}
	controller := controllerFrom(c)
	if err := controller.Open(c.Request.Context(), ch); err != nil {
		status, code := chatErrorStatus(err)
		a.logger.Warn("open chat failed",
			zap.String("user_id", sessionFrom(c).UserID),
			zap.String("channel", ch.Key()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": code})
		return
	}
	c.JSON(http.StatusOK, a.transcript(c, controller))
}

func (a *API) handleClose(c *gin.Context) {
	controllerFrom(c).Close()
	c.Status(http.StatusNoContent)
}

func (a *API) handleSend(c *gin.Context) {
	sess := sessionFrom(c)
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	if !a.limiter.Allow(sess.UserID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "draft": req.Content})
		return
	}

	result, err := controllerFrom(c).Send(c.Request.Context(), req.Content)
	if err != nil {
		status, code := chatErrorStatus(err)
		c.JSON(status, gin.H{"error": code, "draft": result.Draft})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) handleTranscript(c *gin.Context) {
	c.JSON(http.StatusOK, a.transcript(c, controllerFrom(c)))
}

func (a *API) handleInteracting(c *gin.Context) {
	var req interactingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	controllerFrom(c).SetUserInteracting(req.Interacting)
	c.Status(http.StatusNoContent)
}

func (a *API) handleEndSession(c *gin.Context) {
	sess := sessionFrom(c)
	if err := a.registry.Detach(sess.UserID); err != nil && !errors.Is(err, chat.ErrUnknownSession) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "detach_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) transcript(c *gin.Context, controller *chat.Controller) transcriptResponse {
	sess := sessionFrom(c)
	ch := controller.Channel()
	messages := controller.Transcript()
	resp := transcriptResponse{
		State:  controller.State().String(),
		Unread: controller.Unread(),
	}
	if !ch.IsZero() {
		resp.Channel = ch.Key()
	}
	if err := controller.Err(); err != nil {
		_, resp.Error = chatErrorStatus(err)
	}
	resp.Lines = chat.Render(messages, sess.UserID, a.senderNames(c, ch, messages))
	return resp
}

func (a *API) senderNames(c *gin.Context, ch models.Channel, messages []models.Message) map[string]string {
	if a.names == nil || ch.IsZero() || len(messages) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, 2)
	ids := make([]string, 0, 2)
	for _, msg := range messages {
		if _, ok := seen[msg.SenderID]; ok {
			continue
		}
		seen[msg.SenderID] = struct{}{}
		ids = append(ids, msg.SenderID)
	}
	names, err := a.names.SenderNames(c.Request.Context(), ch, ids)
	if err != nil {
		a.logger.Warn("sender name lookup failed", zap.String("channel", ch.Key()), zap.Error(err))
		return nil
	}
	return names
}

// chatErrorStatus maps controller errors to an HTTP status and a stable code.
func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrBlankMessage):
		return http.StatusBadRequest, "blank_message"
	case errors.Is(err, chat.ErrNoOpenChannel):
		return http.StatusConflict, "no_open_channel"
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, chat.ErrStaleChannel):
		return http.StatusConflict, "channel_changed"
	case errors.Is(err, chat.ErrSubscriptionLost):
		return http.StatusServiceUnavailable, "subscription_lost"
	case errors.Is(err, chat.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
