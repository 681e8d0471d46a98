// Package handler exposes the chat controllers over HTTP and WebSocket.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"talentchat/backend/internal/chat"
	"talentchat/backend/internal/metrics"
	"talentchat/backend/internal/models"
	"talentchat/backend/internal/session"
	"talentchat/backend/internal/storage"
	"talentchat/backend/internal/unread"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionContextKey    = "talentchat_session"
	controllerContextKey = "talentchat_controller"
)

var (
	errMissingTokens   = errors.New("token verifier dependency required")
	errMissingRegistry = errors.New("controller registry dependency required")
	errMissingUnread   = errors.New("unread counter dependency required")
)

// TokenVerifier turns a bearer token into a session.
type TokenVerifier interface {
	Verify(raw string) (*session.Context, error)
}

// UnreadCounter answers the unread endpoints.
type UnreadCounter interface {
	UnreadCountForChannel(ctx context.Context, ch models.Channel, userID string, viewed *unread.ViewedSet) (int, error)
	TotalUnreadChannels(ctx context.Context, userID string, kind models.ChannelKind, viewed *unread.ViewedSet) (int, error)
}

// Dependencies wires the API.
type Dependencies struct {
	Tokens   TokenVerifier
	Registry *chat.Registry
	Unread   UnreadCounter
	// Names is optional; without it transcripts fall back to id prefixes.
	Names          storage.NameDirectory
	SendRate       float64
	SendBurst      int
	AllowedOrigins []string
	Logger         *zap.Logger
}

// API is the HTTP surface. Close releases background resources.
type API struct {
	router   *gin.Engine
	tokens   TokenVerifier
	registry *chat.Registry
	unread   UnreadCounter
	names    storage.NameDirectory
	limiter  *limiterPool
	logger   *zap.Logger
}

// NewAPI validates deps and builds the router.
func NewAPI(deps Dependencies) (*API, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokens
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Unread == nil {
		return nil, errMissingUnread
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rate, burst := deps.SendRate, deps.SendBurst
	if rate <= 0 {
		rate = 2
	}
	if burst <= 0 {
		burst = 5
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	api := &API{
		tokens:   deps.Tokens,
		registry: deps.Registry,
		unread:   deps.Unread,
		names:    deps.Names,
		limiter:  newLimiterPool(rate, burst),
		logger:   logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	protected := router.Group("/")
	protected.Use(api.authorizeRequest)
	protected.POST("/chats/:kind/:id/open", api.handleOpen)
	protected.POST("/chats/close", api.handleClose)
	protected.POST("/chats/send", api.handleSend)
	protected.GET("/chats/transcript", api.handleTranscript)
	protected.POST("/chats/interacting", api.handleInteracting)
	protected.GET("/unread/:kind", api.handleTotalUnread)
	protected.GET("/unread/:kind/:id", api.handleChannelUnread)
	protected.POST("/unread/:kind/read", api.handleMarkAllRead)
	protected.DELETE("/session", api.handleEndSession)
	protected.GET("/ws", api.serveWebSocket)

	api.router = router
	return api, nil
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Close stops the rate limiter's cleanup loop.
func (a *API) Close() {
	a.limiter.Shutdown()
}

func sessionFrom(c *gin.Context) *session.Context {
	sess, _ := c.MustGet(sessionContextKey).(*session.Context)
	return sess
}

func controllerFrom(c *gin.Context) *chat.Controller {
	controller, _ := c.MustGet(controllerContextKey).(*chat.Controller)
	return controller
}

// channelParams parses :kind and :id into a validated channel.
func channelParams(c *gin.Context) (models.Channel, bool) {
	kind, err := models.ParseChannelKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_channel_kind"})
		return models.Channel{}, false
	}
	ch, err := models.NewChannel(kind, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_channel"})
		return models.Channel{}, false
	}
	return ch, true
}
