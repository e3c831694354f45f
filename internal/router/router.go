package router

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/tradechat/internal/blob"
	"github.com/mbeoliero/tradechat/internal/config"
	"github.com/mbeoliero/tradechat/internal/gateway"
	"github.com/mbeoliero/tradechat/internal/handler"
	"github.com/mbeoliero/tradechat/internal/middleware"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, wsServer *gateway.WsServer, limiter *middleware.PartyLimiter) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]interface{}{
			"status":       "ok",
			"online_conns": wsServer.GetOnlineConnCount(),
		})
	})

	auth := middleware.JWTAuth(cfg)
	rateLimit := middleware.RateLimit(limiter)

	convGroup := h.Group("/conversations", auth)
	{
		convGroup.GET("", handlers.Conversation.ListConversations)
		convGroup.GET("/:id/messages", handlers.Conversation.GetMessages)
		convGroup.POST("/:id/read", handlers.Conversation.MarkRead)
		convGroup.POST("/:id/status", handlers.Conversation.SetStatus)
	}

	msgGroup := h.Group("/messages", auth)
	{
		msgGroup.POST("", rateLimit, handlers.Message.SendMessage)
		msgGroup.POST("/attachment", rateLimit, handlers.Message.SendWithAttachment)
	}

	// Local blob store serves its files directly; s3 and gcs hand out signed URLs
	if cfg.Blob.Driver == "local" {
		h.StaticFS(blob.LocalPathPrefix, &app.FS{Root: cfg.Blob.LocalDir, PathRewrite: app.NewPathSlashesStripper(1)})
	}

	h.POST("/attachments", auth, rateLimit, handlers.Message.RegisterAttachment)
	h.GET("/unread-count", auth, handlers.Conversation.GetUnreadCount)

	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))

	// Non-browser clients send no origin
	if origin == "" {
		return true
	}

	// An empty allow-list matches the CORS middleware and accepts any origin
	if len(allowedOrigins) == 0 {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}
