package gateway

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/tradechat/internal/middleware"
	"github.com/mbeoliero/tradechat/pkg/errcode"
	"github.com/mbeoliero/tradechat/pkg/response"
)

// HandleHertzConnection authenticates and upgrades a WebSocket connection.
// The token comes from the query string or a bearer Authorization header.
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		log.CtxWarn(ctx, "connection limit reached: online_conns=%d", s.onlineConnNum.Load())
		response.ErrorWithCode(ctx, c, errcode.ErrConnOverLimit)
		return
	}

	token := string(c.Query(QueryToken))
	if token == "" {
		token = strings.TrimPrefix(string(c.GetHeader(middleware.AuthorizationHeader)), middleware.BearerPrefix)
	}
	if token == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrTokenMissing)
		return
	}

	claims, err := middleware.ParseTokenWithFallback(token, s.cfg)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: error=%v", err)
		response.ErrorWithCode(ctx, c, errcode.ErrTokenInvalid)
		return
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		connId := uuid.New().String()
		wsConn := NewSocketConn(conn, &s.cfg.WebSocket)
		client := NewClient(wsConn, claims.PartyId, connId, s)

		s.registerChan <- client

		// Blocks for the lifetime of the session
		client.readLoop()
	})

	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}
}
