package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/tradechat/internal/middleware"
	"github.com/mbeoliero/tradechat/internal/service"
	"github.com/mbeoliero/tradechat/pkg/errcode"
	"github.com/mbeoliero/tradechat/pkg/response"
)

// ConversationHandler handles conversation-related requests
type ConversationHandler struct {
	convService *service.ConversationService
	msgService  *service.MessageService
	readService *service.ReadService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(convService *service.ConversationService, msgService *service.MessageService, readService *service.ReadService) *ConversationHandler {
	return &ConversationHandler{convService: convService, msgService: msgService, readService: readService}
}

// ListConversations handles the inbox request
func (h *ConversationHandler) ListConversations(ctx context.Context, c *app.RequestContext) {
	partyId := middleware.GetPartyId(c)
	if partyId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	convs, err := h.convService.ListConversations(ctx, partyId, limit, offset)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, convs)
}

// GetMessages handles history and reconciliation poll requests
func (h *ConversationHandler) GetMessages(ctx context.Context, c *app.RequestContext) {
	partyId := middleware.GetPartyId(c)
	if partyId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId, ok := pathId(c)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	var since int64
	if s := c.Query("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
			return
		}
		since = v
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	page, err := h.msgService.MessagesSince(ctx, partyId, conversationId, since, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, page)
}

// MarkRead handles mark read request; an empty body marks everything read
func (h *ConversationHandler) MarkRead(ctx context.Context, c *app.RequestContext) {
	partyId := middleware.GetPartyId(c)
	if partyId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId, ok := pathId(c)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	var req service.MarkReadRequest
	if len(c.Request.Body()) > 0 {
		if err := c.BindAndValidate(&req); err != nil {
			response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
			return
		}
	}

	count, err := h.readService.MarkRead(ctx, partyId, conversationId, req.MessageIds)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"count": count,
	})
}

// SetStatusRequest represents conversation status change request
type SetStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles open/close request
func (h *ConversationHandler) SetStatus(ctx context.Context, c *app.RequestContext) {
	partyId := middleware.GetPartyId(c)
	if partyId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId, ok := pathId(c)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	var req SetStatusRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	info, err := h.convService.SetStatus(ctx, partyId, conversationId, req.Status)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, info)
}

// GetUnreadCount handles aggregate unread count request
func (h *ConversationHandler) GetUnreadCount(ctx context.Context, c *app.RequestContext) {
	partyId := middleware.GetPartyId(c)
	if partyId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	count, err := h.readService.UnreadCount(ctx, partyId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"unread_count": count,
	})
}

func pathId(c *app.RequestContext) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
