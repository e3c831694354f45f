package handler

import (
	"context"
	"mime/multipart"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/tradechat/internal/middleware"
	"github.com/mbeoliero/tradechat/internal/service"
	"github.com/mbeoliero/tradechat/pkg/errcode"
	"github.com/mbeoliero/tradechat/pkg/response"
)

// FileField is the multipart field carrying uploaded files
const FileField = "file"

// MessageHandler handles message and attachment submission
type MessageHandler struct {
	msgService *service.MessageService
	attService *service.AttachmentService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(msgService *service.MessageService, attService *service.AttachmentService) *MessageHandler {
	return &MessageHandler{msgService: msgService, attService: attService}
}

// SendMessage handles send message request
func (h *MessageHandler) SendMessage(ctx context.Context, c *app.RequestContext) {
	partyId := middleware.GetPartyId(c)
	if partyId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.SendMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.msgService.Send(ctx, partyId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, msg)
}

// SendWithAttachment handles a multipart submission of text plus files
func (h *MessageHandler) SendWithAttachment(ctx context.Context, c *app.RequestContext) {
	partyId := middleware.GetPartyId(c)
	if partyId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.SendMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	files, err := formFiles(c)
	if err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidAttachment)
		return
	}

	msg, err := h.msgService.SendWithFiles(ctx, partyId, &req, files)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, msg)
}

// RegisterAttachment handles upload of a file to be referenced by a later send
func (h *MessageHandler) RegisterAttachment(ctx context.Context, c *app.RequestContext) {
	partyId := middleware.GetPartyId(c)
	if partyId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	fh, err := c.FormFile(FileField)
	if err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidAttachment)
		return
	}

	att, err := h.attService.Register(ctx, partyId, fh)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, att)
}

func formFiles(c *app.RequestContext) ([]*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	files := form.File[FileField]
	if len(files) == 0 {
		return nil, errcode.ErrInvalidAttachment
	}
	return files, nil
}
