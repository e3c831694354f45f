package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/tradechat/common"
	"github.com/mbeoliero/tradechat/internal/config"
	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/mbeoliero/tradechat/internal/repository"
	"github.com/mbeoliero/tradechat/pkg/constant"
	"github.com/mbeoliero/tradechat/pkg/errcode"
	"gorm.io/gorm"
)

// MessageService handles message submission and history
type MessageService struct {
	msgRepo     *repository.MessageRepo
	convRepo    *repository.ConversationRepo
	attRepo     *repository.AttachmentRepo
	repos       *repository.Repositories
	convService *ConversationService
	attService  *AttachmentService
	hydrator    *Hydrator
	cfg         *config.MessageConfig
	notifier    Notifier
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories, convService *ConversationService, attService *AttachmentService, hydrator *Hydrator, cfg *config.MessageConfig) *MessageService {
	return &MessageService{
		msgRepo:     repos.Message,
		convRepo:    repos.Conversation,
		attRepo:     repos.Attachment,
		repos:       repos,
		convService: convService,
		attService:  attService,
		hydrator:    hydrator,
		cfg:         cfg,
	}
}

// SetNotifier sets the fan-out notifier
func (s *MessageService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// SendMessageRequest represents send message request. Either ConversationId
// or RecipientId must be set; the latter resolves or creates the conversation.
type SendMessageRequest struct {
	ConversationId   int64   `json:"conversation_id,omitempty" form:"conversation_id"`
	RecipientId      string  `json:"recipient_id,omitempty" form:"recipient_id"`
	RecipientType    string  `json:"recipient_type,omitempty" form:"recipient_type"`
	OrderRef         *string `json:"order_ref,omitempty" form:"order_ref"`
	Body             string  `json:"body" form:"body"`
	Kind             string  `json:"kind,omitempty" form:"kind"`
	AttachmentIds    []int64 `json:"attachment_ids,omitempty" form:"attachment_ids"`
	RelatedProductId *string `json:"related_product_id,omitempty" form:"related_product_id"`
}

// target is where a submission goes: an existing conversation, or a
// validated buyer-seller pair whose conversation is created together with
// the message
type target struct {
	conv     *entity.Conversation
	buyerId  string
	sellerId string
}

// Send submits a message whose attachments, if any, were registered beforehand
func (s *MessageService) Send(ctx context.Context, senderId string, req *SendMessageRequest) (*entity.MessageInfo, error) {
	if err := s.validate(req, len(req.AttachmentIds)); err != nil {
		return nil, err
	}
	if err := s.checkPending(ctx, senderId, req.AttachmentIds); err != nil {
		return nil, err
	}
	tgt, err := s.resolveTarget(ctx, senderId, req)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, tgt, senderId, req, nil)
}

// SendWithFiles submits a message together with freshly uploaded files. The
// files are stored before the transaction and removed again if it fails.
func (s *MessageService) SendWithFiles(ctx context.Context, senderId string, req *SendMessageRequest, files []*multipart.FileHeader) (*entity.MessageInfo, error) {
	if err := s.validate(req, len(req.AttachmentIds)+len(files)); err != nil {
		return nil, err
	}
	for _, fh := range files {
		if _, err := s.attService.Validate(fh); err != nil {
			return nil, err
		}
	}
	if err := s.checkPending(ctx, senderId, req.AttachmentIds); err != nil {
		return nil, err
	}
	tgt, err := s.resolveTarget(ctx, senderId, req)
	if err != nil {
		return nil, err
	}
	if tgt.conv != nil && tgt.conv.Status == constant.ConvStatusClosed {
		return nil, errcode.ErrConversationClosed
	}

	uploads, err := s.attService.StoreAll(ctx, senderId, files)
	if err != nil {
		return nil, err
	}
	info, err := s.submit(ctx, tgt, senderId, req, uploads)
	if err != nil {
		s.attService.Discard(ctx, uploads)
		return nil, err
	}
	return info, nil
}

// validate checks the request content before anything is resolved or stored,
// so a rejected message never creates a conversation
func (s *MessageService) validate(req *SendMessageRequest, attachmentCount int) error {
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" && attachmentCount == 0 {
		return errcode.ErrEmptyMessage
	}
	if utf8.RuneCountInString(req.Body) > s.cfg.MaxBodyLength {
		return errcode.ErrPayloadTooLarge.Wrap(fmt.Errorf("body exceeds %d characters", s.cfg.MaxBodyLength))
	}
	if attachmentCount > s.attService.MaxPerMessage() {
		return errcode.ErrPayloadTooLarge.Wrap(fmt.Errorf("%d attachments, limit %d", attachmentCount, s.attService.MaxPerMessage()))
	}
	if req.Kind != "" && !constant.ValidKind(req.Kind) {
		return errcode.ErrInvalidParam.Wrap(fmt.Errorf("unknown kind %q", req.Kind))
	}
	return nil
}

// checkPending rejects attachment ids that are repeated, foreign or already
// claimed before any file is stored. The claim inside the transaction stays
// authoritative.
func (s *MessageService) checkPending(ctx context.Context, senderId string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return errcode.ErrInvalidAttachment
		}
		seen[id] = struct{}{}
	}

	n, err := s.attRepo.CountPendingByIds(ctx, ids, senderId)
	if err != nil {
		log.CtxError(ctx, "count pending attachments failed: sender_id=%s, error=%v", senderId, err)
		return errcode.ErrInternalServer
	}
	if n != int64(len(ids)) {
		return errcode.ErrInvalidAttachment
	}
	return nil
}

// resolveTarget finds where a submission goes without writing anything
func (s *MessageService) resolveTarget(ctx context.Context, senderId string, req *SendMessageRequest) (*target, error) {
	switch {
	case req.ConversationId > 0:
		conv, err := s.convService.Get(ctx, req.ConversationId)
		if err != nil {
			return nil, err
		}
		if !conv.HasParty(senderId) {
			log.CtxWarn(ctx, "send to foreign conversation: id=%d, sender_id=%s", conv.Id, senderId)
			return nil, errcode.ErrUnauthorized
		}
		return &target{conv: conv}, nil
	case req.RecipientId != "":
		if req.RecipientType != "" && string(common.RoleOf(req.RecipientId)) != req.RecipientType {
			return nil, errcode.ErrInvalidParties
		}
		conv, buyerId, sellerId, err := s.convService.FindPair(ctx, senderId, req.RecipientId)
		if err != nil {
			return nil, err
		}
		return &target{conv: conv, buyerId: buyerId, sellerId: sellerId}, nil
	default:
		return nil, errcode.ErrInvalidParam
	}
}

// submit appends the message under the conversation row lock. The lock
// serializes writers so created_at is strictly increasing per conversation.
// A first-contact conversation is created in the same transaction, so a
// failed submission leaves no conversation behind.
func (s *MessageService) submit(ctx context.Context, tgt *target, senderId string, req *SendMessageRequest, uploads []*entity.Attachment) (*entity.MessageInfo, error) {
	kind := req.Kind
	if kind == "" {
		kind = inferKind(uploads, len(req.AttachmentIds))
	}

	var (
		msg *entity.Message
		err error
	)
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		msg, err = s.appendMessage(ctx, tgt, senderId, req, kind, uploads)
		if err == nil || tgt.conv != nil || !isRetryable(err) {
			break
		}
		log.CtxDebug(ctx, "first contact raced: buyer_id=%s, seller_id=%s, attempt=%d", tgt.buyerId, tgt.sellerId, attempt)
	}
	if err != nil {
		var e *errcode.Error
		if errors.As(err, &e) {
			return nil, e
		}
		log.CtxError(ctx, "send message failed: sender_id=%s, error=%v", senderId, err)
		return nil, errcode.ErrSendFailed
	}

	info := s.hydrator.Message(ctx, msg)
	if s.notifier != nil {
		s.notifier.PublishMessage(info)
	}

	log.CtxInfo(ctx, "message sent: id=%d, conversation_id=%d, sender_id=%s, attachments=%d",
		msg.Id, msg.ConversationId, senderId, len(msg.Attachments))
	return info, nil
}

func (s *MessageService) appendMessage(ctx context.Context, tgt *target, senderId string, req *SendMessageRequest, kind string, uploads []*entity.Attachment) (*entity.Message, error) {
	// ids assigned by a rolled back attempt are not real rows
	for _, a := range uploads {
		a.Id = 0
	}

	var msg *entity.Message
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		var (
			locked *entity.Conversation
			err    error
		)
		if tgt.conv != nil {
			locked, err = s.convRepo.GetByIdForUpdate(ctx, tx, tgt.conv.Id)
		} else {
			locked, err = s.convService.ResolveWithTx(ctx, tx, tgt.buyerId, tgt.sellerId)
		}
		if err != nil {
			return err
		}
		if locked == nil {
			return errcode.ErrConvNotFound
		}
		if locked.Status == constant.ConvStatusClosed {
			return errcode.ErrConversationClosed
		}

		createdAt := entity.NowUnixMilli()
		if createdAt <= locked.LastMessageAt {
			createdAt = locked.LastMessageAt + 1
		}

		msg = &entity.Message{
			ConversationId:   locked.Id,
			SenderId:         senderId,
			ReceiverId:       locked.Counterparty(senderId),
			Body:             req.Body,
			Kind:             kind,
			RelatedProductId: req.RelatedProductId,
			CreatedAt:        createdAt,
		}
		if err := s.msgRepo.Create(ctx, tx, msg); err != nil {
			return err
		}

		for i, a := range uploads {
			a.MessageId = msg.Id
			a.Position = i
		}
		if err := s.attRepo.CreateBatchWithTx(ctx, tx, uploads); err != nil {
			return err
		}
		if err := s.attRepo.ClaimWithTx(ctx, tx, req.AttachmentIds, senderId, msg.Id, len(uploads)); err != nil {
			if errors.Is(err, repository.ErrAttachmentUnavailable) {
				return errcode.ErrInvalidAttachment
			}
			return err
		}
		if len(req.AttachmentIds) > 0 {
			if msg.Attachments, err = s.attRepo.ListByMessageWithTx(ctx, tx, msg.Id); err != nil {
				return err
			}
		} else {
			msg.Attachments = uploads
		}

		updates := map[string]interface{}{"last_message_at": createdAt}
		if req.OrderRef != nil && *req.OrderRef != "" && locked.OrderRef == nil {
			updates["order_ref"] = *req.OrderRef
		}
		return s.convRepo.UpdateWithTx(ctx, tx, locked.Id, updates)
	})
	return msg, err
}

// isRetryable reports whether a first-contact transaction lost the creation race
func isRetryable(err error) bool {
	return errors.Is(err, errcode.ErrConflictRetryable) || errors.Is(err, gorm.ErrDuplicatedKey)
}

// inferKind picks a kind for a message submitted without one
func inferKind(uploads []*entity.Attachment, pending int) string {
	if len(uploads) == 0 && pending == 0 {
		return constant.KindText
	}
	if pending > 0 {
		return constant.KindFile
	}
	for _, a := range uploads {
		if !strings.HasPrefix(a.ContentType, "image/") {
			return constant.KindFile
		}
	}
	return constant.KindImage
}

// MessagesSince returns one page of a conversation's messages created after
// since, in (created_at, id) order. since 0 starts from the beginning.
func (s *MessageService) MessagesSince(ctx context.Context, partyId string, conversationId, since int64, limit int) (*entity.MessagePage, error) {
	conv, err := s.convService.GetForParty(ctx, partyId, conversationId)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if since < 0 {
		since = 0
	}

	msgs, err := s.msgRepo.ListSince(ctx, conv.Id, since, limit+1)
	if err != nil {
		log.CtxError(ctx, "list messages failed: conversation_id=%d, since=%d, error=%v", conv.Id, since, err)
		return nil, errcode.ErrPullFailed
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	watermark := since
	if len(msgs) > 0 {
		watermark = msgs[len(msgs)-1].CreatedAt
	}

	return &entity.MessagePage{
		Messages:  s.hydrator.Messages(ctx, msgs),
		HasMore:   hasMore,
		Watermark: watermark,
	}, nil
}
