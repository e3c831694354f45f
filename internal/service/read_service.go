package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/mbeoliero/tradechat/internal/repository"
	"github.com/mbeoliero/tradechat/pkg/errcode"
)

// ReadService tracks per-recipient read state. Unread counts are always
// queried from the message rows, never cached.
type ReadService struct {
	msgRepo     *repository.MessageRepo
	convService *ConversationService
	notifier    Notifier
}

// NewReadService creates a new ReadService
func NewReadService(repos *repository.Repositories, convService *ConversationService) *ReadService {
	return &ReadService{
		msgRepo:     repos.Message,
		convService: convService,
	}
}

// SetNotifier sets the notifier used for read receipts
func (s *ReadService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// MarkReadRequest represents mark read request. A missing MessageIds marks
// every unread message addressed to the caller.
type MarkReadRequest struct {
	MessageIds []int64 `json:"message_ids,omitempty"`
}

// MarkRead flips the caller's unread messages in a conversation and returns
// how many changed. Ids that are not unread messages addressed to the caller
// in this conversation are ignored. The published receipt lists exactly the
// flipped ids, so a message that arrives after the update stays unread.
func (s *ReadService) MarkRead(ctx context.Context, recipientId string, conversationId int64, messageIds []int64) (int64, error) {
	conv, err := s.convService.GetForParty(ctx, recipientId, conversationId)
	if err != nil {
		return 0, err
	}
	if messageIds != nil && len(messageIds) == 0 {
		return 0, nil
	}

	flipped, err := s.msgRepo.MarkRead(ctx, conv.Id, recipientId, messageIds)
	if err != nil {
		log.CtxError(ctx, "mark read failed: conversation_id=%d, recipient_id=%s, error=%v", conv.Id, recipientId, err)
		return 0, errcode.ErrInternalServer
	}

	count := int64(len(flipped))
	if count > 0 && s.notifier != nil {
		s.notifier.PublishRead(&entity.ReadReceipt{
			ConversationId: conv.Id,
			ReaderId:       recipientId,
			MessageIds:     flipped,
			Count:          count,
			ReadAt:         entity.NowUnixMilli(),
		})
	}

	log.CtxDebug(ctx, "messages marked read: conversation_id=%d, recipient_id=%s, count=%d", conv.Id, recipientId, count)
	return count, nil
}

// UnreadCount returns the caller's unread messages across all conversations
func (s *ReadService) UnreadCount(ctx context.Context, recipientId string) (int64, error) {
	count, err := s.msgRepo.CountUnread(ctx, recipientId)
	if err != nil {
		log.CtxError(ctx, "count unread failed: recipient_id=%s, error=%v", recipientId, err)
		return 0, errcode.ErrInternalServer
	}
	return count, nil
}
