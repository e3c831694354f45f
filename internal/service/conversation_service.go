package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/tradechat/common"
	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/mbeoliero/tradechat/internal/repository"
	"github.com/mbeoliero/tradechat/pkg/constant"
	"github.com/mbeoliero/tradechat/pkg/errcode"
	"gorm.io/gorm"
)

// resolveAttempts bounds find-or-create: the first pass may lose the insert
// race, the second must find the winner's row.
const resolveAttempts = 2

// ConversationService handles conversation-related business logic
type ConversationService struct {
	convRepo  *repository.ConversationRepo
	msgRepo   *repository.MessageRepo
	partyRepo *repository.PartyRepo
	repos     *repository.Repositories
	hydrator  *Hydrator
	presence  PresenceChecker
}

// NewConversationService creates a new ConversationService
func NewConversationService(repos *repository.Repositories, hydrator *Hydrator) *ConversationService {
	return &ConversationService{
		convRepo:  repos.Conversation,
		msgRepo:   repos.Message,
		partyRepo: repos.Party,
		repos:     repos,
		hydrator:  hydrator,
	}
}

// SetPresence sets the presence source used by the conversation list
func (s *ConversationService) SetPresence(presence PresenceChecker) {
	s.presence = presence
}

// ResolveOrCreate returns the conversation between two parties, creating it on
// first contact. Safe under concurrent calls for the same pair in either order.
func (s *ConversationService) ResolveOrCreate(ctx context.Context, partyA, partyB string) (*entity.Conversation, error) {
	buyerId, sellerId, err := s.checkParties(ctx, partyA, partyB)
	if err != nil {
		return nil, err
	}

	pairKey := entity.GenPairKey(buyerId, sellerId)
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		conv, err := s.convRepo.GetByPairKey(ctx, pairKey)
		if err != nil {
			log.CtxError(ctx, "get conversation by pair failed: pair_key=%s, error=%v", pairKey, err)
			return nil, errcode.ErrInternalServer
		}
		if conv != nil {
			return conv, nil
		}

		now := entity.NowUnixMilli()
		conv = &entity.Conversation{
			PairKey:   pairKey,
			BuyerId:   buyerId,
			SellerId:  sellerId,
			Status:    constant.ConvStatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created, err := s.convRepo.CreateIfAbsent(ctx, conv)
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				log.CtxDebug(ctx, "conversation create raced: pair_key=%s, attempt=%d", pairKey, attempt)
				continue
			}
			log.CtxError(ctx, "create conversation failed: pair_key=%s, error=%v", pairKey, err)
			return nil, errcode.ErrInternalServer
		}
		if created {
			log.CtxInfo(ctx, "conversation created: id=%d, buyer_id=%s, seller_id=%s", conv.Id, buyerId, sellerId)
			return conv, nil
		}
		// Another writer inserted the pair first; the next pass reads its row.
	}

	log.CtxWarn(ctx, "conversation resolve gave up: pair_key=%s", pairKey)
	return nil, errcode.ErrConflictRetryable
}

// FindPair validates a prospective pair and returns its conversation, or nil
// with the ordered (buyer, seller) ids when the pair has never talked
func (s *ConversationService) FindPair(ctx context.Context, partyA, partyB string) (*entity.Conversation, string, string, error) {
	buyerId, sellerId, err := s.checkParties(ctx, partyA, partyB)
	if err != nil {
		return nil, "", "", err
	}
	conv, err := s.convRepo.GetByPairKey(ctx, entity.GenPairKey(buyerId, sellerId))
	if err != nil {
		log.CtxError(ctx, "get conversation by pair failed: buyer_id=%s, seller_id=%s, error=%v", buyerId, sellerId, err)
		return nil, "", "", errcode.ErrInternalServer
	}
	return conv, buyerId, sellerId, nil
}

// ResolveWithTx finds or creates the pair's conversation inside tx and
// returns it row-locked. A conversation created here commits or rolls back
// with the rest of tx. ErrConflictRetryable means a concurrent creator won
// and the whole transaction should be retried.
func (s *ConversationService) ResolveWithTx(ctx context.Context, tx *gorm.DB, buyerId, sellerId string) (*entity.Conversation, error) {
	pairKey := entity.GenPairKey(buyerId, sellerId)
	conv := &entity.Conversation{
		PairKey:  pairKey,
		BuyerId:  buyerId,
		SellerId: sellerId,
		Status:   constant.ConvStatusOpen,
	}
	created, err := s.convRepo.CreateIfAbsentWithTx(ctx, tx, conv)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errcode.ErrConflictRetryable
		}
		return nil, err
	}

	locked, err := s.convRepo.GetByPairKeyForUpdate(ctx, tx, pairKey)
	if err != nil {
		return nil, err
	}
	if locked == nil {
		return nil, errcode.ErrConflictRetryable
	}
	if created {
		log.CtxInfo(ctx, "conversation created: id=%d, buyer_id=%s, seller_id=%s", locked.Id, buyerId, sellerId)
	}
	return locked, nil
}

// checkParties validates a prospective pair and returns it as (buyer, seller)
func (s *ConversationService) checkParties(ctx context.Context, partyA, partyB string) (string, string, error) {
	if partyA == "" || partyB == "" || partyA == partyB {
		return "", "", errcode.ErrInvalidParties
	}
	roleA, roleB := common.RoleOf(partyA), common.RoleOf(partyB)
	if !roleA.Valid() || !roleB.Valid() || roleA == roleB {
		return "", "", errcode.ErrInvalidParties
	}

	parties, err := s.partyRepo.GetByIds(ctx, []string{partyA, partyB})
	if err != nil {
		log.CtxError(ctx, "get parties failed: %v", err)
		return "", "", errcode.ErrInternalServer
	}
	if len(parties) != 2 {
		return "", "", errcode.ErrInvalidParties
	}

	if roleA == common.RoleBuyer {
		return partyA, partyB, nil
	}
	return partyB, partyA, nil
}

// Get returns a conversation by id, ErrConvNotFound when absent
func (s *ConversationService) Get(ctx context.Context, conversationId int64) (*entity.Conversation, error) {
	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: id=%d, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	return conv, nil
}

// GetForParty returns a conversation the caller takes part in. A conversation
// the caller is not a party to is reported as not found so its existence does
// not leak.
func (s *ConversationService) GetForParty(ctx context.Context, partyId string, conversationId int64) (*entity.Conversation, error) {
	conv, err := s.Get(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if !conv.HasParty(partyId) {
		log.CtxDebug(ctx, "conversation access denied: id=%d, party_id=%s", conversationId, partyId)
		return nil, errcode.ErrConvNotFound
	}
	return conv, nil
}

// SetStatus opens or closes a conversation on behalf of one of its parties
func (s *ConversationService) SetStatus(ctx context.Context, partyId string, conversationId int64, status string) (*entity.ConversationInfo, error) {
	if status != constant.ConvStatusOpen && status != constant.ConvStatusClosed {
		return nil, errcode.ErrInvalidParam
	}
	conv, err := s.GetForParty(ctx, partyId, conversationId)
	if err != nil {
		return nil, err
	}

	if conv.Status != status {
		if err := s.convRepo.Update(ctx, conv.Id, map[string]interface{}{"status": status}); err != nil {
			log.CtxError(ctx, "update conversation status failed: id=%d, error=%v", conv.Id, err)
			return nil, errcode.ErrInternalServer
		}
		log.CtxInfo(ctx, "conversation status changed: id=%d, party_id=%s, status=%s", conv.Id, partyId, status)
		conv.Status = status
	}

	infos, err := s.buildInfos(ctx, partyId, []*entity.Conversation{conv})
	if err != nil {
		return nil, err
	}
	return infos[0], nil
}

// ListConversations lists the caller's conversations, most recently active first
func (s *ConversationService) ListConversations(ctx context.Context, partyId string, limit, offset int) ([]*entity.ConversationInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	convs, err := s.convRepo.ListByParty(ctx, partyId, limit, offset)
	if err != nil {
		log.CtxError(ctx, "list conversations failed: party_id=%s, error=%v", partyId, err)
		return nil, errcode.ErrInternalServer
	}
	return s.buildInfos(ctx, partyId, convs)
}

// buildInfos decorates conversations with counterparty, presence, unread
// counts and the latest message, one batched query per concern
func (s *ConversationService) buildInfos(ctx context.Context, partyId string, convs []*entity.Conversation) ([]*entity.ConversationInfo, error) {
	result := make([]*entity.ConversationInfo, 0, len(convs))
	if len(convs) == 0 {
		return result, nil
	}

	convIds := make([]int64, 0, len(convs))
	peerIds := make([]string, 0, len(convs))
	for _, c := range convs {
		convIds = append(convIds, c.Id)
		peerIds = append(peerIds, c.Counterparty(partyId))
	}

	peers, err := s.partyRepo.GetByIds(ctx, peerIds)
	if err != nil {
		log.CtxError(ctx, "get counterparties failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	unread, err := s.msgRepo.CountUnreadByConversations(ctx, partyId, convIds)
	if err != nil {
		log.CtxError(ctx, "count unread failed: party_id=%s, error=%v", partyId, err)
		return nil, errcode.ErrInternalServer
	}
	latest, err := s.msgRepo.LatestByConversations(ctx, convIds)
	if err != nil {
		log.CtxError(ctx, "get latest messages failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	var online map[string]bool
	if s.presence != nil {
		online = s.presence.OnlineParties(ctx, peerIds)
	}

	for _, c := range convs {
		info := c.ToConversationInfo()
		peerId := c.Counterparty(partyId)
		if p, ok := peers[peerId]; ok {
			info.Counterparty = p.ToPartyInfo()
		} else {
			info.Counterparty = &entity.PartyInfo{Id: peerId, Role: string(common.RoleOf(peerId))}
		}
		info.Counterparty.Online = online[peerId]
		info.UnreadCount = unread[c.Id]
		if m, ok := latest[c.Id]; ok && s.hydrator != nil {
			info.LastMessage = s.hydrator.Message(ctx, m)
		}
		result = append(result, info)
	}
	return result, nil
}
