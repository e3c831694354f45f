package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/tradechat/internal/config"
	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/mbeoliero/tradechat/internal/middleware"
	"github.com/mbeoliero/tradechat/internal/service"
	"github.com/mbeoliero/tradechat/pkg/constant"
	"github.com/mbeoliero/tradechat/pkg/errcode"
)

// WsServer is the WebSocket server and the fan-out notifier. Events are
// queued by the services and delivered by push workers; with Redis they are
// relayed through a pub/sub channel so every instance reaches its own
// subscribers.
type WsServer struct {
	cfg            *config.Config
	rdb            *redis.Client
	partyMap       *PartyMap
	topics         *TopicMap
	registerChan   chan *Client
	unregisterChan chan *Client
	pushChan       chan *Event
	convService    *service.ConversationService
	msgService     *service.MessageService
	readService    *service.ReadService
	limiter        *middleware.PartyLimiter
	onlinePartyNum atomic.Int64
	onlineConnNum  atomic.Int64
	droppedNum     atomic.Int64
	maxConnNum     int64
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, rdb *redis.Client, convService *service.ConversationService, msgService *service.MessageService, readService *service.ReadService) *WsServer {
	return &WsServer{
		cfg:            cfg,
		rdb:            rdb,
		partyMap:       NewPartyMap(rdb, cfg.WebSocket.PresenceTTL),
		topics:         NewTopicMap(),
		registerChan:   make(chan *Client, 1000),
		unregisterChan: make(chan *Client, 1000),
		pushChan:       make(chan *Event, cfg.WebSocket.PushChannelSize),
		convService:    convService,
		msgService:     msgService,
		readService:    readService,
		maxConnNum:     cfg.WebSocket.MaxConnNum,
	}
}

// SetLimiter sets the per-party limiter applied to websocket sends
func (s *WsServer) SetLimiter(limiter *middleware.PartyLimiter) {
	s.limiter = limiter
}

// PartyMap returns the session registry, which also answers presence queries
func (s *WsServer) PartyMap() *PartyMap {
	return s.partyMap
}

// Run starts the WebSocket server
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)

	workerNum := s.cfg.WebSocket.PushWorkerNum
	if workerNum <= 0 {
		workerNum = 10
	}
	for i := 0; i < workerNum; i++ {
		go s.pushLoop(ctx)
	}
	log.Info("started %d push workers", workerNum)

	if s.rdb != nil {
		go s.relayLoop(ctx)
		go s.presenceLoop(ctx)
	}
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.registerChan:
			s.registerClient(ctx, client)
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		}
	}
}

// pushLoop handles async event delivery
func (s *WsServer) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.pushChan:
			s.dispatch(ctx, ev)
		}
	}
}

// dispatch routes an event through Redis when configured, otherwise straight
// to local subscribers
func (s *WsServer) dispatch(ctx context.Context, ev *Event) {
	if s.rdb == nil {
		s.deliverLocal(ctx, ev)
		return
	}

	data, err := Encode(ev)
	if err != nil {
		log.CtxError(ctx, "encode event failed: conversation_id=%d, error=%v", ev.ConversationId, err)
		return
	}
	channel := constant.RedisChannelTopic(constant.Topic(ev.ConversationId))
	if err := s.rdb.Publish(ctx, channel, data).Err(); err != nil {
		// Other instances miss this event and their clients catch up by polling.
		log.CtxWarn(ctx, "%v: relay publish failed, delivering locally: channel=%s, error=%v",
			errcode.ErrTransientDelivery, channel, err)
		s.deliverLocal(ctx, ev)
	}
}

// relayLoop receives events published by any instance and delivers them to
// this instance's subscribers
func (s *WsServer) relayLoop(ctx context.Context) {
	pattern := constant.RedisChannelTopicPattern()
	pubsub := s.rdb.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Warn("relay subscribe failed: pattern=%s, error=%v", pattern, err)
	}
	log.Info("relay subscribed: pattern=%s", pattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			convId, ok := constant.ParseTopic(msg.Channel)
			if !ok {
				log.Debug("relay ignored channel: %s", msg.Channel)
				continue
			}
			var ev Event
			if err := Decode([]byte(msg.Payload), &ev); err != nil || ev.ConversationId != convId {
				log.Warn("relay dropped malformed event: channel=%s, error=%v", msg.Channel, err)
				continue
			}
			s.deliverLocal(ctx, &ev)
		}
	}
}

// presenceLoop keeps the presence keys of local parties alive
func (s *WsServer) presenceLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.WebSocket.PresenceTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.partyMap.RefreshOnlineStatus(ctx)
		}
	}
}

// deliverLocal pushes an event to every local subscriber of its topic. A
// subscriber that cannot keep up loses its subscription and is told to poll.
func (s *WsServer) deliverLocal(ctx context.Context, ev *Event) {
	resp, err := ev.push()
	if err != nil {
		log.CtxWarn(ctx, "build push failed: kind=%s, error=%v", ev.Kind, err)
		return
	}

	for _, client := range s.topics.Subscribers(constant.Topic(ev.ConversationId)) {
		err := client.Push(resp)
		if err == nil {
			continue
		}
		log.CtxDebug(ctx, "push to client failed: party_id=%s, conn_id=%s, error=%v", client.PartyId, client.ConnId, err)
		if errors.Is(err, ErrWriteChannelFull) {
			s.revoke(ctx, client, ev.ConversationId)
		}
	}
}

// revoke drops a subscription the server can no longer serve
func (s *WsServer) revoke(ctx context.Context, client *Client, conversationId int64) {
	if !s.releaseSubscriptionOf(client, conversationId) {
		return
	}
	data, _ := Encode(&RevokedData{ConversationId: conversationId})
	if err := client.Push(&WSResponse{ReqIdentifier: WSSubscriptionRevoked, Data: data}); err != nil {
		// The session cannot even take the notice; closing it is the signal.
		log.CtxWarn(ctx, "closing slow session: party_id=%s, conn_id=%s", client.PartyId, client.ConnId)
		client.Close()
		return
	}
	log.CtxInfo(ctx, "subscription revoked: party_id=%s, conn_id=%s, conversation_id=%d", client.PartyId, client.ConnId, conversationId)
}

// PublishMessage queues a newly persisted message for fan-out. It never blocks.
func (s *WsServer) PublishMessage(msg *entity.MessageInfo) {
	s.enqueue(&Event{Kind: EventMessage, ConversationId: msg.ConversationId, Message: msg})
}

// PublishRead queues a read receipt for fan-out. It never blocks.
func (s *WsServer) PublishRead(receipt *entity.ReadReceipt) {
	s.enqueue(&Event{Kind: EventRead, ConversationId: receipt.ConversationId, Read: receipt})
}

func (s *WsServer) enqueue(ev *Event) {
	select {
	case s.pushChan <- ev:
	default:
		s.droppedNum.Add(1)
		log.Warn("%v: push channel full, event dropped: kind=%s, conversation_id=%d",
			errcode.ErrTransientDelivery, ev.Kind, ev.ConversationId)
	}
}

// subscribe moves the session's single subscription slot to conversationId,
// tearing down the previous subscription first
func (s *WsServer) subscribe(client *Client, conversationId int64) error {
	client.subMu.Lock()
	defer client.subMu.Unlock()

	if client.IsClosed() {
		return ErrConnClosed
	}
	if client.subscription == conversationId {
		return nil
	}
	if client.subscription != 0 {
		s.topics.Remove(constant.Topic(client.subscription), client)
	}
	s.topics.Add(constant.Topic(conversationId), client)
	client.subscription = conversationId
	return nil
}

// releaseSubscription frees the session's slot; calling it again is a no-op
func (s *WsServer) releaseSubscription(client *Client) int64 {
	client.subMu.Lock()
	defer client.subMu.Unlock()

	prev := client.subscription
	if prev != 0 {
		s.topics.Remove(constant.Topic(prev), client)
		client.subscription = 0
	}
	return prev
}

// releaseSubscriptionOf frees the slot only if it still holds conversationId
func (s *WsServer) releaseSubscriptionOf(client *Client, conversationId int64) bool {
	client.subMu.Lock()
	defer client.subMu.Unlock()

	if client.subscription != conversationId {
		return false
	}
	s.topics.Remove(constant.Topic(conversationId), client)
	client.subscription = 0
	return true
}

// registerClient registers a client
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	existing, exists := s.partyMap.GetAll(client.PartyId)
	if !exists {
		s.onlinePartyNum.Add(1)
	}

	s.partyMap.Register(ctx, client)
	s.onlineConnNum.Add(1)

	log.CtxInfo(ctx, "client registered: party_id=%s, conn_id=%s, existing_conns=%d, online_parties=%d, online_conns=%d",
		client.PartyId, client.ConnId, len(existing), s.onlinePartyNum.Load(), s.onlineConnNum.Load())
}

// unregisterClient unregisters a client
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	s.releaseSubscription(client)
	isOffline := s.partyMap.Unregister(ctx, client)
	s.onlineConnNum.Add(-1)

	if isOffline {
		s.onlinePartyNum.Add(-1)
	}

	log.CtxInfo(ctx, "client unregistered: party_id=%s, conn_id=%s, party_offline=%v, online_parties=%d, online_conns=%d",
		client.PartyId, client.ConnId, isOffline, s.onlinePartyNum.Load(), s.onlineConnNum.Load())
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- client:
	default:
		log.Warn("unregister channel full: party_id=%s", client.PartyId)
	}
}

// GetOnlinePartyCount returns online party count
func (s *WsServer) GetOnlinePartyCount() int64 {
	return s.onlinePartyNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// GetDroppedEventCount returns how many events were dropped on a full queue
func (s *WsServer) GetDroppedEventCount() int64 {
	return s.droppedNum.Load()
}

// ========== Message Handlers ==========

// HandleSubscribe handles subscribe request
func (s *WsServer) HandleSubscribe(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var subReq SubscribeReq
	if err := Decode(req.Data, &subReq); err != nil || subReq.ConversationId <= 0 {
		return nil, errcode.ErrInvalidParam
	}

	conv, err := s.convService.GetForParty(ctx, client.PartyId, subReq.ConversationId)
	if err != nil {
		return nil, err
	}
	if err := s.subscribe(client, conv.Id); err != nil {
		return nil, err
	}

	log.CtxDebug(ctx, "client subscribed: party_id=%s, conn_id=%s, conversation_id=%d", client.PartyId, client.ConnId, conv.Id)
	return Encode(&SubscribeResp{ConversationId: conv.Id, Topic: constant.Topic(conv.Id)})
}

// HandleUnsubscribe handles unsubscribe request; it succeeds when nothing is subscribed
func (s *WsServer) HandleUnsubscribe(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	prev := s.releaseSubscription(client)
	log.CtxDebug(ctx, "client unsubscribed: party_id=%s, conn_id=%s, conversation_id=%d", client.PartyId, client.ConnId, prev)
	return Encode(&SubscribeResp{ConversationId: prev})
}

// HandleSendMsg handles send message request
func (s *WsServer) HandleSendMsg(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var sendReq service.SendMessageRequest
	if err := Decode(req.Data, &sendReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}
	if !s.limiter.Allow(client.PartyId) {
		return nil, errcode.ErrTooManyRequests
	}

	msg, err := s.msgService.Send(ctx, client.PartyId, &sendReq)
	if err != nil {
		return nil, err
	}
	return Encode(msg)
}

// HandleMessagesSince handles reconciliation poll request
func (s *WsServer) HandleMessagesSince(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var pollReq MessagesSinceReq
	if err := Decode(req.Data, &pollReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	page, err := s.msgService.MessagesSince(ctx, client.PartyId, pollReq.ConversationId, pollReq.Since, pollReq.Limit)
	if err != nil {
		return nil, err
	}
	return Encode(page)
}

// HandleMarkRead handles mark read request
func (s *WsServer) HandleMarkRead(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var readReq MarkReadReq
	if err := Decode(req.Data, &readReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	count, err := s.readService.MarkRead(ctx, client.PartyId, readReq.ConversationId, readReq.MessageIds)
	if err != nil {
		return nil, err
	}
	return Encode(&MarkReadResp{Count: count})
}
