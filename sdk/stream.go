package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSubscribeTimeout = 5 * time.Second
	defaultEventBuffer      = 64
)

// Stream is a websocket connection to the gateway. It carries at most one
// conversation subscription at a time. Streams are explicit objects owned by
// their caller; nothing is shared between them.
type Stream struct {
	conn             *websocket.Conn
	subscribeTimeout time.Duration
	eventBuffer      int

	writeMu sync.Mutex
	seq     atomic.Int64

	mu      sync.Mutex
	pending map[string]chan *wsResponse
	sub     *Subscription

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// StreamOption configures a stream
type StreamOption func(*streamOptions)

type streamOptions struct {
	dialer           *websocket.Dialer
	header           http.Header
	subscribeTimeout time.Duration
	eventBuffer      int
}

// WithDialer sets a custom gorilla dialer
func WithDialer(dialer *websocket.Dialer) StreamOption {
	return func(o *streamOptions) {
		o.dialer = dialer
	}
}

// WithSubscribeTimeout bounds how long Subscribe waits for the acknowledgement
func WithSubscribeTimeout(d time.Duration) StreamOption {
	return func(o *streamOptions) {
		o.subscribeTimeout = d
	}
}

// WithEventBuffer sets the per-subscription event buffer size
func WithEventBuffer(n int) StreamOption {
	return func(o *streamOptions) {
		o.eventBuffer = n
	}
}

// DialStream connects to the gateway websocket endpoint, e.g. ws://host/ws
func DialStream(ctx context.Context, wsURL, token string, opts ...StreamOption) (*Stream, error) {
	o := &streamOptions{
		dialer:           websocket.DefaultDialer,
		header:           http.Header{},
		subscribeTimeout: defaultSubscribeTimeout,
		eventBuffer:      defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(o)
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := o.dialer.DialContext(ctx, u.String(), o.header)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	s := &Stream{
		conn:             conn,
		subscribeTimeout: o.subscribeTimeout,
		eventBuffer:      o.eventBuffer,
		pending:          make(map[string]chan *wsResponse),
		done:             make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Subscribe moves the stream's subscription to conversationId. The previous
// subscription, if any, ends first. When the server does not acknowledge
// within the subscribe timeout, ErrSubscribeTimeout is returned and the
// caller should rely on polling.
func (s *Stream) Subscribe(ctx context.Context, conversationId int64) (*Subscription, error) {
	sub := newSubscription(s, conversationId, s.eventBuffer)

	s.mu.Lock()
	prev := s.sub
	s.sub = sub
	s.mu.Unlock()
	if prev != nil {
		prev.end()
	}

	ctx, cancel := context.WithTimeout(ctx, s.subscribeTimeout)
	defer cancel()

	if _, err := s.call(ctx, WSSubscribe, &subscribeReq{ConversationId: conversationId}); err != nil {
		s.detach(sub)
		sub.end()
		if ctx.Err() != nil {
			// the server may still register the subscription; release it
			// before any later request so it cannot hold the slot
			_ = s.notify(WSUnsubscribe, struct{}{})
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrSubscribeTimeout
		}
		return nil, err
	}
	return sub, nil
}

// Send submits a message over the socket
func (s *Stream) Send(ctx context.Context, req *SendMessageRequest) (*Message, error) {
	data, err := s.call(ctx, WSSendMsg, req)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &msg, nil
}

// Done is closed when the connection ends
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the connection ended, nil while it is open
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.closeErr
	default:
		return nil
	}
}

// Close closes the connection and ends the current subscription
func (s *Stream) Close() error {
	s.shutdown(ErrStreamClosed)
	return nil
}

func (s *Stream) shutdown(reason error) {
	s.closeOnce.Do(func() {
		s.closeErr = reason
		close(s.done)
		_ = s.conn.Close()

		s.mu.Lock()
		sub := s.sub
		s.sub = nil
		s.mu.Unlock()
		if sub != nil {
			sub.end()
		}
	})
}

// detach clears the slot if it still holds sub and reports whether it did
func (s *Stream) detach(sub *Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != sub {
		return false
	}
	s.sub = nil
	return true
}

// call sends a request and waits for the reply with the same msg_incr
func (s *Stream) call(ctx context.Context, reqIdentifier int32, payload interface{}) (json.RawMessage, error) {
	incr, frame, err := s.encode(reqIdentifier, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan *wsResponse, 1)
	s.mu.Lock()
	s.pending[incr] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, incr)
		s.mu.Unlock()
	}()

	if err := s.write(frame); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.ErrCode != 0 {
			return nil, &Error{Code: resp.ErrCode, Msg: resp.ErrMsg}
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrStreamClosed
	}
}

// notify sends a request without waiting; its reply is dropped by readLoop
func (s *Stream) notify(reqIdentifier int32, payload interface{}) error {
	_, frame, err := s.encode(reqIdentifier, payload)
	if err != nil {
		return err
	}
	return s.write(frame)
}

func (s *Stream) encode(reqIdentifier int32, payload interface{}) (string, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}
	incr := strconv.FormatInt(s.seq.Add(1), 10)
	frame, err := json.Marshal(&wsRequest{ReqIdentifier: reqIdentifier, MsgIncr: incr, Data: data})
	if err != nil {
		return "", nil, err
	}
	return incr, frame, nil
}

func (s *Stream) write(frame []byte) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// readLoop routes replies to their callers and pushes to the subscription
func (s *Stream) readLoop() {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(err)
			return
		}

		var resp wsResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			continue
		}

		if resp.MsgIncr != "" {
			s.mu.Lock()
			ch, ok := s.pending[resp.MsgIncr]
			s.mu.Unlock()
			if ok {
				ch <- &resp
			}
			continue
		}
		s.handlePush(&resp)
	}
}

func (s *Stream) handlePush(resp *wsResponse) {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		return
	}

	switch resp.ReqIdentifier {
	case WSPushMsg:
		var msg Message
		if err := json.Unmarshal(resp.Data, &msg); err != nil || msg.ConversationId != sub.ConversationId {
			return
		}
		sub.deliver(Event{Kind: EventMessage, ConversationId: msg.ConversationId, Message: &msg})
	case WSPushRead:
		var receipt ReadReceipt
		if err := json.Unmarshal(resp.Data, &receipt); err != nil || receipt.ConversationId != sub.ConversationId {
			return
		}
		sub.deliver(Event{Kind: EventRead, ConversationId: receipt.ConversationId, Read: &receipt})
	case WSSubscriptionRevoked:
		var revoked subscribeReq
		if err := json.Unmarshal(resp.Data, &revoked); err != nil || revoked.ConversationId != sub.ConversationId {
			return
		}
		s.detach(sub)
		sub.signalMissed()
		sub.end()
	}
}

// Subscription receives the pushes of one conversation. Events() carries
// messages and read receipts, Missed() fires when a push may have been lost,
// and Done() closes when the subscription ends for any reason.
type Subscription struct {
	ConversationId int64

	stream  *Stream
	events  chan Event
	missed  chan struct{}
	done    chan struct{}
	endOnce sync.Once
	unsub   sync.Once
}

func newSubscription(stream *Stream, conversationId int64, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Subscription{
		ConversationId: conversationId,
		stream:         stream,
		events:         make(chan Event, buffer),
		missed:         make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
}

// Events returns the push channel. It is never closed; watch Done.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Missed returns a channel that fires when the consumer should poll
func (sub *Subscription) Missed() <-chan struct{} {
	return sub.missed
}

// Done is closed when the subscription ends
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Unsubscribe ends the subscription. Calling it again is a no-op.
func (sub *Subscription) Unsubscribe() error {
	var err error
	sub.unsub.Do(func() {
		active := sub.stream != nil && sub.stream.detach(sub)
		sub.end()
		if !active {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sub.stream.subscribeTimeout)
		defer cancel()
		if _, callErr := sub.stream.call(ctx, WSUnsubscribe, struct{}{}); callErr != nil && callErr != ErrStreamClosed {
			err = callErr
		}
	})
	return err
}

// deliver hands an event to the consumer. A full buffer drops the event and
// signals Missed so the consumer catches up by polling.
func (sub *Subscription) deliver(ev Event) {
	select {
	case <-sub.done:
		return
	default:
	}
	select {
	case sub.events <- ev:
	default:
		sub.signalMissed()
	}
}

func (sub *Subscription) signalMissed() {
	select {
	case sub.missed <- struct{}{}:
	default:
	}
}

func (sub *Subscription) end() {
	sub.endOnce.Do(func() {
		close(sub.done)
	})
}
