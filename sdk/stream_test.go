package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	convSilent  int64 = 7   // never acknowledged
	convRevoked int64 = 9   // revoked right after the ack
	convMissing int64 = 404 // not a party
)

// fakeGateway speaks the gateway protocol for a handful of conversations
type fakeGateway struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	tokens []string
	unsubs int
	conns  []*websocket.Conn
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.tokens = append(g.tokens, r.URL.Query().Get("token"))
	g.conns = append(g.conns, conn)
	g.mu.Unlock()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}

		switch req.ReqIdentifier {
		case WSSubscribe:
			var sub subscribeReq
			_ = json.Unmarshal(req.Data, &sub)
			switch sub.ConversationId {
			case convSilent:
				continue
			case convMissing:
				g.write(conn, &wsResponse{ReqIdentifier: req.ReqIdentifier, MsgIncr: req.MsgIncr, ErrCode: CodeConvNotFound, ErrMsg: "conversation not found"})
				continue
			}
			g.write(conn, &wsResponse{ReqIdentifier: req.ReqIdentifier, MsgIncr: req.MsgIncr, Data: req.Data})
			if sub.ConversationId == convRevoked {
				g.write(conn, &wsResponse{ReqIdentifier: WSSubscriptionRevoked, Data: req.Data})
				continue
			}
			g.push(conn, WSPushMsg, &Message{Id: 100, ConversationId: sub.ConversationId, Body: "pushed", CreatedAt: 10})
			g.push(conn, WSPushMsg, &Message{Id: 101, ConversationId: sub.ConversationId + 1000, Body: "other conversation"})
			g.push(conn, WSPushRead, &ReadReceipt{ConversationId: sub.ConversationId, ReaderId: "s___1", MessageIds: []int64{100}, Count: 1})
		case WSUnsubscribe:
			g.mu.Lock()
			g.unsubs++
			g.mu.Unlock()
			g.write(conn, &wsResponse{ReqIdentifier: req.ReqIdentifier, MsgIncr: req.MsgIncr})
		case WSSendMsg:
			var send SendMessageRequest
			_ = json.Unmarshal(req.Data, &send)
			data, _ := json.Marshal(&Message{Id: 5, ConversationId: send.ConversationId, Body: send.Body})
			g.write(conn, &wsResponse{ReqIdentifier: req.ReqIdentifier, MsgIncr: req.MsgIncr, Data: data})
		}
	}
}

func (g *fakeGateway) write(conn *websocket.Conn, resp *wsResponse) {
	data, _ := json.Marshal(resp)
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (g *fakeGateway) push(conn *websocket.Conn, id int32, v interface{}) {
	data, _ := json.Marshal(v)
	g.write(conn, &wsResponse{ReqIdentifier: id, Data: data})
}

func (g *fakeGateway) closeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		_ = c.Close()
	}
}

func (g *fakeGateway) unsubCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unsubs
}

func dial(t *testing.T, opts ...StreamOption) (*Stream, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{}
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	stream, err := DialStream(context.Background(), wsURL, "tok-1", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })
	return stream, gw
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestStreamSubscribeReceivesEvents(t *testing.T) {
	stream, gw := dial(t)

	sub, err := stream.Subscribe(context.Background(), 1)
	require.NoError(t, err)

	ev := nextEvent(t, sub)
	assert.Equal(t, EventMessage, ev.Kind)
	require.NotNil(t, ev.Message)
	assert.Equal(t, int64(100), ev.Message.Id)

	// the push for another conversation is filtered out
	ev = nextEvent(t, sub)
	assert.Equal(t, EventRead, ev.Kind)
	require.NotNil(t, ev.Read)
	assert.Equal(t, "s___1", ev.Read.ReaderId)

	gw.mu.Lock()
	assert.Equal(t, []string{"tok-1"}, gw.tokens)
	gw.mu.Unlock()
}

func TestStreamSubscribeErrors(t *testing.T) {
	stream, gw := dial(t, WithSubscribeTimeout(100*time.Millisecond))

	_, err := stream.Subscribe(context.Background(), convMissing)
	assert.True(t, errors.Is(err, ErrConvNotFound))

	_, err = stream.Subscribe(context.Background(), convSilent)
	assert.Equal(t, ErrSubscribeTimeout, err)

	// the stream stays usable after a failed subscribe
	sub, err := stream.Subscribe(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sub.ConversationId)

	// only the unacknowledged subscribe was released, ahead of the next one
	assert.Equal(t, 1, gw.unsubCount())
}

func TestStreamSubscribeReplacesPrevious(t *testing.T) {
	stream, _ := dial(t)

	first, err := stream.Subscribe(context.Background(), 1)
	require.NoError(t, err)
	second, err := stream.Subscribe(context.Background(), 2)
	require.NoError(t, err)

	assert.True(t, closed(first.Done()))
	select {
	case <-second.Done():
		t.Fatal("current subscription ended")
	default:
	}
}

func TestStreamUnsubscribeIsIdempotent(t *testing.T) {
	stream, gw := dial(t)

	sub, err := stream.Subscribe(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	assert.True(t, closed(sub.Done()))
	assert.Equal(t, 1, gw.unsubCount())
}

func TestStreamRevokedSubscriptionSignalsMissed(t *testing.T) {
	stream, _ := dial(t)

	sub, err := stream.Subscribe(context.Background(), convRevoked)
	require.NoError(t, err)

	select {
	case <-sub.Missed():
	case <-time.After(2 * time.Second):
		t.Fatal("no missed signal")
	}
	assert.True(t, closed(sub.Done()))
}

func TestStreamServerCloseEndsSubscription(t *testing.T) {
	stream, gw := dial(t)

	sub, err := stream.Subscribe(context.Background(), 1)
	require.NoError(t, err)

	gw.closeAll()
	assert.True(t, closed(stream.Done()))
	assert.True(t, closed(sub.Done()))
	assert.Error(t, stream.Err())

	_, err = stream.Subscribe(context.Background(), 1)
	assert.Error(t, err)
}

func TestStreamSend(t *testing.T) {
	stream, _ := dial(t)

	sent, err := stream.Send(context.Background(), &SendMessageRequest{ConversationId: 3, Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), sent.Id)
	assert.Equal(t, "hi", sent.Body)
}
