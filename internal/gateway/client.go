package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/tradechat/pkg/errcode"
)

// Client represents a connected WebSocket session. A session holds at most
// one conversation subscription at a time.
type Client struct {
	mu        sync.Mutex
	conn      ClientConn
	PartyId   string
	ConnId    string
	server    *WsServer
	closed    atomic.Bool
	closedErr error
	ctx       context.Context
	cancel    context.CancelFunc

	subMu        sync.Mutex
	subscription int64 // conversation id, 0 when none
}

// NewClient creates a new client
func NewClient(conn ClientConn, partyId, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:    conn,
		PartyId: partyId,
		ConnId:  connId,
		server:  server,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the client message handling
func (c *Client) Start() {
	go c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrSessionPanic
			log.CtxError(c.ctx, "client read loop panic: party_id=%s, error=%v", c.PartyId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: party_id=%s, error=%v", c.PartyId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: party_id=%s, error=%v", c.PartyId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming message. Only a failure to write
// the reply ends the session; request errors are reported to the client.
func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return c.reply(&req, ErrInvalidProtocol, nil)
	}

	log.CtxDebug(c.ctx, "received message: req_identifier=%d, party_id=%s", req.ReqIdentifier, c.PartyId)

	var resp []byte
	var err error

	switch req.ReqIdentifier {
	case WSSubscribe:
		resp, err = c.server.HandleSubscribe(c.ctx, c, &req)
	case WSUnsubscribe:
		resp, err = c.server.HandleUnsubscribe(c.ctx, c, &req)
	case WSSendMsg:
		resp, err = c.server.HandleSendMsg(c.ctx, c, &req)
	case WSMessagesSince:
		resp, err = c.server.HandleMessagesSince(c.ctx, c, &req)
	case WSMarkRead:
		resp, err = c.server.HandleMarkRead(c.ctx, c, &req)
	default:
		err = ErrInvalidProtocol
	}

	return c.reply(&req, err, resp)
}

// reply sends a response to the client
func (c *Client) reply(req *WSRequest, err error, data []byte) error {
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
		Data:          data,
	}

	if err != nil {
		resp.Data = nil
		var e *errcode.Error
		switch {
		case errors.As(err, &e):
			resp.ErrCode = e.Code
			resp.ErrMsg = e.Msg
		case errors.Is(err, ErrInvalidProtocol):
			resp.ErrCode = errcode.ErrInvalidProtocol.Code
			resp.ErrMsg = errcode.ErrInvalidProtocol.Msg
		default:
			resp.ErrCode = errcode.ErrInternalServer.Code
			resp.ErrMsg = errcode.ErrInternalServer.Msg
		}
	}

	return c.writeResponse(&resp)
}

// writeResponse writes a response to the connection
func (c *Client) writeResponse(resp *WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(data)
}

// Push sends a server-initiated frame
func (c *Client) Push(resp *WSResponse) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.writeResponse(resp)
}

// Subscription returns the conversation the session is subscribed to, 0 when none
func (c *Client) Subscription() int64 {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.subscription
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close releases the subscription slot, closes the connection and queues
// the session for unregistration
func (c *Client) close() {
	c.server.releaseSubscription(c)
	c.Close()
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
