package gateway

import (
	"sync"
	"time"

	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/tradechat/internal/config"
)

// socketConn adapts a hertz websocket to ClientConn. All frames, pings
// included, are written by one goroutine.
type socketConn struct {
	ws  *websocket.Conn
	cfg *config.WebSocketConfig

	mu      sync.Mutex
	stopped bool
	frames  chan []byte
	stop    chan struct{}
	once    sync.Once
}

// NewSocketConn wraps an upgraded connection and starts its writer
func NewSocketConn(ws *websocket.Conn, cfg *config.WebSocketConfig) *socketConn {
	c := &socketConn{
		ws:     ws,
		cfg:    cfg,
		frames: make(chan []byte, cfg.WriteChannelSize),
		stop:   make(chan struct{}),
	}

	ws.SetReadLimit(cfg.MaxMessageSize)
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	go c.writer()
	return c
}

func (c *socketConn) writer() {
	ping := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ping.Stop()
		if r := recover(); r != nil {
			log.Debug("socket writer recovered: %v", r)
		}
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.frames:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				log.Debug("socket write failed: %v", err)
				return
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debug("socket ping failed: %v", err)
				return
			}
		case <-c.stop:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before Close so a final push such as a
// revocation notice still reaches the peer
func (c *socketConn) flush() {
	for {
		select {
		case frame := <-c.frames:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *socketConn) write(messageType int, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrConnClosed
		}
	}()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

// ReadMessage blocks for the next frame, failing once PongWait passes without traffic
func (c *socketConn) ReadMessage() ([]byte, error) {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		return nil, err
	}
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// WriteMessage queues a frame; a full queue means the peer is not keeping up
func (c *socketConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrConnClosed
	}
	select {
	case c.frames <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

// Close stops the writer after it flushes queued frames. Safe to call repeatedly.
func (c *socketConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		close(c.stop)
	})
	return nil
}
