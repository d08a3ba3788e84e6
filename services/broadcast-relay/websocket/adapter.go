package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"officehub/services/broadcast-relay/hub"
	"officehub/utils"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Options tune one subscriber connection.
type Options struct {
	BufferSize int
	PongWait   time.Duration
	PingPeriod time.Duration
}

// Registry is the part of the hub a connection needs.
type Registry interface {
	Register(sub hub.Subscriber)
	Unregister(sub hub.Subscriber)
}

// Conn is a subscriber connection. Events queue in send and a dedicated write
// pump drains them, so a slow peer only ever stalls itself.
type Conn struct {
	id       string
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	registry Registry
	opts     Options
	logger   *utils.Logger
}

func NewConn(id string, ws *websocket.Conn, registry Registry, opts Options, logger *utils.Logger) *Conn {
	return &Conn{
		id:       id,
		ws:       ws,
		send:     make(chan []byte, opts.BufferSize),
		done:     make(chan struct{}),
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues data without blocking.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return hub.ErrSubscriberClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return hub.ErrSubscriberClosed
	default:
		return hub.ErrBufferFull
	}
}

// Close asks the write pump to say goodbye and tear the socket down. It never
// blocks and is safe to call more than once.
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Conn) Start() {
	c.registry.Register(c)
	go c.writePump()
	go c.readPump()
}

// readPump only watches for liveness; subscribers have nothing to say to the relay.
func (c *Conn) readPump() {
	defer c.registry.Unregister(c)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Subscriber read error", "subscriber_id", c.id, "error", err)
			}
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.registry.Unregister(c)
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Subscriber write failed", "subscriber_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
