package ws

import (
	"errors"
	"sync"

	"github.com/cwrk-planet/realtime-service/internal/dispatch"
	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/gorilla/websocket"
)

var errClientClosed = errors.New("client closed")

// client - dispatch.Sink поверх websocket с ограниченной очередью отправки.
type client struct {
	id   domain.ConnID
	user domain.UserID

	mu   sync.Mutex
	conn *websocket.Conn

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newClient(id domain.ConnID, user domain.UserID, queue int) *client {
	return &client{
		id:     id,
		user:   user,
		send:   make(chan []byte, queue),
		closed: make(chan struct{}),
	}
}

func (c *client) ID() domain.ConnID     { return c.id }
func (c *client) UserID() domain.UserID { return c.user }

// Send не блокируется: при полной очереди возвращает dispatch.ErrQueueFull.
func (c *client) Send(data []byte) error {
	select {
	case <-c.closed:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return dispatch.ErrQueueFull
	}
}

func (c *client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		_ = conn.Close()
		return false
	default:
	}
	c.conn = conn
	return true
}

func (c *client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *client) done() <-chan struct{} { return c.closed }
