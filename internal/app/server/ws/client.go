package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

// RuntimeClient is one live authenticated connection. Sends go through
// a buffered channel drained by a single write pump, so fan-out paths
// never block on the socket; a full buffer counts as a failed send.
type RuntimeClient struct {
	ctx    context.Context
	cancel context.CancelFunc
	ws     *WebSocket
	id     uuid.UUID
	claims domain.Claims
	out    chan []byte
	once   sync.Once
}

func NewClient(parent context.Context, ws *WebSocket, claims domain.Claims, sendBuffer int) *RuntimeClient {
	ctx, cancel := context.WithCancel(parent)
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	c := &RuntimeClient{
		ctx:    ctx,
		cancel: cancel,
		ws:     ws,
		id:     uuid.New(),
		claims: claims,
		out:    make(chan []byte, sendBuffer),
	}
	go c.writeLoop()
	return c
}

func (c *RuntimeClient) ID() uuid.UUID         { return c.id }
func (c *RuntimeClient) UserID() string        { return c.claims.UserID }
func (c *RuntimeClient) Claims() domain.Claims { return c.claims }

func (c *RuntimeClient) Send(ctx context.Context, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return domain.ErrClientClosed
	default:
		// Slow consumer: drop the connection rather than block fan-out.
		c.Close()
		return domain.ErrClientClosed
	}
}

// Close is idempotent. The send channel is never closed, only
// abandoned, so concurrent Send calls cannot panic; writeLoop exits on
// the cancelled context.
func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			_ = c.ws.WriteMessage(data)
		}
	}
}
