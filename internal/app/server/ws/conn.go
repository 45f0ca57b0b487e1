package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

type WebSocket struct {
	*websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration
	readLimit    int64
}

func NewWebSocket(parent context.Context, conn *websocket.Conn, writeTimeout time.Duration, readLimit int64) *WebSocket {
	ctx, cancel := context.WithCancel(parent)
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if readLimit <= 0 {
		readLimit = 512 * 1024
	}
	return &WebSocket{
		Conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: writeTimeout,
		readLimit:    readLimit,
	}
}

func (w *WebSocket) WriteMessage(data []byte) error {
	w.Conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.Conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop pumps inbound frames to onMsg until the peer closes or an
// error breaks the loop.
func (w *WebSocket) ReadLoop(onMsg func([]byte)) {
	defer w.Close()

	// Protects against memory exhaustion from oversized frames.
	w.Conn.SetReadLimit(w.readLimit)

	for {
		_, data, err := w.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("ws - read loop - unexpected close", "err", err)
			}
			break
		}
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

func (w *WebSocket) Close() {
	w.cancel()
	_ = w.Conn.Close()
}
