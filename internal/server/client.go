package server

import (
	"encoding/json"
	"sync"
	"time"

	"pricestate/internal/price"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxMessageSize = 4 * 1024

type snapshotFrame struct {
	Prices price.Table `json:"prices"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// client is one websocket consumer. It implements aggregator.Observer.
//
// send is written and closed only from observer callbacks, which the
// aggregator serialises, so ended needs no extra locking.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	ended  bool
	logger *zap.Logger

	quit     chan struct{}
	quitOnce sync.Once

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func newClient(conn *websocket.Conn, buffer int, writeWait, pongWait time.Duration, logger *zap.Logger) *client {
	if buffer < 1 {
		buffer = 1
	}
	return &client{
		conn:       conn,
		send:       make(chan []byte, buffer),
		quit:       make(chan struct{}),
		logger:     logger.With(zap.String("remote", conn.RemoteAddr().String())),
		writeWait:  writeWait,
		pongWait:   pongWait,
		pingPeriod: pongWait * 9 / 10,
	}
}

func (c *client) OnSnapshot(t price.Table) {
	if c.ended {
		return
	}
	b, err := json.Marshal(snapshotFrame{Prices: t})
	if err != nil {
		c.logger.Error("failed to encode snapshot", zap.Error(err))
		return
	}
	select {
	case c.send <- b:
	default:
		// A skipped snapshot would leave the client with a wrong table.
		c.logger.Warn("client too slow, disconnecting", zap.Int("buffer", cap(c.send)))
		c.end()
	}
}

func (c *client) OnError(err error) {
	if c.ended {
		return
	}
	if b, merr := json.Marshal(errorFrame{Error: err.Error()}); merr == nil {
		select {
		case c.send <- b:
		default:
		}
	}
	c.end()
}

func (c *client) OnComplete() {
	c.end()
}

func (c *client) end() {
	if c.ended {
		return
	}
	c.ended = true
	close(c.send)
}

// stop makes writePump return once the peer is gone.
func (c *client) stop() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// readPump discards inbound frames and returns once the connection is gone.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("client read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-c.quit:
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
