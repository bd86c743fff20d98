package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	maxReconnectDelay = 30 * time.Second
	writeTimeout      = 5 * time.Second
)

// frame is the wire envelope on the socket.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSConn is a websocket client Conn that reconnects until its Run context ends.
type WSConn struct {
	dispatcher

	url            string
	header         http.Header
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	log            zerolog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewWSConn(url, token string, reconnectDelay time.Duration, log zerolog.Logger) *WSConn {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	return &WSConn{
		url:            url,
		header:         header,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: reconnectDelay,
		log:            log.With().Str("component", "realtime.websocket").Logger(),
	}
}

// Run keeps the connection alive until ctx is cancelled.
func (c *WSConn) Run(ctx context.Context) error {
	delay := c.reconnectDelay
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("dial failed")
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			delay = min(delay*2, maxReconnectDelay)
			continue
		}
		delay = c.reconnectDelay

		c.writeMu.Lock()
		c.conn = conn
		c.writeMu.Unlock()

		c.log.Info().Str("url", c.url).Msg("connected")
		c.setStatus(true)

		err = c.readLoop(ctx, conn)

		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		_ = conn.Close()

		c.setStatus(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("connection lost")
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

func (c *WSConn) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		if f.Event == "" {
			continue
		}
		c.dispatch(f.Event, f.Data)
	}
}

func (c *WSConn) Emit(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(frame{Event: event, Data: data})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
