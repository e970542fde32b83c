// Package signal is the WebSocket signaling client of the rtc transport.
package signal

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const (
	sendBuffer    = 32
	writeTimeout  = 5 * time.Second
	PingInterval  = 20 * time.Second
	handshakeWait = 10 * time.Second
)

// WsSignalConn is a client signaling connection. It implements core.SignalConnection.
type WsSignalConn struct {
	conn   *websocket.Conn
	send   chan core.Frame
	frames chan core.Frame
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	err    error
}

var dialer = websocket.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: handshakeWait,
}

// Dial opens the signaling connection at wsURL authenticated with token.
// The token travels both as a bearer header and as the access_token query parameter.
func Dial(ctx context.Context, wsURL, token string) (*WsSignalConn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("url", wsURL).Msg("dial")
		return nil, err
	}
	log.Info().Str("module", "signal").Str("url", wsURL).Msg("signaling connected")

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &WsSignalConn{
		conn:   ws,
		send:   make(chan core.Frame, sendBuffer),
		frames: make(chan core.Frame, sendBuffer),
		cancel: cancel,
	}
	go c.writePump(pumpCtx)
	go c.readPump(pumpCtx)
	return c, nil
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Send encodes v and queues it.
func (c *WsSignalConn) Send(v any) error {
	f, err := Encode(v)
	if err != nil {
		return err
	}
	return c.TrySend(f)
}

func (c *WsSignalConn) Frames() <-chan core.Frame { return c.frames }

func (c *WsSignalConn) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *WsSignalConn) Close() {
	c.shutdown(nil)
}

func (c *WsSignalConn) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	close(c.send)
	c.cancel()
	_ = c.conn.Close()
	c.mu.Unlock()
}
