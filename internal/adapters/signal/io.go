package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *WsSignalConn) writePump(ctx context.Context) {
	ping := time.NewTicker(PingInterval)
	defer ping.Stop()

	for {
		var data []byte
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			f, err := Encode(Simple{Type: TypePing})
			if err != nil {
				continue
			}
			data = f
		case f, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			data = f
		}
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			c.shutdown(err)
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
			c.shutdown(err)
			return
		}
	}
}

// readPump owns the frames channel and closes it when the socket ends.
func (c *WsSignalConn) readPump(ctx context.Context) {
	defer close(c.frames)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				c.shutdown(err)
			}
			return
		}
		select {
		case c.frames <- data:
		case <-ctx.Done():
			return
		}
	}
}
