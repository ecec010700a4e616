package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := ctl.ping(c); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

// readPump owns the connection lifetime: when it returns the participant is
// disconnected from the relay and the write side is torn down.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ConnID, addr string, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		ctl.Relay.Disconnect(id)
		c.Close()
		cancel()
	}()

	ctl.keepalive(c)
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(id, addr, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(id domain.ConnID, addr string, data []byte) {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		lvl := log.Warn()
		if errors.Is(err, protocol.ErrUnknownType) {
			lvl = log.Debug()
		}
		lvl.Err(err).Str("module", "signal").Str("conn", string(id)).Msg("dropping frame")
		ctl.Metrics.Dropped(metrics.ReasonBadMessage)
		return
	}

	if _, ok := req.(protocol.Join); ok && ctl.Limiter != nil && !ctl.Limiter.Allow(addr) {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Str("addr", addr).Msg("join throttled")
		ctl.Metrics.Rejected(metrics.RejectRateLimited)
		ctl.Relay.Reject(id, app.MsgTooManyJoins)
		return
	}
	ctl.Relay.Handle(id, req)
}
