package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.limits.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.limits.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.limits.WriteWait)); err != nil {
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

// readPump is the connection's control loop. Inbound events are handled one at a time,
// which is what keeps a sender's events in order for every observer.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.joins.Forget(sid)
		ctl.Orch.Disconnect(sid)
	}()

	pongWait := ctl.limits.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.limits.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		return
	}

	switch env.Type {
	case core.EvJoinRoom:
		ctl.handleJoin(ctx, sid, c, env.Data)
	case core.EvSendMessage:
		ctl.handleSendMessage(ctx, sid, env.Data)
	case core.EvTyping:
		ctl.handleTyping(sid, env.Data)
	case core.EvDrawing:
		ctl.handleDrawing(sid, env.Data)
	case core.EvClear:
		ctl.handleClear(sid, env.Data)
	case core.EvCallUser:
		ctl.handleCallUser(sid, env.Data)
	case core.EvAnswerCall:
		ctl.handleAnswer(sid, env.Data)
	case core.EvICECandidate:
		ctl.handleCandidate(sid, env.Data)
	case core.EvEndCall:
		ctl.handleEndCall(sid, env.Data)
	case core.EvPing:
		ctl.handlePing(c)
	case core.EvWhoAmI:
		ctl.handleWhoAmI(sid, c)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", env.Type).Msg("unknown signal")
	}
}

// decode unmarshals and validates a payload. Failures are logged and the event dropped.
func (ctl *SignalWSController) decode(sid core.SessionID, event string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("event", event).Msg("bad payload")
		return false
	}
	if err := ctl.validate.Struct(v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("event", event).Msg("invalid payload")
		return false
	}
	return true
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, ev core.Event) {
	b, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, reason string) {
	ctl.sendJSON(c, core.Event{Type: core.EvError, Data: map[string]string{"error": reason}})
}
