package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var p messagePayload
	if !ctl.decode(sid, core.EvSendMessage, data, &p) {
		return
	}
	kind, err := domain.ParseMessageKind(p.Type)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad message kind")
		return
	}
	msg := &domain.Message{
		Room:    domain.RoomName(p.Room),
		Author:  p.Author,
		Message: p.Message,
		Time:    p.Time,
		Type:    kind,
		Avatar:  p.Avatar,
	}
	if err := ctl.Orch.SendMessage(ctx, sid, msg); err != nil {
		ctl.dropped(sid, core.EvSendMessage, err)
	}
}

func (ctl *SignalWSController) handleTyping(sid core.SessionID, data json.RawMessage) {
	var p typingPayload
	if !ctl.decode(sid, core.EvTyping, data, &p) {
		return
	}
	username := p.Username
	if username == "" {
		if sess, ok := ctl.Orch.Registry.GetSession(sid); ok {
			username = sess.Meta().Name()
		}
	}
	if err := ctl.Orch.Typing(sid, domain.RoomName(p.Room), username); err != nil {
		ctl.dropped(sid, core.EvTyping, err)
	}
}

// handleDrawing forwards the stroke payload exactly as received.
func (ctl *SignalWSController) handleDrawing(sid core.SessionID, data json.RawMessage) {
	var p drawingPayload
	if !ctl.decode(sid, core.EvDrawing, data, &p) {
		return
	}
	if err := ctl.Orch.Drawing(sid, domain.RoomName(p.Room), data); err != nil {
		ctl.dropped(sid, core.EvDrawing, err)
	}
}

// handleClear takes the bare room name as its payload.
func (ctl *SignalWSController) handleClear(sid core.SessionID, data json.RawMessage) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil || room == "" {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad clear payload")
		return
	}
	if err := ctl.Orch.Clear(sid, domain.RoomName(room)); err != nil {
		ctl.dropped(sid, core.EvClear, err)
	}
}

func (ctl *SignalWSController) dropped(sid core.SessionID, event string, err error) {
	log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("event", event).Msg("event dropped")
}
