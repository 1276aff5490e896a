package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
) {
	var p joinPayload
	if !ctl.decode(sid, core.EvJoinRoom, data, &p) {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.joins.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}

	room, err := domain.ParseRoomName(p.Room)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	username := p.Username
	if username == "" {
		username = conn.identity.Username
	}
	avatar := p.Avatar
	if avatar == "" {
		avatar = conn.identity.Avatar
	}
	user, err := domain.NewUser(username, avatar)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad username")
		ctl.sendError(conn, err.Error())
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(room)).Str("username", username).Msg("join")
	if err := ctl.Orch.Join(ctx, sid, room, user); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
		ctl.sendError(conn, "join_failed")
	}
}
