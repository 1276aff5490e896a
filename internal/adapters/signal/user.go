package signal

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	resp := struct {
		SID      core.SessionID  `json:"sid"`
		Username string          `json:"username"`
		Avatar   string          `json:"avatar,omitempty"`
		Room     domain.RoomName `json:"room,omitempty"`
	}{
		SID: sid,
	}
	if sess, ok := ctl.Orch.Registry.GetSession(sid); ok {
		resp.Username = sess.Meta().Name()
		resp.Avatar = sess.Meta().User.Avatar
	}
	if room, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.Room = room
	}
	ctl.sendJSON(conn, core.Event{Type: core.EvWhoAmI, Data: resp})
}
