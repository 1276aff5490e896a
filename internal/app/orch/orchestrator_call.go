package orch

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// IncomingCall is what the rest of the room sees for a callUser.
type IncomingCall struct {
	Signal   json.RawMessage `json:"signal"`
	From     core.SessionID  `json:"from"`
	Name     string          `json:"name"`
	CallType domain.CallKind `json:"callType"`
}

// CallUser rings the room. A room that is already ringing or in a call rejects the
// attempt without notifying anyone.
func (o *Orchestrator) CallUser(sid core.SessionID, roomName domain.RoomName, name string, kind domain.CallKind, offer json.RawMessage) error {
	room, err := o.memberRoom(sid, roomName)
	if err != nil {
		return err
	}
	var gen uint64
	err = room.WithCall(func(call *core.CallSession) error {
		if err := call.Ring(sid, name, kind, offer); err != nil {
			return err
		}
		gen = call.Snapshot().Gen
		o.broadcast(room, core.Event{Type: core.EvCallUser, Data: IncomingCall{
			Signal:   offer,
			From:     sid,
			Name:     name,
			CallType: kind,
		}}, sid)
		return nil
	})
	if err != nil {
		o.logRejected(sid, room, core.EvCallUser, err)
		return err
	}
	log.Info().Str("module", "orch.call").Str("sid", string(sid)).Str("room", string(room.Room().Name)).Str("kind", string(kind)).Msg("ringing")
	o.armRingTimeout(room, gen)
	return nil
}

// AnswerCall activates a ringing call and hands the answer to the caller.
func (o *Orchestrator) AnswerCall(sid core.SessionID, roomName domain.RoomName, answer json.RawMessage) error {
	room, err := o.memberRoom(sid, roomName)
	if err != nil {
		return err
	}
	err = room.WithCall(func(call *core.CallSession) error {
		caller, err := call.Answer(sid)
		if err != nil {
			return err
		}
		o.unicastInRoom(room, caller, core.Event{Type: core.EvCallAccepted, Data: answer})
		return nil
	})
	if err != nil {
		o.logRejected(sid, room, core.EvAnswerCall, err)
		return err
	}
	log.Info().Str("module", "orch.call").Str("sid", string(sid)).Str("room", string(room.Room().Name)).Msg("call active")
	return nil
}

// RelayICE forwards an opaque candidate to the rest of the room while a call is up.
func (o *Orchestrator) RelayICE(sid core.SessionID, roomName domain.RoomName, candidate json.RawMessage) error {
	room, err := o.memberRoom(sid, roomName)
	if err != nil {
		return err
	}
	err = room.WithCall(func(call *core.CallSession) error {
		if call.State() == domain.CallIdle {
			return domain.ErrNoCall
		}
		o.broadcast(room, core.Event{Type: core.EvICECandidate, Data: candidate}, sid)
		return nil
	})
	if err != nil {
		o.logRejected(sid, room, core.EvICECandidate, err)
	}
	return err
}

func (o *Orchestrator) EndCall(sid core.SessionID, roomName domain.RoomName) error {
	room, err := o.memberRoom(sid, roomName)
	if err != nil {
		return err
	}
	err = room.WithCall(func(call *core.CallSession) error {
		if _, err := call.End(sid); err != nil {
			return err
		}
		o.broadcast(room, core.Event{Type: core.EvCallEnded}, sid)
		return nil
	})
	if err != nil {
		o.logRejected(sid, room, core.EvEndCall, err)
		return err
	}
	log.Info().Str("module", "orch.call").Str("sid", string(sid)).Str("room", string(room.Room().Name)).Msg("call ended")
	return nil
}

// CallState reports the signaling state of a room; unknown rooms are idle.
func (o *Orchestrator) CallState(roomName domain.RoomName) domain.CallState {
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return domain.CallIdle
	}
	return room.CallSnapshot().State
}

// abandonCall forces teardown when a call party leaves without sending endCall.
func (o *Orchestrator) abandonCall(room core.RoomService, sid core.SessionID) {
	_ = room.WithCall(func(call *core.CallSession) error {
		if _, ok := call.Abandon(sid); !ok {
			return nil
		}
		log.Info().Str("module", "orch.call").Str("sid", string(sid)).Str("room", string(room.Room().Name)).Msg("call party left, ending call")
		o.broadcast(room, core.Event{Type: core.EvCallEnded}, sid)
		return nil
	})
}

func (o *Orchestrator) armRingTimeout(room core.RoomService, gen uint64) {
	if o.Options.RingTimeout <= 0 {
		return
	}
	time.AfterFunc(o.Options.RingTimeout, func() {
		_ = room.WithCall(func(call *core.CallSession) error {
			if _, ok := call.Expire(gen); !ok {
				return nil
			}
			log.Info().Str("module", "orch.call").Str("room", string(room.Room().Name)).Msg("ring timeout")
			o.broadcast(room, core.Event{Type: core.EvCallEnded}, "")
			return nil
		})
	})
}

func (o *Orchestrator) logRejected(sid core.SessionID, room core.RoomService, event string, err error) {
	ev := log.Info()
	if errors.Is(err, domain.ErrNoCall) {
		ev = log.Debug()
	}
	ev.Err(err).Str("module", "orch.call").Str("sid", string(sid)).Str("room", string(room.Room().Name)).Str("event", event).Msg("signaling rejected")
}
