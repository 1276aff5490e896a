package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Join moves sid into roomName, leaving any other room first.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, roomName domain.RoomName, user *domain.User) error {
	if prev, _, ok := o.Registry.RoomOf(sid); ok && prev != roomName {
		o.Leave(ctx, sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(prev)).Msg("left previous room")
	}
	sess, ok := o.Registry.Join(sid, roomName, user)
	if !ok {
		return ErrUnknownSession
	}
	room := o.Rooms.GetOrCreate(roomName)
	for !room.AddMember(sid, sess) {
		room = o.Rooms.GetOrCreate(roomName)
	}

	o.Unicast(sid, core.Event{Type: core.EvLoadHistory, Data: o.history(ctx, roomName)})

	msg := domain.JoinedMessage(roomName, user.Username, o.Options.Now())
	o.persist(ctx, msg)
	o.broadcast(room, core.Event{Type: core.EvReceive, Data: msg}, sid)
	o.broadcastUsers(room)
	return nil
}

// Leave drops sid's room association, tearing down its call and announcing the departure.
// Safe to call repeatedly.
func (o *Orchestrator) Leave(ctx context.Context, sid core.SessionID) {
	prev, ok := o.Registry.Leave(sid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(prev.RoomName)
	if !ok {
		return
	}
	o.abandonCall(room, sid)
	room.RemoveMember(sid)

	msg := domain.LeftMessage(prev.RoomName, prev.User.Username, o.Options.Now())
	o.broadcast(room, core.Event{Type: core.EvReceive, Data: msg}, sid)
	o.broadcastUsers(room)
	o.Rooms.Release(prev.RoomName)
	o.persist(ctx, msg)
}

// Disconnect runs when the transport is gone. It never waits on the connection's context.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	o.Leave(context.Background(), sid)
	o.Registry.Unbind(sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("disconnected")
}

// MembersOf lists display names in arrival order.
func (o *Orchestrator) MembersOf(roomName domain.RoomName) []string {
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return []string{}
	}
	return memberNames(room)
}

// SendMessage persists then relays msg to everyone else in the room.
func (o *Orchestrator) SendMessage(ctx context.Context, sid core.SessionID, msg *domain.Message) error {
	room, err := o.memberRoom(sid, msg.Room)
	if err != nil {
		return err
	}
	if msg.Time == "" {
		msg.Time = domain.ClockTime(o.Options.Now())
	}
	o.persist(ctx, msg)
	o.broadcast(room, core.Event{Type: core.EvReceive, Data: msg}, sid)
	return nil
}

func (o *Orchestrator) Typing(sid core.SessionID, roomName domain.RoomName, username string) error {
	room, err := o.memberRoom(sid, roomName)
	if err != nil {
		return err
	}
	o.broadcast(room, core.Event{Type: core.EvDisplayTyping, Data: username}, sid)
	return nil
}

// Drawing relays a stroke verbatim; whiteboard state is never stored.
func (o *Orchestrator) Drawing(sid core.SessionID, roomName domain.RoomName, stroke json.RawMessage) error {
	room, err := o.memberRoom(sid, roomName)
	if err != nil {
		return err
	}
	o.broadcast(room, core.Event{Type: core.EvDrawing, Data: stroke}, sid)
	return nil
}

func (o *Orchestrator) Clear(sid core.SessionID, roomName domain.RoomName) error {
	room, err := o.memberRoom(sid, roomName)
	if err != nil {
		return err
	}
	o.broadcast(room, core.Event{Type: core.EvClear}, sid)
	return nil
}

func (o *Orchestrator) broadcastUsers(room core.RoomService) {
	res, err := room.BroadcastMembers(func(members []core.MemberDTO) (core.Frame, error) {
		return core.Event{Type: core.EvRoomUsers, Data: usernames(members)}.Encode()
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room.Room().Name)).Msg("encode member list")
		return
	}
	o.onDropped(room, res.Dropped)
}

func memberNames(room core.RoomService) []string {
	return usernames(room.MembersSnapshot())
}

func usernames(members []core.MemberDTO) []string {
	return lo.Map(members, func(m core.MemberDTO, _ int) string { return m.Username })
}
