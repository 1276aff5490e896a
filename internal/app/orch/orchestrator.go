package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrNotJoined      = errors.New("not joined to a room")
	ErrRoomMismatch   = errors.New("event room differs from joined room")
)

type Options struct {
	HistoryLimit int
	// StoreTimeout bounds every persistence call.
	StoreTimeout time.Duration
	// RingTimeout ends unanswered calls; zero rings forever.
	RingTimeout time.Duration
	Now         func() time.Time
}

// Orchestrator composes presence, rooms, the message store and call signaling.
// Every method is called from a connection's own control loop.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Store    core.MessageStore
	Options  Options
}

func New(reg *app.Registry, rooms core.RoomManager, policy app.Policy, store core.MessageStore, opts Options) *Orchestrator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = core.DefaultHistoryLimit
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Store:    store,
		Options:  opts,
	}
}

// Broadcast delivers ev to every member of the room except exclude.
func (o *Orchestrator) Broadcast(roomName domain.RoomName, ev core.Event, exclude core.SessionID) {
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return
	}
	o.broadcast(room, ev, exclude)
}

// Unicast delivers ev to one live connection; gone connections are a no-op.
func (o *Orchestrator) Unicast(sid core.SessionID, ev core.Event) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	frame, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", ev.Type).Msg("encode event")
		return
	}
	if err := sess.Signal().TrySend(frame); errors.Is(err, core.ErrBackpressure) {
		o.kick(sid)
	}
}

func (o *Orchestrator) broadcast(room core.RoomService, ev core.Event, exclude core.SessionID) {
	frame, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", ev.Type).Msg("encode event")
		return
	}
	res := room.Broadcast(exclude, frame)
	o.onDropped(room, res.Dropped)
}

func (o *Orchestrator) unicastInRoom(room core.RoomService, sid core.SessionID, ev core.Event) {
	frame, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", ev.Type).Msg("encode event")
		return
	}
	if err := room.Unicast(sid, frame); errors.Is(err, core.ErrBackpressure) {
		o.onDropped(room, []core.SessionID{sid})
	}
}

func (o *Orchestrator) onDropped(room core.RoomService, dropped []core.SessionID) {
	if o.Policy == nil {
		return
	}
	for _, sid := range dropped {
		switch o.Policy.OnBackPressure(room, sid) {
		case app.KickMember:
			o.kick(sid)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// kick closes the transport; the connection's control loop then runs Disconnect.
func (o *Orchestrator) kick(sid core.SessionID) {
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicking slow member")
	o.Registry.Cancel(sid)
}

// memberRoom resolves the room sid is joined to, checking it against the room named by an event.
func (o *Orchestrator) memberRoom(sid core.SessionID, named domain.RoomName) (core.RoomService, error) {
	joined, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return nil, ErrNotJoined
	}
	if named != "" && named != joined {
		return nil, ErrRoomMismatch
	}
	room, ok := o.Rooms.Get(joined)
	if !ok {
		return nil, ErrNotJoined
	}
	return room, nil
}

func (o *Orchestrator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.Options.StoreTimeout)
}

// persist is best effort: a failed append is logged and fan-out still happens.
func (o *Orchestrator) persist(ctx context.Context, msg *domain.Message) {
	if o.Store == nil {
		return
	}
	ctx, cancel := o.storeCtx(ctx)
	defer cancel()
	if err := o.Store.Append(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(msg.Room)).Str("author", msg.Author).Msg("message not persisted")
	}
}

// history degrades to an empty backlog when the store fails.
func (o *Orchestrator) history(ctx context.Context, room domain.RoomName) []domain.Message {
	if o.Store == nil {
		return []domain.Message{}
	}
	ctx, cancel := o.storeCtx(ctx)
	defer cancel()
	msgs, err := o.Store.RecentHistory(ctx, room, o.Options.HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room)).Msg("history unavailable")
		return []domain.Message{}
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs
}
