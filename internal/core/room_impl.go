package core

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

type memberEntry struct {
	session MemberSession
	seq     uint64
}

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
// Lock order: callMu before mu.
type roomImpl struct {
	room *domain.Room

	mu      sync.RWMutex
	bySID   map[SessionID]*memberEntry
	seq     uint64
	retired bool

	callMu sync.Mutex
	call   CallSession
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:  room,
		bySID: make(map[SessionID]*memberEntry),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return false
	}
	if e, ok := r.bySID[sid]; ok {
		e.session = ms
	} else {
		r.seq++
		r.bySID[sid] = &memberEntry{session: ms, seq: r.seq}
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.Name)).Str("sid", string(sid)).Str("user", ms.Meta().Name()).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(sid SessionID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.room.Name)).Str("sid", string(sid)).Msg("member removed")
	return len(r.bySID)
}

func (r *roomImpl) Retire() bool {
	r.callMu.Lock()
	defer r.callMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bySID) > 0 {
		return false
	}
	r.retired = true
	r.call.Reset()
	return true
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, e := range r.bySID {
		if sid == from {
			continue
		}
		if err := e.session.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Unicast(to SessionID, data Frame) error {
	r.mu.RLock()
	e, ok := r.bySID[to]
	r.mu.RUnlock()
	if !ok {
		return ErrConnClosed
	}
	return e.session.Signal().TrySend(data)
}

// MembersSnapshot lists members in arrival order.
func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked()
}

// BroadcastMembers takes the write lock so list broadcasts are serialized with each other
// and with membership changes.
func (r *roomImpl) BroadcastMembers(render func([]MemberDTO) (Frame, error)) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame, err := render(r.membersLocked())
	if err != nil {
		return PublishResult{}, err
	}
	res := PublishResult{}
	for sid, e := range r.bySID {
		if err := e.session.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	return res, nil
}

func (r *roomImpl) membersLocked() []MemberDTO {
	type ordered struct {
		sid SessionID
		e   *memberEntry
	}
	entries := make([]ordered, 0, len(r.bySID))
	for sid, e := range r.bySID {
		entries = append(entries, ordered{sid: sid, e: e})
	}
	slices.SortFunc(entries, func(a, b ordered) int { return cmp.Compare(a.e.seq, b.e.seq) })
	out := make([]MemberDTO, 0, len(entries))
	for _, o := range entries {
		u := o.e.session.Meta().User
		out = append(out, MemberDTO{SID: o.sid, ID: u.ID, Username: u.Username})
	}
	return out
}

func (r *roomImpl) WithCall(fn func(call *CallSession) error) error {
	r.callMu.Lock()
	defer r.callMu.Unlock()
	return fn(&r.call)
}

func (r *roomImpl) CallSnapshot() CallSnapshot {
	r.callMu.Lock()
	defer r.callMu.Unlock()
	return r.call.Snapshot()
}
