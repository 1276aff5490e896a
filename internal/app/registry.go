package app

import (
	"context"
	"sync"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomName domain.RoomName
	Session  core.MemberSession
	Cancel   context.CancelFunc
}

// PresenceEntry is what a connection was joined as.
type PresenceEntry struct {
	RoomName domain.RoomName
	User     domain.User
}

// Registry maps live connections to their transport, room and display identity.
// Critical sections are single map operations; fan-out happens on the rooms.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

// BindSignal registers a fresh connection. A stale entry under the same sid is cancelled first
// so an old control loop can never deliver into the new one.
func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	old, ok := r.sessions[sid]
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	r.mu.Unlock()
	if ok && old.Cancel != nil {
		old.Cancel()
		log.Warn().Str("module", "app.registry").Str("sid", string(sid)).Msg("replaced stale session")
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomName, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.RoomName == "" {
		return "", nil, false
	}
	return entry.RoomName, entry.Session, true
}

// Join inserts or overwrites the presence of sid. It returns the member session carrying
// the new identity, or false if sid is not bound to a transport.
func (r *Registry) Join(sid core.SessionID, room domain.RoomName, user *domain.User) (core.MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	entry.RoomName = room
	entry.Session = core.NewMemberSession(domain.NewMember(user), entry.Session.Signal())
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Str("username", user.Username).Msg("joined room")
	return entry.Session, true
}

// Leave clears the room association and returns what it was. Repeated calls are no-ops.
func (r *Registry) Leave(sid core.SessionID) (PresenceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.RoomName == "" {
		return PresenceEntry{}, false
	}
	prev := PresenceEntry{RoomName: entry.RoomName}
	if u := entry.Session.Meta().User; u != nil {
		prev.User = *u
	}
	entry.RoomName = ""
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(prev.RoomName)).Msg("removed room association")
	return prev, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
