package core

import (
	"errors"

	"github.com/dkeye/Parley/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is an encoded outbound event.
type Frame []byte

// SessionID identifies one live transport session.
type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SID      SessionID     `json:"-"`
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set and the call session but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// AddMember returns false when the room was retired concurrently; callers fetch a fresh one.
	AddMember(sid SessionID, ms MemberSession) bool
	RemoveMember(sid SessionID) (remaining int)
	// Retire marks an empty room dead and resets its call session.
	Retire() bool

	Broadcast(from SessionID, data Frame) PublishResult
	// BroadcastMembers renders the member list and sends it to every member while membership
	// is held still, so the last list any member receives is the current one.
	BroadcastMembers(render func([]MemberDTO) (Frame, error)) (PublishResult, error)
	Unicast(to SessionID, data Frame) error

	// WithCall runs fn with exclusive access to the room's call session.
	// fn may broadcast; it must not add or remove members.
	WithCall(fn func(call *CallSession) error) error
	CallSnapshot() CallSnapshot
}

type RoomInfo struct {
	Name        domain.RoomName  `json:"name"`
	MemberCount int              `json:"client_count"`
	CallState   domain.CallState `json:"call_state"`
}

type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	// Release drops the room if it has no members left.
	Release(name domain.RoomName) bool
}
