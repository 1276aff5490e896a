package core

import "github.com/dkeye/Parley/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
// It is immutable; a rename builds a new one.
type memberSession struct {
	meta   *domain.Member
	signal SignalConnection
}

func NewMemberSession(meta *domain.Member, signal SignalConnection) MemberSession {
	return &memberSession{meta: meta, signal: signal}
}

func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.signal }
