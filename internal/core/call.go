package core

import "github.com/dkeye/Parley/internal/domain"

// CallSession is the signaling state of one room. The zero value is idle.
// It is not safe for concurrent use; RoomService.WithCall serializes access.
type CallSession struct {
	state      domain.CallState
	caller     SessionID
	callerName string
	kind       domain.CallKind
	offer      []byte
	answerer   SessionID
	// gen changes on every ring so a stale ring timer can't end a newer call.
	gen uint64
}

// CallSnapshot is a copy of the call session safe to hand out.
type CallSnapshot struct {
	State      domain.CallState `json:"state"`
	Caller     SessionID        `json:"caller,omitempty"`
	CallerName string           `json:"caller_name,omitempty"`
	Kind       domain.CallKind  `json:"kind,omitempty"`
	Answerer   SessionID        `json:"answerer,omitempty"`
	Offer      []byte           `json:"-"`
	Gen        uint64           `json:"-"`
}

func (c *CallSession) State() domain.CallState {
	if c.state == "" {
		return domain.CallIdle
	}
	return c.state
}

// Ring moves idle -> ringing. A second attempt while not idle is rejected, never superseded.
func (c *CallSession) Ring(caller SessionID, callerName string, kind domain.CallKind, offer []byte) error {
	if c.State() != domain.CallIdle {
		return domain.ErrCallInProgress
	}
	c.gen++
	c.state = domain.CallRinging
	c.caller = caller
	c.callerName = callerName
	c.kind = kind
	c.offer = offer
	c.answerer = ""
	return nil
}

// Answer moves ringing -> active and returns the caller to notify.
func (c *CallSession) Answer(answerer SessionID) (SessionID, error) {
	if c.State() != domain.CallRinging {
		return "", domain.ErrNoPendingCall
	}
	if answerer == c.caller {
		return "", domain.ErrNotCallParty
	}
	c.state = domain.CallActive
	c.answerer = answerer
	c.offer = nil
	return c.caller, nil
}

// Involves reports whether sid is the caller or the answerer.
func (c *CallSession) Involves(sid SessionID) bool {
	if c.State() == domain.CallIdle || sid == "" {
		return false
	}
	return sid == c.caller || sid == c.answerer
}

// End tears the call down on an explicit request. While ringing only the caller may
// cancel; once active either party can hang up.
func (c *CallSession) End(by SessionID) (CallSnapshot, error) {
	switch c.State() {
	case domain.CallIdle:
		return CallSnapshot{}, domain.ErrNoCall
	case domain.CallRinging:
		if by != c.caller {
			return CallSnapshot{}, domain.ErrNotCallParty
		}
	case domain.CallActive:
		if !c.Involves(by) {
			return CallSnapshot{}, domain.ErrNotCallParty
		}
	}
	snap := c.Snapshot()
	c.Reset()
	return snap, nil
}

// Abandon ends the call if sid was a party to it, for disconnects and room changes.
func (c *CallSession) Abandon(sid SessionID) (CallSnapshot, bool) {
	if !c.Involves(sid) {
		return CallSnapshot{}, false
	}
	snap := c.Snapshot()
	c.Reset()
	return snap, true
}

// Expire ends a call still ringing from generation gen.
func (c *CallSession) Expire(gen uint64) (CallSnapshot, bool) {
	if c.State() != domain.CallRinging || c.gen != gen {
		return CallSnapshot{}, false
	}
	snap := c.Snapshot()
	c.Reset()
	return snap, true
}

// Reset clears all buffered signaling state. gen survives so old timers stay stale.
func (c *CallSession) Reset() {
	gen := c.gen
	*c = CallSession{gen: gen}
}

func (c *CallSession) Snapshot() CallSnapshot {
	return CallSnapshot{
		State:      c.State(),
		Caller:     c.caller,
		CallerName: c.callerName,
		Kind:       c.kind,
		Answerer:   c.answerer,
		Offer:      c.offer,
		Gen:        c.gen,
	}
}
