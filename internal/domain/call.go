package domain

import (
	"errors"
	"fmt"
)

// CallState is the per-room signaling state: idle -> ringing -> active -> idle.
type CallState string

const (
	CallIdle    CallState = "idle"
	CallRinging CallState = "ringing"
	CallActive  CallState = "active"
)

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

var (
	ErrCallInProgress  = errors.New("call already in progress")
	ErrNoPendingCall   = errors.New("no pending call to answer")
	ErrNoCall          = errors.New("no call in room")
	ErrNotCallParty    = errors.New("not a party to the call")
	ErrUnknownCallKind = errors.New("unknown call kind")
)

func ParseCallKind(raw string) (CallKind, error) {
	switch k := CallKind(raw); k {
	case CallAudio, CallVideo:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCallKind, raw)
	}
}
