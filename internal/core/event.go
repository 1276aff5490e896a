package core

import "encoding/json"

// Event names on the wire.
const (
	EvJoinRoom      = "join_room"
	EvLoadHistory   = "load_history"
	EvReceive       = "receive_message"
	EvRoomUsers     = "room_users"
	EvSendMessage   = "send_message"
	EvTyping        = "typing"
	EvDisplayTyping = "display_typing"
	EvDrawing       = "drawing"
	EvClear         = "clear"
	EvCallUser      = "callUser"
	EvAnswerCall    = "answerCall"
	EvCallAccepted  = "callAccepted"
	EvICECandidate  = "ice-candidate"
	EvEndCall       = "endCall"
	EvCallEnded     = "callEnded"
	EvPing          = "ping"
	EvPong          = "pong"
	EvWhoAmI        = "whoami"
	EvError         = "error"
)

// Event is the envelope of every frame: {"type": ..., "data": ...}.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func (e Event) Encode() (Frame, error) {
	return json.Marshal(e)
}
