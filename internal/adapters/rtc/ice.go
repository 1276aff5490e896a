// Package rtc holds the small part of WebRTC the relay needs: it hands ICE servers to
// clients and checks the shape of session descriptions it forwards. Media never
// passes through the relay.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Parley/internal/config"
	"github.com/pion/webrtc/v4"
)

var ErrBadDescription = errors.New("bad session description")

func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
	}
}

// ICEServers converts configured servers; an empty list falls back to the public STUN server.
func ICEServers(cfg []config.ICEServer) []webrtc.ICEServer {
	if len(cfg) == 0 {
		return DefaultICEServers()
	}
	out := make([]webrtc.ICEServer, 0, len(cfg))
	for _, s := range cfg {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

// CheckDescription verifies raw is a session description of the wanted type with a body.
// The SDP itself is relayed untouched.
func CheckDescription(raw json.RawMessage, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("%w: %v", ErrBadDescription, err)
	}
	if desc.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrBadDescription, desc.Type, want)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: empty sdp", ErrBadDescription)
	}
	return nil
}
