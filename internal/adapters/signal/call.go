package signal

import (
	"encoding/json"

	"github.com/dkeye/Parley/internal/adapters/rtc"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleCallUser(sid core.SessionID, data json.RawMessage) {
	var p callUserPayload
	if !ctl.decode(sid, core.EvCallUser, data, &p) {
		return
	}
	if err := rtc.CheckDescription(p.SignalData, webrtc.SDPTypeOffer); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad offer")
		return
	}
	kind, err := domain.ParseCallKind(p.CallType)
	if err != nil {
		ctl.dropped(sid, core.EvCallUser, err)
		return
	}
	name := p.Name
	if name == "" {
		if sess, ok := ctl.Orch.Registry.GetSession(sid); ok {
			name = sess.Meta().Name()
		}
	}
	// p.From is ignored: the forwarded event carries the relay's own sid for the caller.
	_ = ctl.Orch.CallUser(sid, domain.RoomName(p.Room), name, kind, p.SignalData)
}

func (ctl *SignalWSController) handleAnswer(sid core.SessionID, data json.RawMessage) {
	var p answerPayload
	if !ctl.decode(sid, core.EvAnswerCall, data, &p) {
		return
	}
	if err := rtc.CheckDescription(p.Signal, webrtc.SDPTypeAnswer); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad answer")
		return
	}
	_ = ctl.Orch.AnswerCall(sid, domain.RoomName(p.Room), p.Signal)
}

// handleCandidate relays the candidate without looking inside it.
func (ctl *SignalWSController) handleCandidate(sid core.SessionID, data json.RawMessage) {
	var p candidatePayload
	if !ctl.decode(sid, core.EvICECandidate, data, &p) {
		return
	}
	_ = ctl.Orch.RelayICE(sid, domain.RoomName(p.Room), p.Candidate)
}

func (ctl *SignalWSController) handleEndCall(sid core.SessionID, data json.RawMessage) {
	var p endCallPayload
	if !ctl.decode(sid, core.EvEndCall, data, &p) {
		return
	}
	_ = ctl.Orch.EndCall(sid, domain.RoomName(p.Room))
}
