package signal

import "encoding/json"

type joinPayload struct {
	Room     string `json:"room" validate:"required,max=64"`
	Username string `json:"username" validate:"max=36"`
	Avatar   string `json:"avatar" validate:"max=2048"`
}

type messagePayload struct {
	Room    string `json:"room" validate:"required,max=64"`
	Author  string `json:"author" validate:"required,max=64"`
	Message string `json:"message" validate:"required"`
	Time    string `json:"time" validate:"max=16"`
	Type    string `json:"type" validate:"omitempty,oneof=text spoiler image audio"`
	Avatar  string `json:"avatar"`
}

type typingPayload struct {
	Room     string `json:"room" validate:"required,max=64"`
	Username string `json:"username" validate:"max=64"`
}

type drawingPayload struct {
	Room string `json:"room" validate:"required,max=64"`
}

type callUserPayload struct {
	Room       string          `json:"room" validate:"required,max=64"`
	SignalData json.RawMessage `json:"signalData" validate:"required"`
	From       string          `json:"from"`
	Name       string          `json:"name" validate:"max=64"`
	CallType   string          `json:"callType" validate:"required,oneof=audio video"`
}

type answerPayload struct {
	Room   string          `json:"room" validate:"required,max=64"`
	Signal json.RawMessage `json:"signal" validate:"required"`
}

type candidatePayload struct {
	Room      string          `json:"room" validate:"required,max=64"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

type endCallPayload struct {
	Room string `json:"room" validate:"required,max=64"`
}
