package domain

import (
	"errors"
	"fmt"
	"time"
)

type MessageKind string

const (
	KindText    MessageKind = "text"
	KindSpoiler MessageKind = "spoiler"
	KindImage   MessageKind = "image"
	KindAudio   MessageKind = "audio"
)

// SystemAuthor authors the synthetic joined/left announcements.
const SystemAuthor = "SYSTEM"

var ErrUnknownMessageKind = errors.New("unknown message kind")

// ParseMessageKind defaults an empty kind to text.
func ParseMessageKind(raw string) (MessageKind, error) {
	switch k := MessageKind(raw); k {
	case "":
		return KindText, nil
	case KindText, KindSpoiler, KindImage, KindAudio:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMessageKind, raw)
	}
}

// Message is immutable once persisted and broadcast.
// Payload is text or a data-URI for image/audio kinds.
type Message struct {
	ID      uint64      `json:"id,omitempty"`
	Room    RoomName    `json:"room"`
	Author  string      `json:"author"`
	Message string      `json:"message"`
	Time    string      `json:"time"`
	Type    MessageKind `json:"type"`
	Avatar  string      `json:"avatar,omitempty"`
}

// ClockTime renders hour:minute without zero padding ("9:5"), the format clients emit.
func ClockTime(t time.Time) string {
	return fmt.Sprintf("%d:%d", t.Hour(), t.Minute())
}

func NewSystemMessage(room RoomName, text string, at time.Time) *Message {
	return &Message{
		Room:    room,
		Author:  SystemAuthor,
		Message: text,
		Time:    ClockTime(at),
		Type:    KindText,
	}
}

func JoinedMessage(room RoomName, username string, at time.Time) *Message {
	return NewSystemMessage(room, username+" has joined the chat", at)
}

func LeftMessage(room RoomName, username string, at time.Time) *Message {
	return NewSystemMessage(room, username+" has left the chat", at)
}
