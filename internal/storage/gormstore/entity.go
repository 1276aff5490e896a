package gormstore

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// MessageRecord is one row of the append-only message log.
// ID is the insertion order within every room.
type MessageRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Room      string    `gorm:"size:64;not null;index"`
	Author    string    `gorm:"size:64;not null"`
	Message   string    `gorm:"type:text;not null"`
	Time      string    `gorm:"size:16"`
	Type      string    `gorm:"size:16;not null;default:text"`
	Avatar    string    `gorm:"type:text"`
	CreatedAt time.Time
}

func (MessageRecord) TableName() string {
	return "messages"
}

func fromMessage(m *domain.Message) *MessageRecord {
	return &MessageRecord{
		Room:    string(m.Room),
		Author:  m.Author,
		Message: m.Message,
		Time:    m.Time,
		Type:    string(m.Type),
		Avatar:  m.Avatar,
	}
}

func (r *MessageRecord) toMessage() domain.Message {
	return domain.Message{
		ID:      r.ID,
		Room:    domain.RoomName(r.Room),
		Author:  r.Author,
		Message: r.Message,
		Time:    r.Time,
		Type:    domain.MessageKind(r.Type),
		Avatar:  r.Avatar,
	}
}

type AccountRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Username   string `gorm:"size:36;not null;uniqueIndex"`
	Password   string `gorm:"size:72;not null"`
	AvatarSeed string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (AccountRecord) TableName() string {
	return "users"
}
