package gormstore

import (
	"context"
	"slices"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"gorm.io/gorm"
)

// MessageRepository implements core.MessageStore.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append stores msg and sets msg.ID to its position in the log.
func (r *MessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	rec := fromMessage(msg)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return core.NewStoreError("append", err)
	}
	msg.ID = rec.ID
	return nil
}

func (r *MessageRepository) RecentHistory(ctx context.Context, room domain.RoomName, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var recs []MessageRecord
	err := r.db.WithContext(ctx).
		Where("room = ?", string(room)).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, core.NewStoreError("history", err)
	}
	slices.Reverse(recs)
	out := make([]domain.Message, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toMessage())
	}
	return out, nil
}
