//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_message_store.go -package=mocks
package core

import (
	"context"
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
)

// DefaultHistoryLimit bounds the backlog sent on join.
const DefaultHistoryLimit = 50

// MessageStore is the durable append-only log of room messages.
// Append order per room is the order RecentHistory returns.
type MessageStore interface {
	Append(ctx context.Context, msg *domain.Message) error
	// RecentHistory returns at most limit most recent messages, oldest first.
	RecentHistory(ctx context.Context, room domain.RoomName, limit int) ([]domain.Message, error)
}

// StoreError wraps any persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
