//go:generate go run go.uber.org/mock/mockgen -source=account.go -destination=../mocks/mock_account_store.go -package=mocks
package domain

import (
	"context"
	"errors"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// Account is a stored credential. PasswordHash is never sent to clients.
type Account struct {
	Username     string
	PasswordHash string
	AvatarSeed   string
}

type AccountStore interface {
	FindAccount(ctx context.Context, username string) (*Account, error)
	CreateAccount(ctx context.Context, acc *Account) error
	UpdateAvatar(ctx context.Context, username, avatar string) error
}
