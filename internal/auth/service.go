// Package auth is the single credential check in front of the relay: the first login
// provisions an account, later ones verify it.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

const MaxPasswordLen = 72

var (
	ErrWrongPassword   = errors.New("wrong password")
	ErrInvalidPassword = errors.New("invalid password")
)

type LoginRequest struct {
	Username   string
	Password   string
	AvatarSeed string
}

type LoginResult struct {
	Created    bool
	AvatarSeed string
}

type Service struct {
	accounts domain.AccountStore
	hasher   *PasswordHasher
}

func NewService(accounts domain.AccountStore, hasher *PasswordHasher) *Service {
	return &Service{accounts: accounts, hasher: hasher}
}

// Login verifies or provisions req.Username. A supplied avatar replaces the stored one.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := domain.ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if req.Password == "" || len(req.Password) > MaxPasswordLen {
		return nil, ErrInvalidPassword
	}

	acc, err := s.accounts.FindAccount(ctx, req.Username)
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return s.provision(ctx, req)
	case err != nil:
		return nil, err
	}

	if !s.hasher.Verify(req.Password, acc.PasswordHash) {
		return nil, ErrWrongPassword
	}
	if req.AvatarSeed == "" {
		return &LoginResult{AvatarSeed: acc.AvatarSeed}, nil
	}
	if err := s.accounts.UpdateAvatar(ctx, req.Username, req.AvatarSeed); err != nil {
		return nil, err
	}
	return &LoginResult{AvatarSeed: req.AvatarSeed}, nil
}

func (s *Service) provision(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	avatar := req.AvatarSeed
	if avatar == "" {
		avatar = domain.DefaultAvatar
	}
	err = s.accounts.CreateAccount(ctx, &domain.Account{
		Username:     req.Username,
		PasswordHash: hash,
		AvatarSeed:   avatar,
	})
	if errors.Is(err, domain.ErrAccountExists) {
		// lost a race with a concurrent first login
		return s.Login(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "auth").Str("username", req.Username).Msg("account provisioned")
	return &LoginResult{Created: true, AvatarSeed: avatar}, nil
}
