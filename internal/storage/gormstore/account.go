package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
	"gorm.io/gorm"
)

// AccountRepository implements domain.AccountStore.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindAccount(ctx context.Context, username string) (*domain.Account, error) {
	var rec AccountRecord
	if err := r.db.WithContext(ctx).First(&rec, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &domain.Account{
		Username:     rec.Username,
		PasswordHash: rec.Password,
		AvatarSeed:   rec.AvatarSeed,
	}, nil
}

func (r *AccountRepository) CreateAccount(ctx context.Context, acc *domain.Account) error {
	rec := &AccountRecord{
		Username:   acc.Username,
		Password:   acc.PasswordHash,
		AvatarSeed: acc.AvatarSeed,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) UpdateAvatar(ctx context.Context, username, avatar string) error {
	result := r.db.WithContext(ctx).
		Model(&AccountRecord{}).
		Where("username = ?", username).
		Update("avatar_seed", avatar)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
