// Package badgerstore is an embedded message and account store on BadgerDB.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

const seqBandwidth = 128

// Store implements core.MessageStore and domain.AccountStore.
//
// Messages are keyed "msg:{len(room)}:{room}:{seq}" with seq a 20-digit zero padded
// counter, so a reverse prefix scan yields the newest messages of one room first.
// Accounts are keyed "acct:{username}".
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}
	return New(db)
}

func New(db *badger.DB) (*Store, error) {
	seq, err := db.GetSequence([]byte("seq:messages"), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to lease message sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		log.Error().Err(err).Str("module", "store.badger").Msg("release sequence")
	}
	return s.db.Close()
}

func roomPrefix(room domain.RoomName) []byte {
	return fmt.Appendf(nil, "msg:%d:%s:", len(room), room)
}

func messageKey(room domain.RoomName, seq uint64) []byte {
	return fmt.Appendf(roomPrefix(room), "%020d", seq)
}

func (s *Store) Append(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return core.NewStoreError("append", err)
	}
	seq, err := s.seq.Next()
	if err != nil {
		return core.NewStoreError("append", err)
	}
	// badger sequences start at zero; ids start at one like the SQL store.
	id := seq + 1
	stored := *msg
	stored.ID = id
	value, err := json.Marshal(stored)
	if err != nil {
		return core.NewStoreError("append", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.Room, id), value)
	})
	if err != nil {
		return core.NewStoreError("append", err)
	}
	msg.ID = id
	return nil
}

func (s *Store) RecentHistory(ctx context.Context, room domain.RoomName, limit int) ([]domain.Message, error) {
	out := make([]domain.Message, 0, max(limit, 0))
	if limit <= 0 {
		return out, nil
	}
	prefix := roomPrefix(room)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(slices.Clone(prefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var m domain.Message
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &m)
			}); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, core.NewStoreError("history", err)
	}
	slices.Reverse(out)
	return out, nil
}

type accountValue struct {
	PasswordHash string `json:"password_hash"`
	AvatarSeed   string `json:"avatar_seed"`
}

func accountKey(username string) []byte {
	return []byte("acct:" + username)
}

func (s *Store) FindAccount(_ context.Context, username string) (*domain.Account, error) {
	var acc *domain.Account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			var av accountValue
			if err := json.Unmarshal(v, &av); err != nil {
				return err
			}
			acc = &domain.Account{Username: username, PasswordHash: av.PasswordHash, AvatarSeed: av.AvatarSeed}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return acc, nil
}

func (s *Store) CreateAccount(_ context.Context, acc *domain.Account) error {
	value, err := json.Marshal(accountValue{PasswordHash: acc.PasswordHash, AvatarSeed: acc.AvatarSeed})
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(accountKey(acc.Username)); err == nil {
			return domain.ErrAccountExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(accountKey(acc.Username), value)
	})
	if errors.Is(err, domain.ErrAccountExists) || errors.Is(err, badger.ErrConflict) {
		return domain.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *Store) UpdateAvatar(_ context.Context, username, avatar string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(username))
		if err != nil {
			return err
		}
		var av accountValue
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &av) }); err != nil {
			return err
		}
		av.AvatarSeed = avatar
		value, err := json.Marshal(av)
		if err != nil {
			return err
		}
		return txn.Set(accountKey(username), value)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}
