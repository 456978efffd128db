package repositories

import (
	"context"
	"fmt"

	"vetchat/codec"
	"vetchat/domain"
	"vetchat/errors"

	"github.com/dgraph-io/badger/v4"
)

// ProfileRepository is the directory of public user profiles. Profiles are
// written from the identity claims of authenticated users.
type ProfileRepository struct {
	db *badger.DB
}

func NewProfileRepository(db *badger.DB) ProfileRepository {
	return ProfileRepository{db: db}
}

type profileRecord struct {
	ID          string `cbor:"id"`
	DisplayName string `cbor:"display_name"`
	AvatarURL   string `cbor:"avatar_url,omitempty"`
	Role        string `cbor:"role,omitempty"`
}

// Put creates or replaces a profile. Writing the same profile again is a no-op.
func (p ProfileRepository) Put(ctx context.Context, profile domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := codec.Marshal(fromProfile(profile))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	err = p.db.Update(func(txn *badger.Txn) error {
		key := profileKey(profile.ID)
		if item, err := txn.Get(key); err == nil {
			unchanged := false
			if err = item.Value(func(value []byte) error {
				unchanged = string(value) == string(data)
				return nil
			}); err != nil {
				return err
			}
			if unchanged {
				return nil
			}
		}
		return txn.Set(key, data)
	})
	return storeError(err)
}

// Get retrieves a profile, or errors.ErrNotFound.
func (p ProfileRepository) Get(ctx context.Context, userID string) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}
	var record profileRecord
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: user %s", errors.ErrNotFound, userID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return codec.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return domain.Profile{}, storeError(err)
	}
	return toProfile(record), nil
}

func (p ProfileRepository) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := p.Get(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func fromProfile(profile domain.Profile) profileRecord {
	return profileRecord{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
		Role:        string(profile.Role),
	}
}

func toProfile(record profileRecord) domain.Profile {
	return domain.Profile{
		ID:          record.ID,
		DisplayName: record.DisplayName,
		AvatarURL:   record.AvatarURL,
		Role:        domain.Role(record.Role),
	}
}
