package prefs

import (
	"context"
	"errors"
	"fmt"

	"callingcard/internal/app/user"
)

// SavedUsersKey is the single entry holding the saved roster.
const SavedUsersKey = "saved_users"

// SavedUsers reads and fully rewrites the saved roster.
type SavedUsers struct {
	store Store
}

// NewSavedUsers returns a SavedUsers backed by store.
func NewSavedUsers(store Store) *SavedUsers {
	return &SavedUsers{store: store}
}

// Load returns the stored roster; a missing entry is an empty roster.
func (s *SavedUsers) Load(ctx context.Context) ([]user.User, error) {
	data, err := s.store.Get(ctx, SavedUsersKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []user.User{}, nil
		}
		return nil, fmt.Errorf("load saved users: %w", err)
	}

	users, err := user.DecodeList(data)
	if err != nil {
		return nil, fmt.Errorf("load saved users: %w", err)
	}
	return users, nil
}

// Set overwrites the stored roster with users.
func (s *SavedUsers) Set(ctx context.Context, users []user.User) error {
	data, err := user.EncodeList(users)
	if err != nil {
		return fmt.Errorf("encode saved users: %w", err)
	}

	if err := s.store.Put(ctx, SavedUsersKey, data); err != nil {
		return fmt.Errorf("store saved users: %w", err)
	}
	return nil
}
