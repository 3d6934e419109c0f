/*
Package prefs is the key/value preference store.

Values are opaque JSON documents. The server keeps them per account in PostgreSQL;
clients see a single-account Store, either remote (over the REST API) or in memory.
*/
package prefs

import (
	"context"
	"errors"
	"regexp"
)

// ErrNotFound is returned when no value is stored under a key.
var ErrNotFound = errors.New("preference not found")

// ErrInvalidKey is returned for keys that fail ValidKey.
var ErrInvalidKey = errors.New("invalid preference key")

var keyPattern = regexp.MustCompile(`^[a-z0-9_.-]{1,64}$`)

// ValidKey reports whether key is 1-64 characters of [a-z0-9_.-].
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Store is a single-account key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// AccountStore is a key/value store partitioned by account id.
type AccountStore interface {
	Get(ctx context.Context, accountID, key string) ([]byte, error)
	Put(ctx context.Context, accountID, key string, value []byte) error
}

// Scoped binds an AccountStore to one account.
func Scoped(s AccountStore, accountID string) Store {
	return scopedStore{store: s, accountID: accountID}
}

type scopedStore struct {
	store     AccountStore
	accountID string
}

func (s scopedStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.store.Get(ctx, s.accountID, key)
}

func (s scopedStore) Put(ctx context.Context, key string, value []byte) error {
	return s.store.Put(ctx, s.accountID, key, value)
}
