package prefs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callingcard/internal/app/prefs"
	"callingcard/internal/app/user"
)

func TestValidKey(t *testing.T) {
	assert.True(t, prefs.ValidKey("saved_users"))
	assert.True(t, prefs.ValidKey("ui.theme-v2"))
	assert.False(t, prefs.ValidKey(""))
	assert.False(t, prefs.ValidKey("Saved Users"))
	assert.False(t, prefs.ValidKey("../etc"))
}

func TestMemoryStore_ScopedPerAccount(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()

	a := prefs.Scoped(store, "account-a")
	b := prefs.Scoped(store, "account-b")

	require.NoError(t, a.Put(ctx, "k", []byte(`1`)))

	got, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `1`, string(got))

	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, prefs.ErrNotFound)

	assert.ErrorIs(t, a.Put(ctx, "BAD KEY", []byte(`1`)), prefs.ErrInvalidKey)
}

func TestSavedUsers_LoadMissingIsEmpty(t *testing.T) {
	saved := prefs.NewSavedUsers(prefs.Scoped(prefs.NewMemoryStore(), "acc"))

	users, err := saved.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestSavedUsers_SetOverwritesWholeList(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()
	saved := prefs.NewSavedUsers(prefs.Scoped(store, "acc"))

	ada := user.User{Name: "Ada", EmailAddress: "ada@example.com"}
	bob := user.User{Name: "Bob", EmailAddress: "bob@example.com"}

	require.NoError(t, saved.Set(ctx, []user.User{ada, bob}))
	require.NoError(t, saved.Set(ctx, []user.User{bob}))

	users, err := saved.Load(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, bob.Equal(users[0]))
	assert.Equal(t, 2, store.Writes())
}

func TestSavedUsers_LoadCorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "acc", prefs.SavedUsersKey, []byte(`{"not":"a list"}`)))

	_, err := prefs.NewSavedUsers(prefs.Scoped(store, "acc")).Load(ctx)
	assert.Error(t, err)
}
