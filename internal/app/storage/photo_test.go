package storage_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callingcard/internal/app/storage"
	"callingcard/internal/pkg/errs"
)

func TestValidatePhotoType(t *testing.T) {
	assert.Nil(t, storage.ValidatePhotoType("me.PNG", "image/png"))
	assert.Nil(t, storage.ValidatePhotoType("me.jpeg", "image/jpeg"))

	err := storage.ValidatePhotoType("me.png", "image/jpeg")
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrPhotoTypeInvalid, err.Code)

	assert.NotNil(t, storage.ValidatePhotoType("me", "image/png"))
	assert.NotNil(t, storage.ValidatePhotoType("me.svg", "image/svg+xml"))
}

func TestValidatePhotoSize(t *testing.T) {
	assert.Nil(t, storage.ValidatePhotoSize(1024))
	assert.NotNil(t, storage.ValidatePhotoSize(0))

	err := storage.ValidatePhotoSize(storage.MaxPhotoSize + 1)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrPhotoTooLarge, err.Code)
}

func TestPhotoKeyRoundTrip(t *testing.T) {
	accountID := uuid.NewString()

	key := storage.NewPhotoKey(accountID, ".PNG")
	assert.Regexp(t, `^photos/`+accountID+`/[0-9a-f-]{36}\.png$`, key)

	url := storage.PublicPhotoURL("https://cards.example.com/", key)
	assert.Equal(t, "https://cards.example.com/api/"+key, url)

	fileName := key[len("photos/"+accountID+"/"):]
	rebuilt, err := storage.PhotoKey(accountID, fileName)
	require.NoError(t, err)
	assert.Equal(t, key, rebuilt)
}

func TestPhotoKey_RejectsTraversal(t *testing.T) {
	accountID := uuid.NewString()

	for _, name := range []string{"", "../x.png", "a/b.png", ".hidden"} {
		_, err := storage.PhotoKey(accountID, name)
		assert.Error(t, err, name)
	}

	_, err := storage.PhotoKey("not-a-uuid", "a.png")
	assert.Error(t, err)
}

func TestKeyFromPublicURL(t *testing.T) {
	accountID := uuid.NewString()
	key := storage.NewPhotoKey(accountID, ".jpg")

	got, ok := storage.KeyFromPublicURL("https://cards.example.com", storage.PublicPhotoURL("https://cards.example.com", key))
	require.True(t, ok)
	assert.Equal(t, key, got)

	for _, foreign := range []string{
		"",
		"https://elsewhere.example.com/api/" + key,
		"https://cards.example.com/api/photos/" + accountID,
		"https://cards.example.com/api/photos/" + accountID + "/../x.png",
	} {
		_, ok := storage.KeyFromPublicURL("https://cards.example.com", foreign)
		assert.False(t, ok, foreign)
	}
}
