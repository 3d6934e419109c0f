package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"callingcard/internal/pkg/errs"
)

const (
	// MaxPhotoSize is the largest accepted profile photo in bytes.
	MaxPhotoSize = 5 * 1024 * 1024

	// PresignedURLDuration is how long presigned photo URLs stay valid.
	PresignedURLDuration = 5 * time.Minute

	photoKeyPrefix = "photos"
)

// ExtToMIME maps accepted photo extensions to their MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ValidatePhotoSize rejects empty or oversized photos.
func ValidatePhotoSize(size int64) *errs.CustomError {
	if size <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if size > MaxPhotoSize {
		return errs.NewError(errs.ErrPhotoTooLarge)
	}
	return nil
}

// ValidatePhotoType requires an image extension whose MIME type matches mimeType.
func ValidatePhotoType(fileName string, mimeType string) *errs.CustomError {
	ext := strings.ToLower(filepath.Ext(fileName))

	expectedMIME, ok := ExtToMIME[ext]
	if !ok || expectedMIME != strings.ToLower(mimeType) {
		return errs.NewError(errs.ErrPhotoTypeInvalid)
	}
	return nil
}

// ExtForMIME returns the canonical extension for an accepted MIME type.
func ExtForMIME(mimeType string) (string, bool) {
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/webp":
		return ".webp", true
	case "image/gif":
		return ".gif", true
	}
	return "", false
}

// NewPhotoKey returns a fresh object key for an account's photo.
func NewPhotoKey(accountID string, ext string) string {
	return path.Join(photoKeyPrefix, accountID, uuid.NewString()+strings.ToLower(ext))
}

// PhotoKey rebuilds the object key from the account and file name of a public photo URL.
// It rejects file names that would escape the account's prefix.
func PhotoKey(accountID string, fileName string) (string, error) {
	if fileName == "" || strings.ContainsAny(fileName, `/\`) || strings.HasPrefix(fileName, ".") {
		return "", fmt.Errorf("invalid photo file name %q", fileName)
	}
	if _, err := uuid.Parse(accountID); err != nil {
		return "", fmt.Errorf("invalid account id %q", accountID)
	}
	return path.Join(photoKeyPrefix, accountID, fileName), nil
}

// PublicPhotoURL returns the server URL that redirects to a presigned download of key.
func PublicPhotoURL(baseURL string, key string) string {
	return strings.TrimRight(baseURL, "/") + "/api/" + key
}

// KeyFromPublicURL reverses PublicPhotoURL. It reports false for URLs this server
// did not issue, such as a photo hosted elsewhere.
func KeyFromPublicURL(baseURL string, photoURL string) (string, bool) {
	rest, ok := strings.CutPrefix(photoURL, strings.TrimRight(baseURL, "/")+"/api/"+photoKeyPrefix+"/")
	if !ok {
		return "", false
	}
	accountID, fileName, ok := strings.Cut(rest, "/")
	if !ok {
		return "", false
	}
	key, err := PhotoKey(accountID, fileName)
	if err != nil {
		return "", false
	}
	return key, true
}
