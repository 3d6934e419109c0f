package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"callingcard/internal/app/storage"
	"callingcard/internal/pkg/auth/jwt"
	"callingcard/internal/pkg/errs"
	"callingcard/internal/pkg/logx"
	"callingcard/internal/pkg/req"
	"callingcard/internal/pkg/resp"
)

// PresignPhotoInput defines the JSON input structure for generating a photo upload URL.
type PresignPhotoInput struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// HandlePresignPhotoUpload returns a time-limited PUT URL for a new profile photo and
// the public URL the photo will be served from.
func HandlePresignPhotoUpload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Storage == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrPhotosDisabled))
			return
		}

		identity := jwt.GetPayloadFromContext(r)

		var input PresignPhotoInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidatePhotoSize(input.FileSize); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidatePhotoType(input.FileName, input.MimeType); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		ext, _ := storage.ExtForMIME(input.MimeType)
		fileKey := storage.NewPhotoKey(identity.ID, ext)

		url, err := deps.Storage.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			storage.PresignedURLDuration,
		)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed, err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"photoUrl":     storage.PublicPhotoURL(deps.Config.PublicBaseURL, fileKey),
		})
	}
}

// HandleUploadPhoto stores the request body as the account's profile photo.
// The Content-Type header names the image type.
func HandleUploadPhoto(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Storage == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrPhotosDisabled))
			return
		}

		identity := jwt.GetPayloadFromContext(r)

		mimeType := r.Header.Get("Content-Type")
		ext, ok := storage.ExtForMIME(mimeType)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrPhotoTypeInvalid))
			return
		}

		if r.ContentLength > storage.MaxPhotoSize {
			resp.RespondError(w, r, errs.NewError(errs.ErrPhotoTooLarge))
			return
		}

		fileKey := storage.NewPhotoKey(identity.ID, ext)
		body := http.MaxBytesReader(w, r.Body, storage.MaxPhotoSize)

		if err := deps.Storage.Upload(r.Context(), fileKey, mimeType, body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				resp.RespondError(w, r, errs.NewError(errs.ErrPhotoTooLarge))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed, err))
			return
		}

		var previousKey string
		if acct, err := deps.Accounts.GetByID(r.Context(), identity.ID); err == nil {
			previousKey, _ = storage.KeyFromPublicURL(deps.Config.PublicBaseURL, acct.PhotoURL)
		}

		photoURL := storage.PublicPhotoURL(deps.Config.PublicBaseURL, fileKey)
		if err := deps.Accounts.SetPhotoURL(r.Context(), identity.ID, photoURL); err != nil {
			logx.Error(err, "photo: failed to record photo url", "account_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrDatabaseFailed))
			return
		}

		logx.Info("Profile photo uploaded", "account_id", identity.ID, "key", fileKey)

		if previousKey != "" && previousKey != fileKey {
			if err := deps.Storage.Delete(r.Context(), previousKey); err != nil {
				logx.Warn("photo: failed to delete replaced photo", "key", previousKey, "error", err)
			}
		}

		resp.RespondSuccess(w, r, map[string]any{
			"photoUrl": photoURL,
		})
	}
}

// HandleGetPhoto redirects to a presigned download of a profile photo. Photo URLs are
// embedded in broadcast calling cards, so this route is public.
func HandleGetPhoto(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Storage == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrPhotosDisabled))
			return
		}

		fileKey, err := storage.PhotoKey(chi.URLParam(r, "accountID"), chi.URLParam(r, "fileName"))
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		url, err := deps.Storage.PresignDownload(r.Context(), fileKey, storage.PresignedURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed, err))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}
