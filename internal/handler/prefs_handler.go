package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"callingcard/internal/app/prefs"
	"callingcard/internal/pkg/auth/jwt"
	"callingcard/internal/pkg/errs"
	"callingcard/internal/pkg/logx"
	"callingcard/internal/pkg/req"
	"callingcard/internal/pkg/resp"
)

// HandleGetPreference returns the JSON value stored under {key} for the signed-in account.
func HandleGetPreference(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		key := chi.URLParam(r, "key")
		if !prefs.ValidKey(key) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPreferenceKeyInvalid))
			return
		}

		value, err := deps.Prefs.Get(r.Context(), identity.ID, key)
		if err != nil {
			if errors.Is(err, prefs.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrPreferenceNotFound))
				return
			}
			logx.Error(err, "prefs: read failed", "account_id", identity.ID, "key", key)
			resp.RespondError(w, r, errs.NewError(errs.ErrDatabaseFailed))
			return
		}

		resp.RespondSuccess(w, r, json.RawMessage(value))
	}
}

// HandlePutPreference overwrites {key} with the request body, which must be one JSON value.
func HandlePutPreference(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		key := chi.URLParam(r, "key")
		if !prefs.ValidKey(key) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPreferenceKeyInvalid))
			return
		}

		value, customErr := req.ReadJSON(w, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Prefs.Put(r.Context(), identity.ID, key, value); err != nil {
			logx.Error(err, "prefs: write failed", "account_id", identity.ID, "key", key)
			resp.RespondError(w, r, errs.NewError(errs.ErrDatabaseFailed))
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}
