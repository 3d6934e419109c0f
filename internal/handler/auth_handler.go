package handler

import (
	"errors"
	"net/http"
	"time"

	"callingcard/internal/app/account"
	"callingcard/internal/app/user"
	"callingcard/internal/pkg/auth/jwt"
	"callingcard/internal/pkg/errs"
	"callingcard/internal/pkg/logx"
	"callingcard/internal/pkg/req"
	"callingcard/internal/pkg/resp"
)

type SignInInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoUrl"`
}

// HandleSignIn creates or refreshes the account for the presented profile and issues a JWT.
func HandleSignIn(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SignInInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		card, err := user.New(input.Name, input.Email, input.PhotoURL)
		if err != nil || !card.Valid() || !card.ValidEmail() {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidProfile))
			return
		}

		acct, err := deps.Accounts.SignIn(r.Context(), account.SignInParams{
			Email:    card.EmailAddress,
			Name:     card.Name,
			PhotoURL: input.PhotoURL,
		})
		if err != nil {
			logx.Error(err, "sign-in: failed to upsert account", "email", card.EmailAddress)
			resp.RespondError(w, r, errs.NewError(errs.ErrDatabaseFailed))
			return
		}

		payload := &jwt.Payload{
			ID:    acct.ID,
			Email: acct.Email,
			Name:  acct.Name,
		}

		token, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.IdentityExpiration)
		if err != nil {
			logx.Error(err, "sign-in: jwt generation failed", "account_id", acct.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("Account signed in", "account_id", acct.ID)

		resp.RespondSuccess(w, r, map[string]any{
			"token": token,
			"user":  profileResponse(acct),
		})
	}
}

// HandleSignOut acknowledges a sign-out. Tokens are stateless, so the client discards its own.
func HandleSignOut(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		logx.Info("Account signed out", "account_id", identity.ID)
		resp.RespondSuccess(w, r, nil)
	}
}

// HandleMe returns the signed-in account.
func HandleMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, customErr := currentAccount(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": profileResponse(acct),
		})
	}
}

type ConsentInput struct {
	Accept bool `json:"accept"`
}

// HandleNearbyConsent records the answer to the Nearby opt-in that a NEEDS_RESOLUTION
// status asks the client to present.
func HandleNearbyConsent(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input ConsentInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Accounts.SetNearbyConsent(r.Context(), identity.ID, input.Accept); err != nil {
			if errors.Is(err, account.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrAccountNotFound))
				return
			}
			logx.Error(err, "consent: failed to store decision", "account_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrDatabaseFailed))
			return
		}

		logx.Info("Nearby consent updated", "account_id", identity.ID, "accept", input.Accept)

		resp.RespondSuccess(w, r, map[string]any{
			"nearbyConsent": input.Accept,
		})
	}
}

func currentAccount(deps *AppDeps, r *http.Request) (account.Account, *errs.CustomError) {
	identity := jwt.GetPayloadFromContext(r)
	if identity == nil {
		return account.Account{}, errs.NewError(errs.ErrUnauthorized)
	}

	acct, err := deps.Accounts.GetByID(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			logx.Warn("token references unknown account", "account_id", identity.ID)
			return account.Account{}, errs.NewError(errs.ErrAccountNotFound)
		}
		logx.Error(err, "failed to load account", "account_id", identity.ID)
		return account.Account{}, errs.NewError(errs.ErrDatabaseFailed)
	}
	return acct, nil
}

func profileResponse(acct account.Account) map[string]any {
	profile := map[string]any{
		"id":            acct.ID,
		"name":          acct.Name,
		"emailAddress":  acct.Email,
		"nearbyConsent": acct.NearbyConsent,
		"lastSignInAt":  acct.LastSignInAt.Format(time.RFC3339),
	}
	if acct.PhotoURL != "" {
		profile["photoUrl"] = acct.PhotoURL
	}
	return profile
}
