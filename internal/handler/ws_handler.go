package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"callingcard/internal/app/nearby"
	"callingcard/internal/pkg/auth/jwt"
	"callingcard/internal/pkg/errs"
	"callingcard/internal/pkg/limiter"
	"callingcard/internal/pkg/logx"
	"callingcard/internal/pkg/randx"
	"callingcard/internal/pkg/resp"
)

// HandleNearbyWebSocket creates an HTTP HandlerFunc joining a signed-in client to a vicinity.
func HandleNearbyWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", limiter.ClientIP(r))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		code := chi.URLParam(r, "vicinity")
		if !randx.IsValidVicinity(code) {
			logx.Warn("WebSocket request rejected: Invalid vicinity code", "vicinity", code)
			resp.RespondError(w, r, errs.NewError(errs.ErrVicinityInvalid))
			return
		}

		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			logx.Warn("WebSocket request rejected: Missing identity", "vicinity", code)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		logx.Info("Attempting to upgrade connection", "vicinity", code, "account_id", identity.ID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client, err := deps.Manager.Connect(code, conn, nearby.Identity{
			AccountID: identity.ID,
			Name:      identity.Name,
		})
		if err != nil {
			logx.Error(err, "Failed to join vicinity", "vicinity", code)
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			)
			conn.Close()
			return
		}

		go client.WritePump()

		logx.Info("WebSocket connection established and client registered", "session_id", client.SessionID(), "vicinity", code)

		client.ReadPump()
	}
}
