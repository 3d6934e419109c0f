// Package handler serves the Calling Card REST API and the Nearby websocket.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"callingcard/internal/pkg/auth/jwt"
	"callingcard/internal/pkg/limiter"
	"callingcard/internal/pkg/logx"
	"callingcard/internal/pkg/resp"
)

const (
	SignInRate  = 0.2
	SignInBurst = 5
	JoinRate    = 0.5
	JoinBurst   = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
func Router(deps *AppDeps) http.Handler {
	signInLimiter := limiter.NewIPRateLimiter(rate.Limit(SignInRate), SignInBurst)
	joinLimiter := limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// Native clients send no Origin.
			if origin == "" || deps.Config.IsDevelopment() {
				return true
			}

			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":     "ok",
			"service":    "Calling Card Server",
			"vicinities": deps.Manager.Count(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/auth", func(auth chi.Router) {
			auth.With(signInLimiter.Middleware).Post("/signin", HandleSignIn(deps))

			auth.Group(func(authed chi.Router) {
				authed.Use(jwt.RequireIdentity)
				authed.Post("/signout", HandleSignOut(deps))
				authed.Get("/me", HandleMe(deps))
			})
		})

		api.Group(func(authed chi.Router) {
			authed.Use(jwt.RequireIdentity)

			authed.Post("/nearby/consent", HandleNearbyConsent(deps))

			authed.Get("/prefs/{key}", HandleGetPreference(deps))
			authed.Put("/prefs/{key}", HandlePutPreference(deps))

			authed.Post("/photos/presign", HandlePresignPhotoUpload(deps))
			authed.Post("/photos/upload", HandleUploadPhoto(deps))
		})

		api.Get("/photos/{accountID}/{fileName}", HandleGetPhoto(deps))
	})

	r.With(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret)).
		Get("/ws/nearby/{vicinity}", HandleNearbyWebSocket(deps, wsUpgrader, joinLimiter))

	return r
}
