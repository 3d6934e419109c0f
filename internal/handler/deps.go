package handler

import (
	"callingcard/internal/app/account"
	"callingcard/internal/app/nearby"
	"callingcard/internal/app/prefs"
	"callingcard/internal/app/storage"
	"callingcard/internal/configs"
)

// AppDeps bundles what the handlers need.
type AppDeps struct {
	Manager  *nearby.Manager
	Config   *configs.AppConfig
	Accounts account.Repository
	Prefs    prefs.AccountStore

	// Storage is nil when photo storage is not configured.
	Storage storage.StorageService
}
