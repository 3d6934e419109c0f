package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps accounts in process memory. It backs development runs
// without DATABASE_URL and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Account
	idByKey map[string]string
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]Account),
		idByKey: make(map[string]string),
	}
}

func (r *MemoryRepository) SignIn(_ context.Context, params SignInParams) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if id, ok := r.idByKey[params.Email]; ok {
		a := r.byID[id]
		a.Name = params.Name
		if params.PhotoURL != "" {
			a.PhotoURL = params.PhotoURL
		}
		a.LastSignInAt = now
		r.byID[id] = a
		return a, nil
	}

	a := Account{
		ID:           uuid.NewString(),
		Email:        params.Email,
		Name:         params.Name,
		PhotoURL:     params.PhotoURL,
		CreatedAt:    now,
		LastSignInAt: now,
	}
	r.byID[a.ID] = a
	r.idByKey[a.Email] = a.ID
	return a, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepository) SetNearbyConsent(_ context.Context, id string, consent bool) error {
	return r.update(id, func(a *Account) { a.NearbyConsent = consent })
}

func (r *MemoryRepository) HasNearbyConsent(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byID[id].NearbyConsent, nil
}

func (r *MemoryRepository) SetPhotoURL(_ context.Context, id string, photoURL string) error {
	return r.update(id, func(a *Account) { a.PhotoURL = photoURL })
}

func (r *MemoryRepository) update(id string, fn func(a *Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&a)
	r.byID[id] = a
	return nil
}
