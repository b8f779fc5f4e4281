package repository

import (
	"context"
	"sync"
	"time"

	"task_manager/internal/domain/models"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// MemoryTokenRepo keeps refresh tokens in process memory. It is meant for
// local runs and tests; records are lost on restart. Expired entries stay
// invisible to lookups and are dropped by DeleteExpiredTokens.
type MemoryTokenRepo struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	// no janitor, the sweeper owns cleanup
	return &MemoryTokenRepo{cache: cache.New(cache.NoExpiration, 0)}
}

func (r *MemoryTokenRepo) SaveRefreshToken(_ context.Context, token models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.set(token)

	return nil
}

func (r *MemoryTokenRepo) RefreshTokenExists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.cache.Get(id.String())

	return ok, nil
}

func (r *MemoryTokenRepo) DeleteRefreshToken(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.delete(id), nil
}

func (r *MemoryTokenRepo) DeleteAllUserTokens(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteAll(userID)

	return nil
}

func (r *MemoryTokenRepo) DeleteExpiredTokens(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.cache.ItemCount()
	r.cache.DeleteExpired()

	return int64(before - r.cache.ItemCount()), nil
}

func (r *MemoryTokenRepo) ReplaceUserTokens(_ context.Context, token models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteAll(token.UserID)
	r.set(token)

	return nil
}

func (r *MemoryTokenRepo) RotateRefreshToken(_ context.Context, oldID uuid.UUID, token models.RefreshToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.delete(oldID) {
		return false, nil
	}
	r.set(token)

	return true, nil
}

func (r *MemoryTokenRepo) set(token models.RefreshToken) {
	ttl := time.Until(token.ExpireAt)
	if ttl <= 0 {
		// go-cache treats a zero ttl as the default, store it already expired
		ttl = time.Nanosecond
	}

	r.cache.Set(token.ID.String(), token.UserID, ttl)
}

func (r *MemoryTokenRepo) delete(id uuid.UUID) bool {
	if _, ok := r.cache.Get(id.String()); !ok {
		return false
	}
	r.cache.Delete(id.String())

	return true
}

func (r *MemoryTokenRepo) deleteAll(userID uuid.UUID) {
	for id, item := range r.cache.Items() {
		if owner, ok := item.Object.(uuid.UUID); ok && owner == userID {
			r.cache.Delete(id)
		}
	}
}
