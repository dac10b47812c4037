// Package repository holds the shared-state adapters of the duel engine.
package repository

import (
	"context"
	"time"

	"algoarena/internal/common/cache"
	appErr "algoarena/pkg/errors"
)

const (
	roomIDKeyPrefix = "duel:room:"
	defaultRoomTTL  = 24 * time.Hour
)

// RoomIDStore reserves room codes in Redis so instances sharing a cache never
// hand out the same code twice.
type RoomIDStore struct {
	cache    cache.Cache
	ttl      time.Duration
	instance string
}

// NewRoomIDStore creates a store. instance is written as the key value to help
// operators see which server owns a code.
func NewRoomIDStore(c cache.Cache, ttl time.Duration, instance string) *RoomIDStore {
	if ttl <= 0 {
		ttl = defaultRoomTTL
	}
	if instance == "" {
		instance = "1"
	}
	return &RoomIDStore{cache: c, ttl: ttl, instance: instance}
}

// Reserve claims roomID and reports false when another room holds it.
func (s *RoomIDStore) Reserve(ctx context.Context, roomID string) (bool, error) {
	ok, err := s.cache.SetNX(ctx, roomIDKeyPrefix+roomID, s.instance, s.ttl)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "reserve room id %s", roomID)
	}
	return ok, nil
}

// Release frees roomID.
func (s *RoomIDStore) Release(ctx context.Context, roomID string) error {
	if err := s.cache.Del(ctx, roomIDKeyPrefix+roomID); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "release room id %s", roomID)
	}
	return nil
}
