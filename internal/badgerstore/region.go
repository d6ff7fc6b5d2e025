package badgerstore

import (
	"context"
	"errors"
)

// RegionStore implements services.Storage over a DB, namespacing every
// region (0–8) with a single distinguishing prefix byte so one
// underlying database holds an isolated keyspace per region.
type RegionStore struct {
	db DB
}

// NewRegionStore wraps db with region-prefixed access.
func NewRegionStore(db DB) *RegionStore {
	return &RegionStore{db: db}
}

func regionKey(region uint8, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = region
	copy(out[1:], key)
	return out
}

func (r *RegionStore) Store(ctx context.Context, region uint8, key, value []byte) (bool, error) {
	if err := r.db.Put(regionKey(region, key), value); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RegionStore) Load(ctx context.Context, region uint8, key []byte) ([]byte, error) {
	v, err := r.db.Get(regionKey(region, key))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}
	return v, err
}

func (r *RegionStore) LoadMaybeEmpty(ctx context.Context, region uint8, key []byte) ([]byte, error) {
	v, err := r.db.Get(regionKey(region, key))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	return v, err
}

// ForEachInRegion iterates over every key in a region.
func (r *RegionStore) ForEachInRegion(region uint8, fn func(key, value []byte) error) error {
	return r.db.ForEach([]byte{region}, func(key, value []byte) error {
		return fn(key[1:], value)
	})
}

// Close releases the underlying database.
func (r *RegionStore) Close() error {
	return r.db.Close()
}
