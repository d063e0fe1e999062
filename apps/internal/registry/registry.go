// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package registry memoizes values created on first use of a key.
package registry

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CreateFunc builds the value for key.
type CreateFunc[V any] func(ctx context.Context, key string) (V, error)

// Registry maps keys to values that are created once and never evicted.
// A failed creation leaves no entry, the next caller tries again.
type Registry[V any] struct {
	mu      sync.RWMutex
	entries map[string]V

	group singleflight.Group
}

// New creates an empty Registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{entries: map[string]V{}}
}

// Get returns the value for key if it exists.
func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// GetOrCreate returns the value for key, calling create if there is none. Concurrent
// callers for the same key share one call to create and all receive its result.
func (r *Registry[V]) GetOrCreate(ctx context.Context, key string, create CreateFunc[V]) (V, error) {
	if v, ok := r.Get(key); ok {
		return v, nil
	}

	res, err, _ := r.group.Do(key, func() (interface{}, error) {
		// A creation that finished between Get and Do already published its value.
		if v, ok := r.Get(key); ok {
			return v, nil
		}
		// Waiters share this call, so one caller's cancellation must not fail the rest.
		v, err := create(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.entries[key] = v
		r.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Values returns a snapshot of the values, in no particular order.
func (r *Registry[V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vals := make([]V, 0, len(r.entries))
	for _, v := range r.entries {
		vals = append(vals, v)
	}
	return vals
}
