// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package manager

import (
	"context"
	"iter"
	"sync"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/authority"
)

// authContext is the state kept for one authority. Contexts are created on first use
// and live as long as the Manager.
type authContext struct {
	authority authority.Info

	// mu serializes access to store.
	mu    sync.Mutex
	store cache.Store
}

// querier returns the store's enumeration capability, nil for opaque stores.
func (c *authContext) querier() cache.Querier {
	if q, ok := c.store.Querier(); ok {
		return q
	}
	return nil
}

// readAll yields every cached item. Opaque stores yield nothing.
func (c *authContext) readAll(ctx context.Context) iter.Seq2[cache.Item, error] {
	q := c.querier()
	if q == nil {
		return func(func(cache.Item, error) bool) {}
	}
	return q.All(ctx)
}

// remove deletes the item under key. An absent key is not an error.
func (c *authContext) remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Remove(ctx, key)
}

// clear empties the store.
func (c *authContext) clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.RemoveAll(ctx)
}

// items collects readAll.
func (c *authContext) items(ctx context.Context) ([]cache.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := []cache.Item{}
	for item, err := range c.readAll(ctx) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
