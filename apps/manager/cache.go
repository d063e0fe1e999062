// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package manager

import (
	"context"
	"log/slog"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
)

// DeleteParams select the cache item CacheDelete removes.
type DeleteParams struct {
	// Authority selects the context.
	Authority         string
	ValidateAuthority bool
	// ItemAuthority is the authority recorded in the item, usually the same.
	ItemAuthority string
	Resource      string
	ClientID      string
	UserID        string
	IsMRRT        bool
}

// CacheClear removes every item of the authority's context.
func (m *Manager) CacheClear(ctx context.Context, authority string, validate bool) *Call[struct{}] {
	return submit(m, ctx, "tokenCacheClear", func(ctx context.Context) (struct{}, error) {
		ac, err := m.authContext(ctx, authority, validate)
		if err != nil {
			return struct{}{}, err
		}
		if err := ac.clear(ctx); err != nil {
			return struct{}{}, err
		}
		m.log.Info("token cache cleared", logger.Tag("manager"), slog.String("authority", ac.authority.Canonical))
		return struct{}{}, nil
	})
}

// CacheReadAll returns the items of the authority's context. Stores that cannot be
// enumerated give an empty list.
func (m *Manager) CacheReadAll(ctx context.Context, authority string, validate bool) *Call[[]cache.Item] {
	return submit(m, ctx, "tokenCacheReadItems", func(ctx context.Context) ([]cache.Item, error) {
		ac, err := m.authContext(ctx, authority, validate)
		if err != nil {
			return nil, err
		}
		return ac.items(ctx)
	})
}

// CacheDelete removes one item. Deleting an item that is not cached succeeds.
func (m *Manager) CacheDelete(ctx context.Context, p DeleteParams) *Call[struct{}] {
	return submit(m, ctx, "tokenCacheDeleteItem", func(ctx context.Context) (struct{}, error) {
		ac, err := m.authContext(ctx, p.Authority, p.ValidateAuthority)
		if err != nil {
			return struct{}{}, err
		}
		itemAuthority := cache.Normalize(p.ItemAuthority)
		if itemAuthority == "" {
			itemAuthority = ac.authority.Canonical
		}
		key := cache.Key(itemAuthority, p.Resource, p.ClientID, p.IsMRRT, p.UserID, "")
		m.log.Debug("deleting token cache item", logger.Tag("manager"), logger.Detail(key))
		return struct{}{}, ac.remove(ctx, key)
	})
}
