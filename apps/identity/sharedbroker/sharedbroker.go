// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package sharedbroker implements identity.Broker over a token cache shared by several
// applications, such as a Redis store. Accounts are the users holding grants in the
// shared cache; silent requests are served from it and refreshed with a Provider.
package sharedbroker

import (
	"context"
	"sort"
	"time"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/identity"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/tokens"
)

// Broker is an identity.Broker. It is safe for concurrent use if its store is.
type Broker struct {
	store    cache.Store
	provider identity.Provider
	now      func() time.Time
}

// New creates a Broker over store, refreshing tokens with provider.
func New(store cache.Store, provider identity.Provider) *Broker {
	return &Broker{store: store, provider: provider, now: time.Now}
}

// Accounts implements identity.Broker.Accounts(). The account whose latest grant expires
// last comes first. A store that cannot be enumerated has no known accounts.
func (b *Broker) Accounts(ctx context.Context) ([]cache.UserInfo, error) {
	q, ok := b.store.Querier()
	if !ok {
		return nil, nil
	}

	latest := map[string]time.Time{}
	users := map[string]cache.UserInfo{}
	for item, err := range q.All(ctx) {
		if err != nil {
			return nil, errors.Wrap(errors.KindUnknown, err, "reading broker cache")
		}
		id := item.UserInfo.UserID
		if id == "" {
			continue
		}
		if t, ok := latest[id]; !ok || item.ExpiresOn.After(t) {
			latest[id] = item.ExpiresOn
			users[id] = item.UserInfo
		}
	}

	accounts := make([]cache.UserInfo, 0, len(users))
	for _, u := range users {
		accounts = append(accounts, u)
	}
	sort.Slice(accounts, func(i, j int) bool {
		ti, tj := latest[accounts[i].UserID], latest[accounts[j].UserID]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return accounts[i].UserID < accounts[j].UserID
	})
	return accounts, nil
}

// AcquireTokenSilent implements identity.Broker.AcquireTokenSilent().
func (b *Broker) AcquireTokenSilent(ctx context.Context, req identity.SilentRequest) (identity.Token, error) {
	return tokens.Silent(ctx, b.store, b.provider, req, b.now())
}

// Save implements identity.Broker.Save().
func (b *Broker) Save(ctx context.Context, items ...cache.Item) error {
	for _, item := range items {
		if err := b.store.Set(ctx, item.Key(), item); err != nil {
			return errors.Wrap(errors.KindUnknown, err, "writing broker cache")
		}
	}
	return nil
}
