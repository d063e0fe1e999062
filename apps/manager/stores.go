// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package manager

import (
	"context"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/keybootstrap"
	"github.com/AzureAD/adal-broker-for-go/apps/storage/file"
	"github.com/AzureAD/adal-broker-for-go/apps/storage/memory"
	"github.com/AzureAD/adal-broker-for-go/apps/storage/redis"
)

// StoreFactory opens the token store of a new context. authority is the canonical
// authority URL. A failure aborts the context's creation.
type StoreFactory func(ctx context.Context, authority string) (cache.Store, error)

// MemoryStores keeps every context's tokens in process memory.
func MemoryStores(opts ...memory.Option) StoreFactory {
	return func(context.Context, string) (cache.Store, error) {
		return memory.New(opts...), nil
	}
}

// FileStores keeps each context's tokens in an encrypted file in dir. The encryption
// key is derived from the passphrase src provides when the context is created.
func FileStores(dir string, src keybootstrap.Source, opts ...file.Option) StoreFactory {
	return func(ctx context.Context, authority string) (cache.Store, error) {
		key, err := keybootstrap.Key(ctx, src)
		if err != nil {
			return nil, err
		}
		s, err := file.Open(file.PathFor(dir, authority), key, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// RedisStores keeps each context's tokens in a Redis hash named after the authority.
func RedisStores(c *redis.Client) StoreFactory {
	return func(_ context.Context, authority string) (cache.Store, error) {
		return c.Store(authority), nil
	}
}
