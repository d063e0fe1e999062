// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package redis provides a cache.Store kept in Redis, so several processes can share
// one token cache. Each store is a Redis hash mapping cache keys to JSON encoded items.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/errors"
)

// Config for Redis backed stores. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379". ENV: ADAL_REDIS_ADDR
	Addr string `env:"ADAL_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all hashes. ENV: ADAL_REDIS_KEY_PREFIX
	KeyPrefix string `env:"ADAL_REDIS_KEY_PREFIX,default=adal:cache:"`
	// DisableScan makes stores opaque, for deployments where HSCAN is not allowed.
	// ENV: ADAL_REDIS_DISABLE_SCAN
	DisableScan bool `env:"ADAL_REDIS_DISABLE_SCAN,default=false"`
}

// Client is a connection shared by the stores it creates.
type Client struct {
	rdb *redis.Client
	cfg Config
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "adal:cache:"
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(errors.KindConfiguration, err, "redis ping")
	}
	return &Client{rdb: rdb, cfg: cfg}, nil
}

// ConnectFromEnv builds a Client using envdecode to populate Config.
func ConnectFromEnv(ctx context.Context) (*Client, error) {
	var cfg Config
	// Defaults come from the struct tags, so a missing environment is not an error.
	_ = envdecode.Decode(&cfg)
	return Connect(ctx, cfg)
}

// Close closes the connection.
func (c *Client) Close() error { return c.rdb.Close() }

// Store returns the store for namespace, typically an authority.
func (c *Client) Store(namespace string) *Store {
	return &Store{
		rdb:    c.rdb,
		key:    c.cfg.KeyPrefix + strings.ToLower(namespace),
		opaque: c.cfg.DisableScan,
	}
}

// Store is a cache.Store in one Redis hash.
type Store struct {
	rdb    *redis.Client
	key    string
	opaque bool
}

// Get implements cache.Store.Get().
func (s *Store) Get(ctx context.Context, key string) (cache.Item, bool, error) {
	b, err := s.rdb.HGet(ctx, s.key, key).Bytes()
	if err == redis.Nil {
		return cache.Item{}, false, nil
	}
	if err != nil {
		return cache.Item{}, false, networkErr(err)
	}
	var item cache.Item
	if err := json.Unmarshal(b, &item); err != nil {
		return cache.Item{}, false, fmt.Errorf("decoding cache item %s: %w", key, err)
	}
	return item, true, nil
}

// Set implements cache.Store.Set().
func (s *Store) Set(ctx context.Context, key string, item cache.Item) error {
	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return networkErr(s.rdb.HSet(ctx, s.key, key, b).Err())
}

// Remove implements cache.Store.Remove().
func (s *Store) Remove(ctx context.Context, key string) error {
	return networkErr(s.rdb.HDel(ctx, s.key, key).Err())
}

// RemoveAll implements cache.Store.RemoveAll().
func (s *Store) RemoveAll(ctx context.Context) error {
	return networkErr(s.rdb.Del(ctx, s.key).Err())
}

// Querier implements cache.Store.Querier().
func (s *Store) Querier() (cache.Querier, bool) {
	if s.opaque {
		return nil, false
	}
	return s, true
}

// All implements cache.Querier.All(). Items are fetched lazily with HSCAN, so writes
// made while iterating may or may not be observed.
func (s *Store) All(ctx context.Context) iter.Seq2[cache.Item, error] {
	return func(yield func(cache.Item, error) bool) {
		var cursor uint64
		for {
			kvs, cur, err := s.rdb.HScan(ctx, s.key, cursor, "*", 50).Result()
			if err != nil {
				yield(cache.Item{}, networkErr(err))
				return
			}
			// HSCAN returns field, value pairs.
			for i := 0; i+1 < len(kvs); i += 2 {
				var item cache.Item
				if err := json.Unmarshal([]byte(kvs[i+1]), &item); err != nil {
					if !yield(cache.Item{}, fmt.Errorf("decoding cache item %s: %w", kvs[i], err)) {
						return
					}
					continue
				}
				if !yield(item, nil) {
					return
				}
			}
			if cur == 0 {
				return
			}
			cursor = cur
		}
	}
}

func networkErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(errors.KindNetwork, err, "redis")
}
