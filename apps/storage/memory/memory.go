// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package memory provides an in-memory cache.Store. It is the default store of an
// authentication context and loses its contents when the process exits.
package memory

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
)

// Option configures a Store.
type Option func(s *Store)

// WithoutQuery makes the store opaque: Querier reports no enumeration support.
func WithoutQuery() Option {
	return func(s *Store) {
		s.opaque = true
	}
}

// Store is a map backed cache.Store.
type Store struct {
	itemsMu sync.RWMutex
	items   map[string]cache.Item

	opaque bool
}

// New is the constructor for Store.
func New(options ...Option) *Store {
	s := &Store{items: map[string]cache.Item{}}
	for _, o := range options {
		o(s)
	}
	return s
}

// Get implements cache.Store.Get().
func (s *Store) Get(_ context.Context, key string) (cache.Item, bool, error) {
	s.itemsMu.RLock()
	defer s.itemsMu.RUnlock()
	item, ok := s.items[key]
	return item, ok, nil
}

// Set implements cache.Store.Set().
func (s *Store) Set(_ context.Context, key string, item cache.Item) error {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	s.items[key] = item
	return nil
}

// Remove implements cache.Store.Remove().
func (s *Store) Remove(_ context.Context, key string) error {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	delete(s.items, key)
	return nil
}

// RemoveAll implements cache.Store.RemoveAll().
func (s *Store) RemoveAll(context.Context) error {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	s.items = map[string]cache.Item{}
	return nil
}

// Querier implements cache.Store.Querier().
func (s *Store) Querier() (cache.Querier, bool) {
	if s.opaque {
		return nil, false
	}
	return s, true
}

// All implements cache.Querier.All(). It yields a snapshot ordered by key, so writes
// made while iterating are not observed.
func (s *Store) All(ctx context.Context) iter.Seq2[cache.Item, error] {
	return func(yield func(cache.Item, error) bool) {
		s.itemsMu.RLock()
		keys := make([]string, 0, len(s.items))
		for k := range s.items {
			keys = append(keys, k)
		}
		snapshot := make(map[string]cache.Item, len(s.items))
		for k, v := range s.items {
			snapshot[k] = v
		}
		s.itemsMu.RUnlock()

		sort.Strings(keys)
		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				yield(cache.Item{}, err)
				return
			}
			if !yield(snapshot[k], nil) {
				return
			}
		}
	}
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.itemsMu.RLock()
	defer s.itemsMu.RUnlock()
	return len(s.items)
}
