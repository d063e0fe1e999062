// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package pending tracks requests waiting on an external signal, keyed by correlation id.
// Each entry is taken at most once.
package pending

import (
	"fmt"
	"sort"
	"sync"
)

// Table is a concurrency safe map of outstanding requests.
type Table[V any] struct {
	mu      sync.Mutex
	entries map[string]V
}

// New creates an empty Table.
func New[V any]() *Table[V] {
	return &Table[V]{entries: map[string]V{}}
}

// Add records v under id. Adding an id that is already outstanding is an error.
func (t *Table[V]) Add(id string, v V) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		return fmt.Errorf("request %s is already pending", id)
	}
	t.entries[id] = v
	return nil
}

// Take removes and returns the entry for id.
func (t *Table[V]) Take(id string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return v, ok
}

// TakeOnly removes and returns the single outstanding entry. It fails if there are
// none or more than one.
func (t *Table[V]) TakeOnly() (string, V, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero V
	switch len(t.entries) {
	case 0:
		return "", zero, fmt.Errorf("no request is pending")
	case 1:
		for id, v := range t.entries {
			delete(t.entries, id)
			return id, v, nil
		}
	}
	return "", zero, fmt.Errorf("%d requests are pending, a correlation id is required", len(t.entries))
}

// Drain removes and returns every entry, ordered by id.
func (t *Table[V]) Drain() []V {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.entries[id])
	}
	t.entries = map[string]V{}
	return out
}

// Len returns the number of outstanding entries.
func (t *Table[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
