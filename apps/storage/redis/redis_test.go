// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	// Quick availability check to allow graceful skip in environments without Redis
	c, err := ConnectFromEnv(context.Background())
	if err != nil {
		t.Skipf("skipping redis store tests: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	s := c.Store("test-" + uuid.NewString())
	t.Cleanup(func() { _ = s.RemoveAll(context.Background()) })
	return s
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	item := cache.Item{
		Authority:   "https://login.microsoftonline.com/common",
		Resource:    "https://graph.windows.net",
		ClientID:    "client",
		UserInfo:    cache.UserInfo{UserID: "uid", DisplayableID: "alice@contoso.com"},
		AccessToken: "at",
		ExpiresOn:   time.Now().Add(time.Hour).Round(time.Second),
	}

	if err := s.Set(ctx, item.Key(), item); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, item.Key())
	if err != nil || !ok || got.AccessToken != "at" {
		t.Fatalf("TestRoundTrip: Get() = (%+v, %v, %v)", got, ok, err)
	}

	q, _ := s.Querier()
	n := 0
	for i, err := range q.All(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		if i.Key() == item.Key() {
			n++
		}
	}
	if n != 1 {
		t.Errorf("TestRoundTrip: All() yielded the item %d times, want 1", n)
	}

	if err := s.Remove(ctx, item.Key()); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, item.Key()); err != nil {
		t.Errorf("TestRoundTrip: removing an absent key: %s", err)
	}
	if _, ok, _ := s.Get(ctx, item.Key()); ok {
		t.Errorf("TestRoundTrip: item still present after Remove")
	}
}

func TestOpaque(t *testing.T) {
	s := newStore(t)
	s.opaque = true
	if _, ok := s.Querier(); ok {
		t.Errorf("TestOpaque: store with scanning disabled reported a Querier")
	}
}
