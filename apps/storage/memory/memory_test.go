// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/kylelemons/godebug/pretty"
)

func testItem(user string) cache.Item {
	return cache.Item{
		Authority:   "https://login.microsoftonline.com/common",
		Resource:    "https://graph.windows.net",
		ClientID:    "client",
		UserInfo:    cache.UserInfo{UserID: user, DisplayableID: user + "@contoso.com"},
		AccessToken: "at-" + user,
		ExpiresOn:   time.Unix(1700000000, 0).UTC(),
	}
}

func readAll(t *testing.T, s *Store) []cache.Item {
	t.Helper()
	q, ok := s.Querier()
	if !ok {
		t.Fatalf("store is not queryable")
	}
	var items []cache.Item
	for item, err := range q.All(context.Background()) {
		if err != nil {
			t.Fatal(err)
		}
		items = append(items, item)
	}
	return items
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	item := testItem("alice")

	if err := s.Set(ctx, item.Key(), item); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, item.Key())
	if err != nil || !ok {
		t.Fatalf("TestRoundTrip: Get() = (%v, %v)", ok, err)
	}
	if diff := pretty.Compare(item, got); diff != "" {
		t.Errorf("TestRoundTrip: -want/+got:\n%s", diff)
	}

	found := false
	for _, i := range readAll(t, s) {
		if i.Key() == item.Key() {
			found = true
		}
	}
	if !found {
		t.Errorf("TestRoundTrip: All() did not yield the stored item")
	}

	if err := s.Remove(ctx, item.Key()); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, item.Key()); err != nil {
		t.Errorf("TestRoundTrip: removing an absent key: %s", err)
	}
	if items := readAll(t, s); len(items) != 0 {
		t.Errorf("TestRoundTrip: store still holds %d items", len(items))
	}
}

func TestRemoveAll(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, u := range []string{"a", "b", "c"} {
		item := testItem(u)
		_ = s.Set(ctx, item.Key(), item)
	}
	if s.Len() != 3 {
		t.Fatalf("TestRemoveAll: Len() = %d, want 3", s.Len())
	}
	if err := s.RemoveAll(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("TestRemoveAll: Len() = %d, want 0", s.Len())
	}
}

func TestAllStopsEarly(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, u := range []string{"a", "b", "c"} {
		item := testItem(u)
		_ = s.Set(ctx, item.Key(), item)
	}
	n := 0
	for range s.All(ctx) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("TestAllStopsEarly: iterated %d items, want 1", n)
	}
}

func TestWithoutQuery(t *testing.T) {
	s := New(WithoutQuery())
	if _, ok := s.Querier(); ok {
		t.Errorf("TestWithoutQuery: opaque store reported a Querier")
	}
}
