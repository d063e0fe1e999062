// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"testing"
	"time"
)

const (
	testAuthority = "https://login.microsoftonline.com/contoso"
	testResource  = "https://graph.windows.net"
	testClientID  = "my_client_id"
	testUser      = "user@contoso.com"
)

func TestKeyDeterministic(t *testing.T) {
	first := Key(testAuthority, testResource, testClientID, false, testUser, "tid")
	for i := 0; i < 10; i++ {
		if got := Key(testAuthority, testResource, testClientID, false, testUser, "tid"); got != first {
			t.Fatalf("TestKeyDeterministic: run %d got %q, want %q", i, got, first)
		}
	}

	// The format is stable across processes, so pin it.
	want := "https://login.microsoftonline.com/contoso$https://graph.windows.net$my_client_id$n$user@contoso.com$tid"
	if first != want {
		t.Errorf("TestKeyDeterministic: got %q, want %q", first, want)
	}
}

func TestKeyPlaceholder(t *testing.T) {
	tests := []struct {
		desc string
		a, b string
	}{
		{
			desc: "resource and user",
			a:    Key(testAuthority, "null", testClientID, false, "null", ""),
			b:    Key(testAuthority, "", testClientID, false, "", ""),
		},
		{
			desc: "tenant",
			a:    Key(testAuthority, testResource, testClientID, true, testUser, "null"),
			b:    Key(testAuthority, testResource, testClientID, true, testUser, ""),
		},
	}

	for _, test := range tests {
		if test.a != test.b {
			t.Errorf("TestKeyPlaceholder(%s): %q != %q", test.desc, test.a, test.b)
		}
	}
}

func TestKeyNormalization(t *testing.T) {
	a := Key("https://LOGIN.microsoftonline.com/Contoso/", testResource, "MY_CLIENT_ID", false, "User@Contoso.com", "")
	b := Key(testAuthority, testResource, testClientID, false, testUser, "")
	if a != b {
		t.Errorf("TestKeyNormalization: %q != %q", a, b)
	}
}

func TestKeyDistinct(t *testing.T) {
	keys := []string{
		Key(testAuthority, testResource, testClientID, false, testUser, ""),
		Key(testAuthority, testResource, testClientID, true, testUser, ""),
		Key(testAuthority, "", testClientID, false, testUser, ""),
		Key(testAuthority, testResource, "other_client", false, testUser, ""),
		Key(testAuthority, testResource, testClientID, false, "", ""),
		Key(testAuthority, testResource, testClientID, false, testUser, "tid"),
		Key("https://login.microsoftonline.com/fabrikam", testResource, testClientID, false, testUser, ""),
		// Separators inside fields must not shift field boundaries.
		Key(testAuthority, "a$b", "c", false, "", ""),
		Key(testAuthority, "a", "b$c", false, "", ""),
		Key(testAuthority, "a%24b", "c", false, "", ""),
	}

	seen := map[string]int{}
	for i, k := range keys {
		if j, ok := seen[k]; ok {
			t.Errorf("TestKeyDistinct: key %d collides with key %d: %q", i, j, k)
		}
		seen[k] = i
	}
}

func TestItemKeys(t *testing.T) {
	item := Item{
		Authority: testAuthority,
		Resource:  testResource,
		ClientID:  testClientID,
		UserInfo:  UserInfo{UserID: "oid", DisplayableID: testUser},
		TenantID:  "tid",
	}
	if got, want := item.Key(), Key(testAuthority, testResource, testClientID, false, "oid", ""); got != want {
		t.Errorf("TestItemKeys: Key() got %q, want %q", got, want)
	}
	if got, want := item.KeyFor(testUser), Key(testAuthority, testResource, testClientID, false, testUser, ""); got != want {
		t.Errorf("TestItemKeys: KeyFor() got %q, want %q", got, want)
	}
}

func TestItemExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		desc string
		item Item
		want bool
	}{
		{desc: "no access token", item: Item{ExpiresOn: now.Add(time.Hour)}, want: true},
		{desc: "inside skew", item: Item{AccessToken: "at", ExpiresOn: now.Add(time.Minute)}, want: true},
		{desc: "valid", item: Item{AccessToken: "at", ExpiresOn: now.Add(time.Hour)}, want: false},
	}

	for _, test := range tests {
		if got := test.item.Expired(now, 5*time.Minute); got != test.want {
			t.Errorf("TestItemExpired(%s): got %v, want %v", test.desc, got, test.want)
		}
	}
}

func TestUserInfoMatches(t *testing.T) {
	u := UserInfo{UserID: "oid", DisplayableID: testUser}
	if !u.Matches("USER@contoso.com") {
		t.Errorf("TestUserInfoMatches: displayable id should match case insensitively")
	}
	if !u.Matches("oid") {
		t.Errorf("TestUserInfoMatches: unique id should match")
	}
	if u.Matches("") {
		t.Errorf("TestUserInfoMatches: empty id must never match")
	}
}
