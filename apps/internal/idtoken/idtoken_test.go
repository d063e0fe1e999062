// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package idtoken

import (
	"testing"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kylelemons/godebug/pretty"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-checked"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestParse(t *testing.T) {
	tests := []struct {
		desc       string
		claims     jwt.MapClaims
		wantUser   cache.UserInfo
		wantTenant string
	}{
		{
			desc: "aad",
			claims: jwt.MapClaims{
				"iss":         "https://sts.windows.net/tid/",
				"sub":         "subject",
				"oid":         "object-id",
				"tid":         "tid",
				"upn":         "alice@contoso.com",
				"email":       "alice@mail.contoso.com",
				"given_name":  "Alice",
				"family_name": "Smith",
			},
			wantUser: cache.UserInfo{
				UserID:           "object-id",
				DisplayableID:    "alice@contoso.com",
				GivenName:        "Alice",
				FamilyName:       "Smith",
				IdentityProvider: "https://sts.windows.net/tid/",
			},
			wantTenant: "tid",
		},
		{
			desc: "guest",
			claims: jwt.MapClaims{
				"sub":         "subject",
				"unique_name": "live.com#bob@outlook.com",
				"idp":         "live.com",
			},
			wantUser: cache.UserInfo{
				UserID:           "subject",
				DisplayableID:    "live.com#bob@outlook.com",
				IdentityProvider: "live.com",
			},
		},
	}

	for _, test := range tests {
		c, err := Parse(sign(t, test.claims))
		if err != nil {
			t.Errorf("TestParse(%s): %s", test.desc, err)
			continue
		}
		if diff := pretty.Compare(test.wantUser, c.UserInfo()); diff != "" {
			t.Errorf("TestParse(%s): -want/+got:\n%s", test.desc, diff)
		}
		if c.TenantID != test.wantTenant {
			t.Errorf("TestParse(%s): tenant %q, want %q", test.desc, c.TenantID, test.wantTenant)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, raw := range []string{"", "abc", "a.b.c"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("TestParseInvalid(%q): got err == nil, want err != nil", raw)
		}
	}
}
