// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package cache defines the token cache item, the cache key codec and the storage
interfaces that third parties implement to hold token data.

A Store addresses items only by the key built with Key(). Some stores can also enumerate
their contents; those expose it through Store.Querier(). Callers branch on that result and
never type assert a Store. The encoding a Store uses at rest is its own business.
*/
package cache

import (
	"context"
	"iter"
	"strings"
	"time"
)

// Placeholder is the literal some transports send in place of an absent string.
const Placeholder = "null"

// Normalize maps the Placeholder to "". Any other value is returned unchanged.
func Normalize(s string) string {
	if s == Placeholder {
		return ""
	}
	return s
}

// UserInfo identifies the user an item was issued to.
type UserInfo struct {
	// UserID is the stable backing identifier (object id or subject).
	UserID string `json:"userId,omitempty"`
	// DisplayableID is the human facing alias, usually the UPN or email.
	DisplayableID    string `json:"displayableId,omitempty"`
	GivenName        string `json:"givenName,omitempty"`
	FamilyName       string `json:"familyName,omitempty"`
	IdentityProvider string `json:"identityProvider,omitempty"`
}

// IsZero reports whether u carries no identity.
func (u UserInfo) IsZero() bool {
	return u == UserInfo{}
}

// Matches reports whether id names this user, by either form of identifier.
// Comparison is case insensitive, as identity providers treat both forms that way.
func (u UserInfo) Matches(id string) bool {
	if id == "" {
		return false
	}
	return strings.EqualFold(u.UserID, id) || strings.EqualFold(u.DisplayableID, id)
}

// Item is one cached credential grant.
type Item struct {
	Authority string   `json:"authority"`
	Resource  string   `json:"resource,omitempty"`
	ClientID  string   `json:"clientId"`
	UserInfo  UserInfo `json:"userInfo"`
	// IsMultipleResourceRefreshToken marks a refresh token usable for any resource.
	// Such items have an empty Resource and no access token.
	IsMultipleResourceRefreshToken bool      `json:"isMultipleResourceRefreshToken"`
	TenantID                       string    `json:"tenantId,omitempty"`
	ExpiresOn                      time.Time `json:"expiresOn"`
	AccessToken                    string    `json:"accessToken,omitempty"`
	AccessTokenType                string    `json:"accessTokenType,omitempty"`
	RefreshToken                   string    `json:"refreshToken,omitempty"`
	RawIDToken                     string    `json:"idToken,omitempty"`
}

// Key outputs the key that can be used to uniquely look up this entry in a store.
// Stores may hold the same grant under other keys as well (see KeyFor).
func (i Item) Key() string {
	return i.KeyFor(i.UserInfo.UserID)
}

// KeyFor outputs the key of this entry when it is stored under userID rather than the
// user's unique id. An empty userID gives the user independent key.
// Entries are keyed without a tenant: lookups and deletes do not know it up front.
func (i Item) KeyFor(userID string) string {
	return Key(i.Authority, i.Resource, i.ClientID, i.IsMultipleResourceRefreshToken, userID, "")
}

// Expired reports whether the access token expires within skew of now.
func (i Item) Expired(now time.Time, skew time.Duration) bool {
	return i.AccessToken == "" || !i.ExpiresOn.After(now.Add(skew))
}

// Store holds cache items for one authentication context. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the item stored under key. ok is false if there is none.
	Get(ctx context.Context, key string) (item Item, ok bool, err error)
	// Set stores item under key, replacing what was there.
	Set(ctx context.Context, key string, item Item) error
	// Remove deletes the item under key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// RemoveAll empties the store.
	RemoveAll(ctx context.Context) error
	// Querier returns the enumeration capability of the store. ok is false for opaque stores.
	Querier() (q Querier, ok bool)
}

// Querier enumerates a store.
type Querier interface {
	// All yields every item in the store. Iteration stops at the first error, which is yielded.
	All(ctx context.Context) iter.Seq2[Item, error]
}

// ForUser collects the items in q that belong to userID (either form of identifier).
func ForUser(ctx context.Context, q Querier, userID string) ([]Item, error) {
	var items []Item
	for item, err := range q.All(ctx) {
		if err != nil {
			return nil, err
		}
		if item.UserInfo.Matches(userID) {
			items = append(items, item)
		}
	}
	return items, nil
}
