// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package tokens implements the cache side of token acquisition: finding a usable
// cached token, refreshing it, and writing grants back to the store.
package tokens

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/identity"
)

// ExpirySkew is how long before its expiry a cached access token stops being used.
const ExpirySkew = 5 * time.Minute

// Entry is an item and the key it is stored under.
type Entry struct {
	Key  string
	Item cache.Item
}

// Entries converts a grant into the cache entries that represent it: the access token
// entry and, for a multiple resource refresh token, the MRRT entry. Entries are keyed
// by the user's unique id.
func Entries(authority, clientID string, tok identity.Token) []Entry {
	item := cache.Item{
		Authority:       authority,
		Resource:        cache.Normalize(tok.Resource),
		ClientID:        clientID,
		UserInfo:        tok.UserInfo,
		TenantID:        tok.TenantID,
		ExpiresOn:       tok.ExpiresOn,
		AccessToken:     tok.AccessToken,
		AccessTokenType: tok.TokenType,
		RefreshToken:    tok.RefreshToken,
		RawIDToken:      tok.IDToken,
	}
	entries := []Entry{{Key: item.Key(), Item: item}}

	if tok.IsMRRT && tok.RefreshToken != "" {
		mrrt := item
		mrrt.Resource = ""
		mrrt.IsMultipleResourceRefreshToken = true
		mrrt.AccessToken = ""
		mrrt.AccessTokenType = ""
		mrrt.ExpiresOn = time.Time{}
		entries = append(entries, Entry{Key: mrrt.Key(), Item: mrrt})
	}
	return entries
}

// Save writes the entries of tok to store.
func Save(ctx context.Context, store cache.Store, authority, clientID string, tok identity.Token) ([]cache.Item, error) {
	entries := Entries(authority, clientID, tok)
	items := make([]cache.Item, 0, len(entries))
	for _, e := range entries {
		if err := store.Set(ctx, e.Key, e.Item); err != nil {
			return nil, errors.Wrap(errors.KindUnknown, err, "writing token cache")
		}
		items = append(items, e.Item)
	}
	return items, nil
}

// FromItem converts a cached item back into a token.
func FromItem(item cache.Item) identity.Token {
	return identity.Token{
		AccessToken:  item.AccessToken,
		TokenType:    item.AccessTokenType,
		RefreshToken: item.RefreshToken,
		IDToken:      item.RawIDToken,
		ExpiresOn:    item.ExpiresOn,
		Resource:     item.Resource,
		IsMRRT:       item.IsMultipleResourceRefreshToken,
		TenantID:     item.TenantID,
		UserInfo:     item.UserInfo,
	}
}

// Silent returns a token for req without user interaction. In order it tries: the
// cached access token if it is valid beyond ExpirySkew, a refresh with that entry's
// refresh token, and a refresh with the user's MRRT. Refreshed tokens are written back.
// A NoTokenFound error means the caller must fall back to an interactive flow.
func Silent(ctx context.Context, store cache.Store, p identity.Provider, req identity.SilentRequest, now time.Time) (identity.Token, error) {
	req.Resource = cache.Normalize(req.Resource)
	req.UserID = cache.Normalize(req.UserID)

	entry, ok, err := find(ctx, store, req.Authority, req.Resource, req.ClientID, false, req.UserID)
	if err != nil {
		return identity.Token{}, err
	}
	if ok {
		if !entry.Item.Expired(now, ExpirySkew) {
			return FromItem(entry.Item), nil
		}
		if entry.Item.RefreshToken != "" {
			tok, err := refresh(ctx, store, p, req, entry, false)
			if err == nil || !isInvalidGrant(err) {
				return tok, err
			}
		}
	}

	mrrt, ok, err := find(ctx, store, req.Authority, "", req.ClientID, true, req.UserID)
	if err != nil {
		return identity.Token{}, err
	}
	if ok && mrrt.Item.RefreshToken != "" {
		tok, err := refresh(ctx, store, p, req, mrrt, true)
		if err != nil && isInvalidGrant(err) {
			return identity.Token{}, &errors.Error{Kind: errors.KindNoTokenFound, Message: "the refresh token was rejected, user interaction is required", Err: err}
		}
		return tok, err
	}

	return identity.Token{}, errors.New(errors.KindNoTokenFound, "no token for resource %q and user %q in the cache", req.Resource, req.UserID)
}

func refresh(ctx context.Context, store cache.Store, p identity.Provider, req identity.SilentRequest, from Entry, isMRRT bool) (identity.Token, error) {
	tok, err := p.Refresh(ctx, identity.RefreshRequest{
		Authority:         req.Authority,
		ValidateAuthority: req.ValidateAuthority,
		Resource:          req.Resource,
		ClientID:          req.ClientID,
		RefreshToken:      from.Item.RefreshToken,
		IsMRRT:            isMRRT,
	})
	if err != nil {
		if isInvalidGrant(err) {
			// The grant is dead, drop it so it is not tried again.
			_ = store.Remove(ctx, from.Key)
		}
		return identity.Token{}, err
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = from.Item.RefreshToken
	}
	if tok.UserInfo.IsZero() {
		tok.UserInfo = from.Item.UserInfo
	}
	if tok.TenantID == "" {
		tok.TenantID = from.Item.TenantID
	}
	if tok.IDToken == "" {
		tok.IDToken = from.Item.RawIDToken
	}
	tok.Resource = req.Resource
	tok.IsMRRT = tok.IsMRRT || isMRRT

	if _, err := Save(ctx, store, req.Authority, req.ClientID, tok); err != nil {
		return identity.Token{}, err
	}
	return tok, nil
}

// find looks an entry up by key. When that misses and the store can be enumerated, it
// falls back to matching the user by either identifier, or to the only user holding a
// matching entry when userID is empty.
func find(ctx context.Context, store cache.Store, authority, resource, clientID string, mrrt bool, userID string) (Entry, bool, error) {
	key := cache.Key(authority, resource, clientID, mrrt, userID, "")
	item, ok, err := store.Get(ctx, key)
	if err != nil {
		return Entry{}, false, errors.Wrap(errors.KindUnknown, err, "reading token cache")
	}
	if ok {
		return Entry{Key: key, Item: item}, true, nil
	}

	q, ok := store.Querier()
	if !ok {
		return Entry{}, false, nil
	}
	userless := cache.Key(authority, resource, clientID, mrrt, "", "")
	var matches []cache.Item
	for item, err := range q.All(ctx) {
		if err != nil {
			return Entry{}, false, errors.Wrap(errors.KindUnknown, err, "reading token cache")
		}
		if item.KeyFor("") != userless {
			continue
		}
		if userID == "" || item.UserInfo.Matches(userID) {
			matches = append(matches, item)
		}
	}
	switch {
	case len(matches) == 0:
		return Entry{}, false, nil
	case userID == "" && !sameUser(matches):
		return Entry{}, false, errors.New(errors.KindNoTokenFound, "the cache holds tokens for several users, a user id is required")
	}
	return Entry{Key: matches[0].Key(), Item: matches[0]}, true, nil
}

func sameUser(items []cache.Item) bool {
	for _, item := range items[1:] {
		if item.UserInfo.UserID != items[0].UserInfo.UserID {
			return false
		}
	}
	return true
}

func isInvalidGrant(err error) bool {
	var e *errors.Error
	return stderrors.As(err, &e) && e.Kind == errors.KindServer && e.Code == "invalid_grant"
}
