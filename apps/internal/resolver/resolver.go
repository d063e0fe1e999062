// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package resolver rewrites the user hint callers pass into the identifier the cache
// or broker uses for that user.
package resolver

import (
	"context"
	"strings"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/errors"
)

// AccountLister lists broker accounts. identity.Broker satisfies it.
type AccountLister interface {
	Accounts(ctx context.Context) ([]cache.UserInfo, error)
}

// Resolve maps hint onto a broker account's unique id. Without the broker hint is
// returned unchanged. With it, an empty hint selects the first account, and a hint
// equal to an account's displayable id (ignoring case) is replaced by that account's
// unique id. Hints that match nothing pass through.
//
// Resolve is idempotent: a resolved unique id resolves to itself.
func Resolve(ctx context.Context, accounts AccountLister, useBroker bool, hint string) (string, error) {
	hint = cache.Normalize(hint)
	if !useBroker || accounts == nil {
		return hint, nil
	}

	list, err := accounts.Accounts(ctx)
	if err != nil {
		return "", errors.Wrap(errors.KindUnknown, err, "listing broker accounts")
	}

	if hint == "" && len(list) > 0 {
		hint = list[0].DisplayableID
	}
	for _, a := range list {
		if a.DisplayableID != "" && strings.EqualFold(a.DisplayableID, hint) {
			hint = a.UserID
			break
		}
	}
	return hint, nil
}

// Alias returns the displayable id of the first item in q issued to hint, so that a
// unique id can be used as a login hint. It returns hint when q is nil or holds no
// such item.
func Alias(ctx context.Context, q cache.Querier, hint string) (string, error) {
	hint = cache.Normalize(hint)
	if q == nil || hint == "" {
		return hint, nil
	}
	for item, err := range q.All(ctx) {
		if err != nil {
			return "", err
		}
		if item.UserInfo.Matches(hint) && item.UserInfo.DisplayableID != "" {
			return item.UserInfo.DisplayableID, nil
		}
	}
	return hint, nil
}
