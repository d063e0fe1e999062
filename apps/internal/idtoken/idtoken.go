// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package idtoken reads user information out of an id_token. Signatures are not
// checked: the token came straight from the token endpoint over TLS and is only used
// to label cache entries.
package idtoken

import (
	"fmt"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the id_token claims the cache cares about.
type Claims struct {
	jwt.RegisteredClaims

	ObjectID          string `json:"oid,omitempty"`
	TenantID          string `json:"tid,omitempty"`
	UPN               string `json:"upn,omitempty"`
	Email             string `json:"email,omitempty"`
	UniqueName        string `json:"unique_name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	IdentityProvider  string `json:"idp,omitempty"`
}

// UserInfo converts the claims. The object id is preferred over the subject as the
// unique id, the UPN over the email and other names as the displayable id.
func (c Claims) UserInfo() cache.UserInfo {
	u := cache.UserInfo{
		UserID:           first(c.ObjectID, c.Subject),
		DisplayableID:    first(c.UPN, c.Email, c.UniqueName, c.PreferredUsername),
		GivenName:        c.GivenName,
		FamilyName:       c.FamilyName,
		IdentityProvider: c.IdentityProvider,
	}
	if u.IdentityProvider == "" {
		u.IdentityProvider = c.Issuer
	}
	return u
}

// Parse decodes raw without verifying it.
func Parse(raw string) (Claims, error) {
	var c Claims
	if raw == "" {
		return c, fmt.Errorf("id_token is empty")
	}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return Claims{}, fmt.Errorf("id_token could not be decoded: %w", err)
	}
	return c, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
