// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/AzureAD/adal-broker-for-go/apps/identity"
)

// refreshCredential is an azcore.TokenCredential that redeems a refresh token for each
// resource it is asked for. It lets the service read its cache passphrase from Key
// Vault before any token cache is open.
type refreshCredential struct {
	provider     identity.Provider
	authority    string
	clientID     string
	refreshToken string
}

func (c *refreshCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if len(opts.Scopes) != 1 {
		return azcore.AccessToken{}, fmt.Errorf("refreshCredential: exactly one scope is supported, got %d", len(opts.Scopes))
	}
	tok, err := c.provider.Refresh(ctx, identity.RefreshRequest{
		Authority:         c.authority,
		ValidateAuthority: true,
		Resource:          strings.TrimSuffix(opts.Scopes[0], "/.default"),
		ClientID:          c.clientID,
		RefreshToken:      c.refreshToken,
		IsMRRT:            true,
	})
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: tok.AccessToken, ExpiresOn: tok.ExpiresOn}, nil
}
