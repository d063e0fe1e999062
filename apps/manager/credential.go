// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package manager

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
)

// Credential is an azcore.TokenCredential backed by silent acquisition, so Azure SDK
// clients can use tokens a user acquired interactively earlier.
type Credential struct {
	m      *Manager
	params SilentParams
}

var _ azcore.TokenCredential = (*Credential)(nil)

// Credential returns a credential for the user and client. Resource is taken from the
// scope of each token request.
func (m *Manager) Credential(authority string, validate bool, clientID, userID string) *Credential {
	return &Credential{m: m, params: SilentParams{
		Authority:         authority,
		ValidateAuthority: validate,
		ClientID:          clientID,
		UserID:            userID,
	}}
}

// GetToken implements azcore.TokenCredential.GetToken(). It takes a single scope; the
// "/.default" suffix is dropped to get the resource.
func (c *Credential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if len(opts.Scopes) != 1 {
		return azcore.AccessToken{}, errors.New(errors.KindConfiguration, "exactly one scope is required, got %d", len(opts.Scopes))
	}
	p := c.params
	p.Resource = strings.TrimSuffix(opts.Scopes[0], "/.default")
	res, err := c.m.AcquireTokenSilent(ctx, p).Wait(ctx)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: res.AccessToken, ExpiresOn: res.ExpiresOn}, nil
}
