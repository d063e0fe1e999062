// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package identity defines the capabilities the authentication context manager consumes:
a Provider that speaks to an identity provider's authorization and token endpoints, and
an optional Broker that holds accounts and tokens on behalf of several applications.

Neither interface is implemented by the manager itself. Package oauth provides a Provider
built on golang.org/x/oauth2 and package sharedbroker provides a Broker over a shared store.
*/
package identity

import (
	"context"
	"time"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
)

// Token is the result of a successful grant.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	// IDToken is the raw, unverified id_token if the provider returned one.
	IDToken   string
	ExpiresOn time.Time
	Resource  string
	// IsMRRT is set when RefreshToken can be redeemed for any resource.
	IsMRRT   bool
	TenantID string
	UserInfo cache.UserInfo
}

// InteractiveRequest describes an authorization code flow to start.
type InteractiveRequest struct {
	// Authority is the canonical authority URL.
	Authority         string
	ValidateAuthority bool
	Resource          string
	ClientID          string
	RedirectURI       string
	// LoginHint pre-fills the user name on the sign in page.
	LoginHint string
	// ExtraQueryParameters are appended to the authorization URL, already URL encoded.
	ExtraQueryParameters string
	// State is echoed back on the redirect and correlates it with this request.
	State string
}

// Authorization is a started authorization code flow.
type Authorization struct {
	// URL is what the user agent should open.
	URL     string
	Request InteractiveRequest
	// Verifier is the PKCE code verifier, sent again at redemption.
	Verifier string
}

// RefreshRequest redeems a refresh token.
type RefreshRequest struct {
	Authority         string
	ValidateAuthority bool
	Resource          string
	ClientID          string
	RefreshToken      string
	// IsMRRT is set when RefreshToken was issued for another resource.
	IsMRRT bool
}

// SilentRequest asks a Broker for a token without user interaction.
type SilentRequest struct {
	Authority         string
	ValidateAuthority bool
	Resource          string
	ClientID          string
	// UserID is the user's unique id, or empty for any user.
	UserID string
}

// Provider talks to an identity provider.
type Provider interface {
	// AuthorizationURL starts an authorization code flow.
	AuthorizationURL(ctx context.Context, req InteractiveRequest) (Authorization, error)
	// RedeemCode exchanges the authorization code returned on the redirect.
	RedeemCode(ctx context.Context, auth Authorization, code string) (Token, error)
	// Refresh redeems a refresh token for a new access token.
	Refresh(ctx context.Context, req RefreshRequest) (Token, error)
}

// Broker is an account and token holder shared with other applications.
type Broker interface {
	// Accounts lists the signed in accounts, most recently used first.
	Accounts(ctx context.Context) ([]cache.UserInfo, error)
	// AcquireTokenSilent returns a token for req, refreshing if needed. It fails with
	// a NoTokenFound error when user interaction is required.
	AcquireTokenSilent(ctx context.Context, req SilentRequest) (Token, error)
	// Save makes items acquired interactively available to the broker.
	Save(ctx context.Context, items ...cache.Item) error
}
