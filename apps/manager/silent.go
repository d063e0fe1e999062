// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/identity"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/resolver"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/tokens"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
)

// AuthResult is a successfully acquired token.
type AuthResult struct {
	AccessToken string
	TokenType   string
	ExpiresOn   time.Time
	TenantID    string
	// IDToken is the raw id_token. It is not validated.
	IDToken  string
	UserInfo cache.UserInfo
	Resource string
	// IsMultipleResourceRefreshToken reports that the grant carried a refresh token
	// usable for other resources.
	IsMultipleResourceRefreshToken bool
}

func resultFrom(tok identity.Token) AuthResult {
	return AuthResult{
		AccessToken:                    tok.AccessToken,
		TokenType:                      tok.TokenType,
		ExpiresOn:                      tok.ExpiresOn,
		TenantID:                       tok.TenantID,
		IDToken:                        tok.IDToken,
		UserInfo:                       tok.UserInfo,
		Resource:                       tok.Resource,
		IsMultipleResourceRefreshToken: tok.IsMRRT,
	}
}

// SilentParams are the parameters of AcquireTokenSilent.
type SilentParams struct {
	Authority         string
	ValidateAuthority bool
	Resource          string
	ClientID          string
	// UserID selects the user by either form of identifier. Empty means the only
	// cached user, or with the broker its first account.
	UserID string
}

func (p *SilentParams) normalize() {
	p.Authority = cache.Normalize(p.Authority)
	p.Resource = cache.Normalize(p.Resource)
	p.ClientID = cache.Normalize(p.ClientID)
	p.UserID = cache.Normalize(p.UserID)
}

// AcquireTokenSilent acquires a token from the cache or the broker without user
// interaction, refreshing it if needed. A NoTokenFound error means an interactive
// acquisition is required.
func (m *Manager) AcquireTokenSilent(ctx context.Context, p SilentParams) *Call[AuthResult] {
	p.normalize()
	return submit(m, ctx, "acquireTokenSilent", func(ctx context.Context) (AuthResult, error) {
		ac, err := m.authContext(ctx, p.Authority, p.ValidateAuthority)
		if err != nil {
			return AuthResult{}, err
		}
		useBroker := m.useBroker.Load()
		var accounts resolver.AccountLister
		if m.opts.Broker != nil {
			accounts = m.opts.Broker
		}
		user, err := resolver.Resolve(ctx, accounts, useBroker, p.UserID)
		if err != nil {
			return AuthResult{}, err
		}

		req := identity.SilentRequest{
			Authority:         ac.authority.Canonical,
			ValidateAuthority: ac.authority.Validate,
			Resource:          p.Resource,
			ClientID:          p.ClientID,
			UserID:            user,
		}
		m.log.Debug("silent acquisition", logger.Tag("manager"), slog.String("authority", req.Authority), slog.Bool("use_broker", useBroker))

		var tok identity.Token
		if useBroker && m.opts.Broker != nil {
			tok, err = m.opts.Broker.AcquireTokenSilent(ctx, req)
		} else {
			ac.mu.Lock()
			tok, err = tokens.Silent(ctx, ac.store, m.provider, req, m.opts.now())
			ac.mu.Unlock()
		}
		if err != nil {
			return AuthResult{}, err
		}
		return resultFrom(tok), nil
	})
}
