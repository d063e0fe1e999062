// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package oauth is an identity.Provider for Azure AD style authorities, built on
golang.org/x/oauth2.

Interactive flows use the authorization code grant with PKCE and always prompt for
credentials. Tokens are requested for a resource rather than for scopes: the resource
parameter is added to the authorization URL, the code redemption and every refresh.

Authorities that were validated have their endpoints discovered from the OpenID
configuration document. Other authorities use the conventional /oauth2/authorize and
/oauth2/token endpoints under the authority.
*/
package oauth

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/identity"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/idtoken"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/shared"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
)

// Option configures a Provider.
type Option func(p *Provider)

// WithHTTPClient sets the client used for every request to the identity provider.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

// WithoutDiscovery uses the conventional endpoints even for validated authorities.
func WithoutDiscovery() Option {
	return func(p *Provider) {
		p.discover = false
	}
}

// Provider implements identity.Provider.
type Provider struct {
	client   *http.Client
	log      *slog.Logger
	discover bool

	mu        sync.Mutex
	endpoints map[string]oauth2.Endpoint
}

// New is the constructor for Provider.
func New(options ...Option) *Provider {
	p := &Provider{
		client:    shared.DefaultClient,
		log:       slog.Default(),
		discover:  true,
		endpoints: map[string]oauth2.Endpoint{},
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// AuthorizationURL implements identity.Provider.AuthorizationURL().
func (p *Provider) AuthorizationURL(ctx context.Context, req identity.InteractiveRequest) (identity.Authorization, error) {
	conf, err := p.config(ctx, req.Authority, req.ValidateAuthority, req.ClientID, req.RedirectURI)
	if err != nil {
		return identity.Authorization{}, err
	}

	verifier := oauth2.GenerateVerifier()
	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "login"),
	}
	if req.Resource != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", req.Resource))
	}
	if req.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", req.LoginHint))
	}
	u := conf.AuthCodeURL(req.State, opts...)
	if extra := strings.TrimLeft(req.ExtraQueryParameters, "&?"); extra != "" {
		u += "&" + extra
	}
	return identity.Authorization{URL: u, Request: req, Verifier: verifier}, nil
}

// RedeemCode implements identity.Provider.RedeemCode().
func (p *Provider) RedeemCode(ctx context.Context, auth identity.Authorization, code string) (identity.Token, error) {
	req := auth.Request
	conf, err := p.config(ctx, req.Authority, req.ValidateAuthority, req.ClientID, req.RedirectURI)
	if err != nil {
		return identity.Token{}, err
	}

	opts := []oauth2.AuthCodeOption{oauth2.VerifierOption(auth.Verifier)}
	if req.Resource != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", req.Resource))
	}
	p.log.Debug("redeeming authorization code", logger.Tag("oauth"), slog.String("endpoint", conf.Endpoint.TokenURL))
	tok, err := conf.Exchange(context.WithValue(ctx, oauth2.HTTPClient, p.client), code, opts...)
	if err != nil {
		return identity.Token{}, convertErr(err)
	}
	return convert(tok, req.Resource)
}

// Refresh implements identity.Provider.Refresh().
func (p *Provider) Refresh(ctx context.Context, req identity.RefreshRequest) (identity.Token, error) {
	conf, err := p.config(ctx, req.Authority, req.ValidateAuthority, req.ClientID, "")
	if err != nil {
		return identity.Token{}, err
	}

	// x/oauth2 has no option for extra refresh parameters, so the resource is added to
	// the request body on the way out.
	client := *p.client
	client.Transport = &resourceTransport{base: p.client.Transport, resource: req.Resource}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &client)

	p.log.Debug("refreshing token", logger.Tag("oauth"), slog.String("endpoint", conf.Endpoint.TokenURL), slog.Bool("mrrt", req.IsMRRT))
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: req.RefreshToken}).Token()
	if err != nil {
		return identity.Token{}, convertErr(err)
	}
	return convert(tok, req.Resource)
}

func (p *Provider) config(ctx context.Context, authority string, validate bool, clientID, redirectURI string) (*oauth2.Config, error) {
	ep, err := p.endpoint(ctx, authority, validate)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{ClientID: clientID, Endpoint: ep, RedirectURL: redirectURI}, nil
}

func (p *Provider) endpoint(ctx context.Context, authority string, validate bool) (oauth2.Endpoint, error) {
	authority = strings.TrimRight(authority, "/")
	if !validate || !p.discover {
		return oauth2.Endpoint{
			AuthURL:   authority + "/oauth2/authorize",
			TokenURL:  authority + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}, nil
	}

	p.mu.Lock()
	ep, ok := p.endpoints[authority]
	p.mu.Unlock()
	if ok {
		return ep, nil
	}

	// AAD reports a tenant specific issuer for the common endpoints, so the issuer
	// check of the discovery document is relaxed to the authority itself.
	dctx := oidc.InsecureIssuerURLContext(oidc.ClientContext(ctx, p.client), authority)
	provider, err := oidc.NewProvider(dctx, authority)
	if err != nil {
		return oauth2.Endpoint{}, convertErr(fmt.Errorf("discovering endpoints of %s: %w", authority, err))
	}
	ep = provider.Endpoint()
	ep.AuthStyle = oauth2.AuthStyleInParams

	p.mu.Lock()
	p.endpoints[authority] = ep
	p.mu.Unlock()
	p.log.Debug("discovered endpoints", logger.Tag("oauth"), slog.String("authority", authority), slog.String("token_endpoint", ep.TokenURL))
	return ep, nil
}

func convert(tok *oauth2.Token, resource string) (identity.Token, error) {
	out := identity.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		ExpiresOn:    tok.Expiry,
		Resource:     resource,
	}
	// A response naming the resource carries a refresh token good for any resource.
	if r, ok := tok.Extra("resource").(string); ok && r != "" && tok.RefreshToken != "" {
		out.IsMRRT = true
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		claims, err := idtoken.Parse(raw)
		if err != nil {
			return identity.Token{}, errors.Wrap(errors.KindServer, err, "")
		}
		out.IDToken = raw
		out.UserInfo = claims.UserInfo()
		out.TenantID = claims.TenantID
	}
	return out, nil
}

func convertErr(err error) error {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) {
		code := re.ErrorCode
		if code == "" && re.Response != nil {
			code = fmt.Sprintf("http_%d", re.Response.StatusCode)
		}
		call := errors.CallErr{Resp: re.Response, Err: re}
		if re.Response != nil {
			call.Req = re.Response.Request
		}
		return errors.Server(code, re.ErrorDescription, call)
	}

	var ne net.Error
	var ue *url.Error
	if stderrors.As(err, &ne) || stderrors.As(err, &ue) {
		return errors.Wrap(errors.KindNetwork, err, "")
	}
	return errors.Wrap(errors.KindUnknown, err, "")
}
