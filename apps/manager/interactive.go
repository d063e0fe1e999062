// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package manager

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/identity"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/resolver"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/tokens"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
)

// InteractiveParams are the parameters of AcquireTokenInteractive.
type InteractiveParams struct {
	Authority         string
	ValidateAuthority bool
	Resource          string
	ClientID          string
	RedirectURI       string
	// UserID pre-selects the user. It may be either form of user identifier.
	UserID string
	// ExtraQueryParameters are appended to the authorization URL, already URL encoded.
	ExtraQueryParameters string
}

func (p *InteractiveParams) normalize() {
	p.Authority = cache.Normalize(p.Authority)
	p.Resource = cache.Normalize(p.Resource)
	p.ClientID = cache.Normalize(p.ClientID)
	p.RedirectURI = cache.Normalize(p.RedirectURI)
	p.UserID = cache.Normalize(p.UserID)
	p.ExtraQueryParameters = cache.Normalize(p.ExtraQueryParameters)
}

// ResultCode is how the interaction surface ended.
type ResultCode int

const (
	// ResultOK means the surface received the redirect. Completion.RedirectURL holds it.
	ResultOK ResultCode = iota
	// ResultCancelled means the user dismissed the surface.
	ResultCancelled
	// ResultError means the surface failed. Completion.Message says why.
	ResultError
)

// Completion is the signal that ends the external step of an interactive flow.
type Completion struct {
	// RequestCode must be the manager's request code.
	RequestCode int
	ResultCode  ResultCode
	// CorrelationID selects the flow. When empty the state parameter of RedirectURL
	// is used, and without one the single outstanding flow.
	CorrelationID string
	// RedirectURL is the redirect the identity provider sent, query included.
	RedirectURL string
	Message     string
}

// interactiveFlow is an interactive acquisition parked until its Completion arrives.
type interactiveFlow struct {
	id   string
	call *Call[AuthResult]
	ac   *authContext
	auth identity.Authorization

	// ctx carries the caller's values but not its cancellation. cancel ends it
	// once the flow settles.
	ctx    context.Context
	cancel context.CancelFunc
	// stop deregisters the caller cancellation hook.
	stop func() bool
}

// AcquireTokenInteractive acquires a token through the interaction surface. The call
// stays pending until Complete is called for the flow, the caller's ctx is done, or
// the manager is closed.
func (m *Manager) AcquireTokenInteractive(ctx context.Context, p InteractiveParams) *Call[AuthResult] {
	p.normalize()
	call := newCall[AuthResult](m.log, "acquireTokenInteractive")
	dropped := func() { call.fail(errClosed) }
	if err := m.pool.Submit(func() { m.startInteractive(ctx, call, p) }, dropped); err != nil {
		dropped()
	}
	return call
}

func (m *Manager) startInteractive(ctx context.Context, call *Call[AuthResult], p InteractiveParams) {
	if err := ctx.Err(); err != nil {
		call.fail(err)
		return
	}
	if m.opts.Surface == nil {
		call.fail(errors.New(errors.KindConfiguration, "interactive acquisition requires an interaction surface"))
		return
	}
	ac, err := m.authContext(ctx, p.Authority, p.ValidateAuthority)
	if err != nil {
		call.fail(err)
		return
	}
	ac.mu.Lock()
	hint, err := resolver.Alias(ctx, ac.querier(), p.UserID)
	ac.mu.Unlock()
	if err != nil {
		call.fail(err)
		return
	}

	id := uuid.NewString()
	auth, err := m.provider.AuthorizationURL(ctx, identity.InteractiveRequest{
		Authority:            ac.authority.Canonical,
		ValidateAuthority:    ac.authority.Validate,
		Resource:             p.Resource,
		ClientID:             p.ClientID,
		RedirectURI:          p.RedirectURI,
		LoginHint:            hint,
		ExtraQueryParameters: p.ExtraQueryParameters,
		State:                id,
	})
	if err != nil {
		call.fail(err)
		return
	}

	flowCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &interactiveFlow{id: id, call: call, ac: ac, auth: auth, ctx: flowCtx, cancel: cancel}
	abandon := func() {
		if f, ok := m.flows.Take(id); ok {
			m.settle(f, AuthResult{}, errors.Wrap(errors.KindUnknown, ctx.Err(), "interactive acquisition abandoned"))
			return
		}
		// Redemption may be running, it observes this.
		cancel()
	}
	f.stop = context.AfterFunc(ctx, abandon)
	if err := m.flows.Add(id, f); err != nil {
		f.stop()
		cancel()
		call.fail(err)
		return
	}
	if ctx.Err() != nil {
		abandon()
		return
	}
	m.log.Info("interactive flow started", logger.Tag("manager"), slog.String("correlation_id", id), slog.String("authority", ac.authority.Canonical))

	launch := LaunchRequest{CorrelationID: id, RequestCode: m.opts.RequestCode, URL: auth.URL, RedirectURI: p.RedirectURI}
	err = m.ui.Submit(func() {
		if err := m.opts.Surface.Launch(flowCtx, launch); err != nil {
			if f, ok := m.flows.Take(id); ok {
				m.settle(f, AuthResult{}, errors.Wrap(errors.KindUnknown, err, "launching the interaction surface"))
			}
		}
	})
	if err != nil {
		if f, ok := m.flows.Take(id); ok {
			m.settle(f, AuthResult{}, errClosed)
		}
	}
}

// Complete delivers the result of the external step of an interactive flow. The error
// reports signals that match no flow. Errors of the flow itself go to its Call.
func (m *Manager) Complete(c Completion) error {
	if c.RequestCode != m.opts.RequestCode {
		m.log.Warn("completion ignored", logger.Tag("manager"), slog.Int("request_code", c.RequestCode))
		return errors.New(errors.KindUnknown, "request code %d does not belong to an interactive request", c.RequestCode)
	}
	f, err := m.route(c)
	if err != nil {
		m.log.Warn("completion ignored", logger.Tag("manager"), slog.Any("error", err))
		return err
	}

	switch c.ResultCode {
	case ResultCancelled:
		m.settle(f, AuthResult{}, errors.New(errors.KindUserCancelled, "the user cancelled the interaction"))
	case ResultError:
		msg := c.Message
		if msg == "" {
			msg = "the interaction surface failed"
		}
		m.settle(f, AuthResult{}, errors.New(errors.KindUnknown, "%s", msg))
	case ResultOK:
		code, err := authorizationCode(c.RedirectURL, f.id)
		if err != nil {
			m.settle(f, AuthResult{}, err)
			return nil
		}
		redeem := func() { m.redeem(f, code) }
		dropped := func() { m.settle(f, AuthResult{}, errClosed) }
		if err := m.pool.Submit(redeem, dropped); err != nil {
			dropped()
		}
	default:
		m.settle(f, AuthResult{}, errors.New(errors.KindUnknown, "unknown result code %d", c.ResultCode))
	}
	return nil
}

// route takes the flow c belongs to out of the request table.
func (m *Manager) route(c Completion) (*interactiveFlow, error) {
	id := c.CorrelationID
	if id == "" && c.RedirectURL != "" {
		if u, err := url.Parse(c.RedirectURL); err == nil {
			id = u.Query().Get("state")
		}
	}
	if id != "" {
		f, ok := m.flows.Take(id)
		if !ok {
			return nil, errors.New(errors.KindUnknown, "no interactive request is pending under %q", id)
		}
		return f, nil
	}
	_, f, err := m.flows.TakeOnly()
	if err != nil {
		return nil, errors.Wrap(errors.KindUnknown, err, "routing an uncorrelated completion")
	}
	return f, nil
}

// authorizationCode extracts the code from a redirect issued for the flow with state.
func authorizationCode(redirect, state string) (string, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", errors.Wrap(errors.KindUnknown, err, "parsing the redirect")
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", errors.Server(e, q.Get("error_description"), nil)
	}
	if got := q.Get("state"); got != state {
		return "", errors.Server("state_mismatch", "the redirect state does not match the request", nil)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.Server("missing_code", "the redirect carries no authorization code", nil)
	}
	return code, nil
}

// redeem exchanges code and caches the grant.
func (m *Manager) redeem(f *interactiveFlow, code string) {
	tok, err := m.provider.RedeemCode(f.ctx, f.auth, code)
	if err != nil {
		m.settle(f, AuthResult{}, err)
		return
	}

	f.ac.mu.Lock()
	items, err := tokens.Save(f.ctx, f.ac.store, f.ac.authority.Canonical, f.auth.Request.ClientID, tok)
	f.ac.mu.Unlock()
	if err != nil {
		m.settle(f, AuthResult{}, err)
		return
	}
	if m.useBroker.Load() && m.opts.Broker != nil {
		if err := m.opts.Broker.Save(f.ctx, items...); err != nil {
			m.log.Warn("broker did not take the new tokens", logger.Tag("manager"), slog.Any("error", err))
		}
	}
	m.settle(f, resultFrom(tok), nil)
}

// settle delivers the outcome of a flow that has left the request table.
func (m *Manager) settle(f *interactiveFlow, res AuthResult, err error) {
	if f.stop != nil {
		f.stop()
	}
	f.cancel()
	if err != nil {
		f.call.fail(err)
		return
	}
	f.call.succeed(res)
}
