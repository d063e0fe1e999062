// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/identity"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
	"github.com/AzureAD/adal-broker-for-go/apps/manager"
)

const (
	authority = "https://login.microsoftonline.com/contoso"
	resource  = "https://graph.windows.net"
	clientID  = "my_client_id"
	redirect  = "http://localhost:8400"
)

// MockProvider implements identity.Provider.
type MockProvider struct {
	mock.Mock
}

func (p *MockProvider) AuthorizationURL(ctx context.Context, req identity.InteractiveRequest) (identity.Authorization, error) {
	args := p.Called(ctx, req)
	auth := args.Get(0).(identity.Authorization)
	auth.Request = req
	return auth, args.Error(1)
}

func (p *MockProvider) RedeemCode(ctx context.Context, auth identity.Authorization, code string) (identity.Token, error) {
	args := p.Called(ctx, auth, code)
	return args.Get(0).(identity.Token), args.Error(1)
}

func (p *MockProvider) Refresh(ctx context.Context, req identity.RefreshRequest) (identity.Token, error) {
	args := p.Called(ctx, req)
	return args.Get(0).(identity.Token), args.Error(1)
}

type harness struct {
	d        *Dispatcher
	provider *MockProvider
	launches chan manager.LaunchRequest
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{provider: &MockProvider{}, launches: make(chan manager.LaunchRequest, 4)}
	surface := manager.SurfaceFunc(func(_ context.Context, req manager.LaunchRequest) error {
		h.launches <- req
		return nil
	})
	m, err := manager.New(h.provider, manager.WithSurface(surface))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	h.d = New(m)
	return h
}

func raw(t *testing.T, values ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		out[i] = b
	}
	return out
}

// execute runs action and waits for its single reply.
func (h *harness) execute(t *testing.T, action string, a []json.RawMessage) Result {
	t.Helper()
	ch := make(chan Result, 1)
	handled, err := h.d.Execute(context.Background(), action, a, func(r Result) { ch <- r })
	require.NoError(t, err)
	require.True(t, handled)
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("no reply to %s", action)
		return Result{}
	}
}

func errorOf(t *testing.T, r Result) ErrorPayload {
	t.Helper()
	require.False(t, r.OK)
	p, ok := r.Payload.(ErrorPayload)
	require.True(t, ok, "payload is %T", r.Payload)
	return p
}

func TestUnknownAction(t *testing.T) {
	h := newHarness(t)
	handled, err := h.d.Execute(context.Background(), "launchRockets", nil, func(Result) {
		t.Error("reply called for an unknown action")
	})
	assert.NoError(t, err)
	assert.False(t, handled)
}

func TestCreateAsync(t *testing.T) {
	h := newHarness(t)

	r := h.execute(t, ActionCreate, raw(t, authority))
	assert.True(t, r.OK)

	// validateAuthority defaults to true.
	r = h.execute(t, ActionCreate, raw(t, "https://login.contoso.com/tenant"))
	assert.Equal(t, "ConfigurationError", errorOf(t, r).Kind)

	r = h.execute(t, ActionCreate, raw(t, "https://login.contoso.com/tenant", false))
	assert.True(t, r.OK)
}

func TestArgumentErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		action string
		args   []json.RawMessage
	}{
		{action: ActionCreate, args: nil},
		{action: ActionAcquireTokenSilent, args: raw(t, authority, true, resource, clientID)},
		{action: ActionCacheDeleteItem, args: raw(t, authority, true, authority, resource, clientID, "uid", "maybe")},
		{action: ActionSetUseBroker, args: raw(t, "yes")},
		{action: ActionSetLogLevel, args: raw(t, "verbose")},
	}
	for _, test := range tests {
		handled, err := h.d.Execute(context.Background(), test.action, test.args, func(Result) {
			t.Errorf("%s: reply called for bad arguments", test.action)
		})
		assert.True(t, handled, test.action)
		assert.Error(t, err, test.action)
	}
}

func TestSilentNoToken(t *testing.T) {
	h := newHarness(t)
	r := h.execute(t, ActionAcquireTokenSilent, raw(t, authority, true, resource, clientID, "null"))
	assert.Equal(t, "NoTokenFound", errorOf(t, r).Kind)
	h.provider.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestAcquireTokenAndCache(t *testing.T) {
	h := newHarness(t)
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	user := cache.UserInfo{UserID: "uid", DisplayableID: "user@contoso.com"}

	h.provider.On("AuthorizationURL", mock.Anything, mock.MatchedBy(func(req identity.InteractiveRequest) bool {
		return req.ExtraQueryParameters == "domain_hint=contoso.com" && req.LoginHint == "" && req.RedirectURI == redirect
	})).Return(identity.Authorization{URL: authority + "/oauth2/authorize"}, nil)
	h.provider.On("RedeemCode", mock.Anything, mock.Anything, "abc").Return(identity.Token{
		AccessToken: "at",
		TokenType:   "Bearer",
		ExpiresOn:   expires,
		Resource:    resource,
		TenantID:    "tid",
		UserInfo:    user,
	}, nil)

	replies := make(chan Result, 1)
	handled, err := h.d.Execute(context.Background(), ActionAcquireToken, raw(t, authority, true, resource, clientID, redirect, nil, "domain_hint=contoso.com"), func(r Result) { replies <- r })
	require.NoError(t, err)
	require.True(t, handled)

	launch := <-h.launches
	r := h.execute(t, ActionCompleteInteraction, raw(t, manager.DefaultRequestCode, int(manager.ResultOK), redirect+"/?code=abc&state="+launch.CorrelationID))
	require.True(t, r.OK)

	var got Result
	select {
	case got = <-replies:
	case <-time.After(5 * time.Second):
		t.Fatal("no reply to acquireTokenAsync")
	}
	require.True(t, got.OK)
	assert.Equal(t, AuthResult{
		AccessToken:     "at",
		AccessTokenType: "Bearer",
		ExpiresOn:       expires,
		Status:          "Succeeded",
		TenantID:        "tid",
		UserInfo:        &user,
	}, got.Payload)
	h.provider.AssertExpectations(t)

	r = h.execute(t, ActionAcquireTokenSilent, raw(t, authority, true, resource, clientID, "user@contoso.com"))
	require.True(t, r.OK)
	assert.Equal(t, "at", r.Payload.(AuthResult).AccessToken)

	r = h.execute(t, ActionCacheReadItems, raw(t, authority))
	require.True(t, r.OK)
	items := r.Payload.([]cache.Item)
	require.Len(t, items, 1)
	item := items[0]

	for i := 0; i < 2; i++ {
		r = h.execute(t, ActionCacheDeleteItem, raw(t, authority, true, item.Authority, item.Resource, item.ClientID, item.UserInfo.UserID, item.IsMultipleResourceRefreshToken))
		assert.True(t, r.OK)
	}
	r = h.execute(t, ActionCacheReadItems, raw(t, authority, true))
	assert.Empty(t, r.Payload)

	r = h.execute(t, ActionCacheClear, raw(t, authority, true))
	assert.True(t, r.OK)
}

func TestCompleteInteractionUnmatched(t *testing.T) {
	h := newHarness(t)
	r := h.execute(t, ActionCompleteInteraction, raw(t, manager.DefaultRequestCode, int(manager.ResultCancelled)))
	assert.Equal(t, "UnknownError", errorOf(t, r).Kind)
}

func TestSetUseBroker(t *testing.T) {
	h := newHarness(t)
	r := h.execute(t, ActionSetUseBroker, raw(t, true))
	assert.Equal(t, "ConfigurationError", errorOf(t, r).Kind)

	r = h.execute(t, ActionSetUseBroker, raw(t, "false"))
	assert.True(t, r.OK)
}

func TestRequestPermissions(t *testing.T) {
	h := newHarness(t)
	r := h.execute(t, ActionRequestPermissions, raw(t, 0, 0))
	assert.True(t, r.OK)

	r = h.execute(t, ActionRequestPermissions, raw(t, 0, PermissionDenied))
	p := errorOf(t, r)
	assert.Equal(t, "PermissionDenied", p.Kind)
	assert.Equal(t, "Permissions denied", p.Message)
}

func TestSetLogger(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var items []Result
	handled, err := h.d.Execute(context.Background(), ActionSetLogger, nil, func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		items = append(items, r)
	})
	require.NoError(t, err)
	require.True(t, handled)

	r := h.execute(t, ActionSetLogLevel, raw(t, int(logger.Verbose)))
	require.True(t, r.OK)
	r = h.execute(t, ActionSetLogLevel, raw(t, 9))
	assert.Equal(t, "ConfigurationError", errorOf(t, r).Kind)

	r = h.execute(t, ActionCreate, raw(t, authority))
	require.True(t, r.OK)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, items)
	var created *LogItem
	for _, it := range items {
		assert.True(t, it.OK)
		assert.True(t, it.Keep)
		if li := it.Payload.(LogItem); li.Message == "authentication context created" {
			created = &li
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, "manager", created.Tag)
	assert.Equal(t, int(logger.Info), created.Level)
}

func TestArgs(t *testing.T) {
	a := args(raw(t, "x", nil, "null", true, "FALSE", 3))

	s, err := a.str(0)
	assert.NoError(t, err)
	assert.Equal(t, "x", s)
	s, err = a.str(1)
	assert.NoError(t, err)
	assert.Empty(t, s)
	s, err = a.str(2)
	assert.NoError(t, err)
	assert.Empty(t, s)
	_, err = a.str(3)
	assert.Error(t, err)
	_, err = a.str(10)
	assert.Error(t, err)
	assert.Empty(t, a.optStr(10))

	assert.True(t, a.optBool(1, true))
	assert.True(t, a.optBool(3, false))
	assert.False(t, a.optBool(4, true))
	assert.True(t, a.optBool(10, true))
	assert.True(t, a.optBool(0, true))

	n, err := a.integer(5)
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = a.integer(0)
	assert.Error(t, err)
}
