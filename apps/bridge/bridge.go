// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package bridge exposes a manager.Manager through named actions with positional JSON
arguments, the calling convention of hybrid app plugins. A host forwards each call to
Dispatcher.Execute and relays the replies back to the caller's callback.

	d := bridge.New(m)
	handled, err := d.Execute(ctx, "acquireTokenSilentAsync", args, func(r bridge.Result) {
		// Send r to the callback.
	})

Every action replies once, except setLogger, whose replies carry Keep and continue
for as long as the logger is registered.
*/
package bridge

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
	"github.com/AzureAD/adal-broker-for-go/apps/manager"
)

// Action names.
const (
	ActionCreate              = "createAsync"
	ActionAcquireToken        = "acquireTokenAsync"
	ActionAcquireTokenSilent  = "acquireTokenSilentAsync"
	ActionCacheClear          = "tokenCacheClear"
	ActionCacheReadItems      = "tokenCacheReadItems"
	ActionCacheDeleteItem     = "tokenCacheDeleteItem"
	ActionSetUseBroker        = "setUseBroker"
	ActionSetLogger           = "setLogger"
	ActionSetLogLevel         = "setLogLevel"
	ActionRequestPermissions  = "requestPermissions"
	ActionCompleteInteraction = "completeInteraction"
)

// PermissionDenied is the grant result of a denied permission.
const PermissionDenied = -1

// Result is a reply to an action.
type Result struct {
	// OK is false when Payload is an ErrorPayload.
	OK bool `json:"ok"`
	// Keep is set when more results follow for the same action.
	Keep    bool `json:"keep,omitempty"`
	Payload any  `json:"payload,omitempty"`
}

// ErrorPayload is the payload of a failed action.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// AuthResult is the payload of a successful token acquisition.
type AuthResult struct {
	AccessToken                    string          `json:"accessToken"`
	AccessTokenType                string          `json:"accessTokenType,omitempty"`
	ExpiresOn                      time.Time       `json:"expiresOn"`
	IDToken                        string          `json:"idToken,omitempty"`
	IsMultipleResourceRefreshToken bool            `json:"isMultipleResourceRefreshToken"`
	Status                         string          `json:"status"`
	TenantID                       string          `json:"tenantId,omitempty"`
	UserInfo                       *cache.UserInfo `json:"userInfo,omitempty"`
}

// LogItem is the payload of each setLogger reply.
type LogItem struct {
	Tag               string `json:"tag"`
	AdditionalMessage string `json:"additionalMessage"`
	Message           string `json:"message"`
	Level             int    `json:"level"`
	ErrorCode         int    `json:"errorCode"`
}

// Dispatcher runs actions against a Manager.
type Dispatcher struct {
	m   *manager.Manager
	log *slog.Logger
}

// New creates a Dispatcher for m.
func New(m *manager.Manager) *Dispatcher {
	return &Dispatcher{m: m, log: m.Logger()}
}

// Execute runs action with arguments a and sends its replies to reply, possibly from
// another goroutine. handled is false for unknown actions. err reports arguments that
// could not be decoded, in which case reply is not called.
func (d *Dispatcher) Execute(ctx context.Context, action string, raw []json.RawMessage, reply func(Result)) (handled bool, err error) {
	a := args(raw)
	switch action {
	case ActionCreate:
		authority, err := a.str(0)
		if err != nil {
			return true, err
		}
		forward(d.m.CreateContext(ctx, authority, a.optBool(1, true)), reply, nil)

	case ActionAcquireToken:
		p := manager.InteractiveParams{ValidateAuthority: a.optBool(1, true)}
		if p.Authority, err = a.str(0); err != nil {
			return true, err
		}
		if p.Resource, err = a.str(2); err != nil {
			return true, err
		}
		if p.ClientID, err = a.str(3); err != nil {
			return true, err
		}
		if p.RedirectURI, err = a.str(4); err != nil {
			return true, err
		}
		p.UserID = a.optStr(5)
		p.ExtraQueryParameters = a.optStr(6)
		forward(d.m.AcquireTokenInteractive(ctx, p), reply, authPayload)

	case ActionAcquireTokenSilent:
		p := manager.SilentParams{ValidateAuthority: a.optBool(1, true)}
		if p.Authority, err = a.str(0); err != nil {
			return true, err
		}
		if p.Resource, err = a.str(2); err != nil {
			return true, err
		}
		if p.ClientID, err = a.str(3); err != nil {
			return true, err
		}
		if p.UserID, err = a.str(4); err != nil {
			return true, err
		}
		forward(d.m.AcquireTokenSilent(ctx, p), reply, authPayload)

	case ActionCacheClear:
		authority, err := a.str(0)
		if err != nil {
			return true, err
		}
		forward(d.m.CacheClear(ctx, authority, a.optBool(1, true)), reply, nil)

	case ActionCacheReadItems:
		authority, err := a.str(0)
		if err != nil {
			return true, err
		}
		forward(d.m.CacheReadAll(ctx, authority, a.optBool(1, true)), reply, func(items []cache.Item) any { return items })

	case ActionCacheDeleteItem:
		p := manager.DeleteParams{ValidateAuthority: a.optBool(1, true)}
		if p.Authority, err = a.str(0); err != nil {
			return true, err
		}
		if p.ItemAuthority, err = a.str(2); err != nil {
			return true, err
		}
		if p.Resource, err = a.str(3); err != nil {
			return true, err
		}
		if p.ClientID, err = a.str(4); err != nil {
			return true, err
		}
		if p.UserID, err = a.str(5); err != nil {
			return true, err
		}
		if p.IsMRRT, err = a.boolean(6); err != nil {
			return true, err
		}
		forward(d.m.CacheDelete(ctx, p), reply, nil)

	case ActionSetUseBroker:
		use, err := a.boolean(0)
		if err != nil {
			return true, err
		}
		reply(resultOf(d.m.SetUseBroker(use)))

	case ActionSetLogger:
		d.m.RegisterLogObserver(func(e logger.Event) {
			reply(Result{OK: true, Keep: true, Payload: LogItem{
				Tag:               e.Tag,
				AdditionalMessage: e.AdditionalMessage,
				Message:           e.Message,
				Level:             int(e.Level),
				ErrorCode:         e.ErrorCode,
			}})
		})

	case ActionSetLogLevel:
		level, err := a.integer(0)
		if err != nil {
			return true, err
		}
		reply(resultOf(d.m.SetLogLevel(logger.Level(level))))

	case ActionRequestPermissions:
		granted := make([]bool, len(a))
		for i := range a {
			r, err := a.integer(i)
			if err != nil {
				return true, err
			}
			granted[i] = r != PermissionDenied
		}
		reply(resultOf(d.m.PermissionResult(granted)))

	case ActionCompleteInteraction:
		var c manager.Completion
		if c.RequestCode, err = a.integer(0); err != nil {
			return true, err
		}
		code, err := a.integer(1)
		if err != nil {
			return true, err
		}
		c.ResultCode = manager.ResultCode(code)
		c.RedirectURL = a.optStr(2)
		c.CorrelationID = a.optStr(3)
		c.Message = a.optStr(4)
		reply(resultOf(d.m.Complete(c)))

	default:
		d.log.Debug("unknown action", logger.Tag("bridge"), slog.String("action", action))
		return false, nil
	}
	return true, nil
}

// forward replies with the outcome of call once it is delivered. payload converts a
// successful value, nil means an empty success.
func forward[T any](call *manager.Call[T], reply func(Result), payload func(T) any) {
	go func() {
		<-call.Done()
		o, _ := call.Outcome()
		if o.Err != nil {
			reply(errorResult(o.Err))
			return
		}
		r := Result{OK: true}
		if payload != nil {
			r.Payload = payload(o.Value)
		}
		reply(r)
	}()
}

func authPayload(res manager.AuthResult) any {
	p := AuthResult{
		AccessToken:                    res.AccessToken,
		AccessTokenType:                res.TokenType,
		ExpiresOn:                      res.ExpiresOn,
		IDToken:                        res.IDToken,
		IsMultipleResourceRefreshToken: res.IsMultipleResourceRefreshToken,
		Status:                         manager.StatusSucceeded.String(),
		TenantID:                       res.TenantID,
	}
	if !res.UserInfo.IsZero() {
		u := res.UserInfo
		p.UserInfo = &u
	}
	return p
}

func resultOf(err error) Result {
	if err != nil {
		return errorResult(err)
	}
	return Result{OK: true}
}

func errorResult(err error) Result {
	p := ErrorPayload{Kind: errors.KindOf(err).String(), Message: err.Error()}
	var e *errors.Error
	if stderrors.As(err, &e) {
		p.Code = e.Code
		if e.Message != "" {
			p.Message = e.Message
		}
	}
	return Result{OK: false, Payload: p}
}
