// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package manager

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/pkg/browser"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/local"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
)

// LaunchRequest asks a Surface to show an authorization URL to the user.
type LaunchRequest struct {
	// CorrelationID identifies the flow. Surfaces echo it in the Completion.
	CorrelationID string
	RequestCode   int
	// URL is the authorization URL to open.
	URL string
	// RedirectURI is where the identity provider sends the user when done.
	RedirectURI string
}

// Surface presents interactive requests to the user. Launch runs on a single goroutine
// in request order and must not wait for the user: the result is reported later with
// Manager.Complete. ctx is done when the flow ends for another reason.
type Surface interface {
	Launch(ctx context.Context, req LaunchRequest) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(ctx context.Context, req LaunchRequest) error

// Launch implements Surface.Launch().
func (f SurfaceFunc) Launch(ctx context.Context, req LaunchRequest) error {
	return f(ctx, req)
}

// browserSurface opens the system browser and receives the redirect on a loopback
// listener.
type browserSurface struct {
	complete func(Completion) error
	log      *slog.Logger
	open     func(url string) error
}

func newBrowserSurface(complete func(Completion) error, log *slog.Logger) *browserSurface {
	return &browserSurface{complete: complete, log: log, open: browser.OpenURL}
}

func (b *browserSurface) Launch(ctx context.Context, req LaunchRequest) error {
	port, err := loopbackPort(req.RedirectURI)
	if err != nil {
		return err
	}
	srv, err := local.New(req.CorrelationID, port)
	if err != nil {
		return errors.Wrap(errors.KindUnknown, err, "starting the redirect listener")
	}
	if err := b.open(req.URL); err != nil {
		srv.Shutdown()
		return errors.Wrap(errors.KindUnknown, err, "opening the browser")
	}

	go func() {
		res := srv.Result(ctx)
		srv.Shutdown()
		c := Completion{RequestCode: req.RequestCode, CorrelationID: req.CorrelationID}
		switch {
		case res.URL != "":
			c.ResultCode = ResultOK
			c.RedirectURL = res.URL
		case ctx.Err() != nil:
			// The flow already ended.
			return
		default:
			c.ResultCode = ResultError
			c.Message = fmt.Sprint(res.Err)
		}
		if err := b.complete(c); err != nil {
			b.log.Warn("browser redirect not delivered", logger.Tag("surface"), slog.Any("error", err))
		}
	}()
	return nil
}

// loopbackPort returns the port of a http://localhost redirect URI.
func loopbackPort(redirect string) (int, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return 0, errors.Wrap(errors.KindConfiguration, err, "parsing the redirect URI")
	}
	if u.Scheme != "http" || (u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1") {
		return 0, errors.New(errors.KindConfiguration, "redirect URI %q is not a loopback address", redirect)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 {
		return 0, errors.New(errors.KindConfiguration, "redirect URI %q has no port", redirect)
	}
	return port, nil
}
