// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package manager provides the authentication context manager. It keeps one authentication
context per authority, runs interactive and silent token acquisitions against an
identity.Provider and maintains each context's token cache.

Every operation returns a *Call at once and does its work in the background. The Call
receives exactly one Outcome.

A simple example:

	provider := oauth.New()
	m, err := manager.New(provider, manager.WithBrowserSurface())
	if err != nil {
		// Do something with the error
	}
	defer m.Close()

	res, err := m.AcquireTokenSilent(ctx, manager.SilentParams{
		Authority: "https://login.microsoftonline.com/common",
		ValidateAuthority: true,
		Resource: "https://graph.windows.net",
		ClientID: clientID,
		UserID: "user@contoso.com",
	}).Wait(ctx)
	if errors.KindOf(err) == errors.KindNoTokenFound {
		res, err = m.AcquireTokenInteractive(ctx, manager.InteractiveParams{...}).Wait(ctx)
	}
*/
package manager

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/identity"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/authority"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/pending"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/registry"
	"github.com/AzureAD/adal-broker-for-go/apps/internal/workers"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
)

// DefaultRequestCode is the request code interactive completions carry unless
// WithRequestCode says otherwise.
const DefaultRequestCode = 1001

const defaultWorkers = 4

var errClosed = errors.New(errors.KindUnknown, "the manager is closed")

// Options configures a Manager.
type Options struct {
	// Broker is the shared account broker used when broker mode is on.
	Broker identity.Broker

	// Surface launches interactive requests. Interactive acquisition fails with a
	// ConfigurationError without one.
	Surface Surface

	// Stores creates the token store of each new context. Defaults to MemoryStores().
	Stores StoreFactory

	// TrustedHosts are hosts accepted, besides the AAD hosts, when an authority is validated.
	TrustedHosts []string

	// Workers bounds the operations that run at the same time.
	Workers int

	// LogHub receives the manager's log events. A new hub is created when nil.
	LogHub *logger.Hub

	// LogHandler also receives every record, for local output. Optional.
	LogHandler slog.Handler

	// RequestCode tags the completions of interactive requests.
	RequestCode int

	browserSurface bool
	now            func() time.Time
}

func (o Options) validate() error {
	if o.Workers < 1 {
		return errors.New(errors.KindConfiguration, "Workers must be at least 1, got %d", o.Workers)
	}
	if o.Surface != nil && o.browserSurface {
		return errors.New(errors.KindConfiguration, "WithSurface and WithBrowserSurface are exclusive")
	}
	for _, h := range o.TrustedHosts {
		if h == "" || strings.ContainsAny(h, "/:") {
			return errors.New(errors.KindConfiguration, "trusted host %q must be a bare host name", h)
		}
	}
	return nil
}

// Option is an optional argument to New.
type Option func(o *Options)

// WithBroker sets the account broker used when broker mode is on.
func WithBroker(b identity.Broker) Option {
	return func(o *Options) {
		o.Broker = b
	}
}

// WithSurface sets the interaction surface.
func WithSurface(s Surface) Option {
	return func(o *Options) {
		o.Surface = s
	}
}

// WithBrowserSurface uses the system browser and a loopback listener as the interaction
// surface. Redirect URIs must then be http://localhost:<port>.
func WithBrowserSurface() Option {
	return func(o *Options) {
		o.browserSurface = true
	}
}

// WithStores sets how contexts create their token store.
func WithStores(f StoreFactory) Option {
	return func(o *Options) {
		o.Stores = f
	}
}

// WithTrustedHosts adds hosts accepted by authority validation.
func WithTrustedHosts(hosts ...string) Option {
	return func(o *Options) {
		o.TrustedHosts = append(o.TrustedHosts, hosts...)
	}
}

// WithWorkers bounds the number of operations running at once.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithLogHub sets the hub log events are published on.
func WithLogHub(h *logger.Hub) Option {
	return func(o *Options) {
		o.LogHub = h
	}
}

// WithLogHandler sends every record to h as well.
func WithLogHandler(h slog.Handler) Option {
	return func(o *Options) {
		o.LogHandler = h
	}
}

// WithRequestCode sets the request code of interactive completions.
func WithRequestCode(code int) Option {
	return func(o *Options) {
		o.RequestCode = code
	}
}

// Manager is the authentication context manager. It is safe for concurrent use.
type Manager struct {
	opts     Options
	provider identity.Provider
	hub      *logger.Hub
	log      *slog.Logger

	// contexts maps the authority strings callers pass to their context. Strings that
	// name the same authority share the context kept in authorities under its
	// canonical form, so one store backs them all.
	contexts    *registry.Registry[*authContext]
	authorities *registry.Registry[*authContext]
	flows       *pending.Table[*interactiveFlow]

	pool *workers.Pool
	ui   *workers.Serial

	useBroker atomic.Bool
}

// New creates a Manager that acquires tokens from provider.
func New(provider identity.Provider, options ...Option) (*Manager, error) {
	if provider == nil {
		return nil, errors.New(errors.KindConfiguration, "an identity provider is required")
	}
	opts := Options{
		Workers:     defaultWorkers,
		RequestCode: DefaultRequestCode,
		now:         time.Now,
	}
	for _, o := range options {
		o(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Stores == nil {
		opts.Stores = MemoryStores()
	}
	if opts.LogHub == nil {
		opts.LogHub = logger.NewHub()
	}

	m := &Manager{
		opts:     opts,
		provider: provider,
		hub:      opts.LogHub,
		log:      logger.New(opts.LogHub, opts.LogHandler),
		contexts:    registry.New[*authContext](),
		authorities: registry.New[*authContext](),
		flows:       pending.New[*interactiveFlow](),
		pool:        workers.NewPool(opts.Workers),
		ui:          workers.NewSerial(),
	}
	if opts.browserSurface {
		m.opts.Surface = newBrowserSurface(m.Complete, m.log)
	}
	return m, nil
}

// Logger returns the logger whose records reach the log hub.
func (m *Manager) Logger() *slog.Logger {
	return m.log
}

// Close stops the workers and fails every outstanding interactive flow. Queued
// operations that have not started fail. Close blocks until running operations end,
// then closes the token stores that implement io.Closer.
func (m *Manager) Close() {
	// Running operations may still register flows, drain after they return.
	m.pool.Close()
	for _, f := range m.flows.Drain() {
		m.settle(f, AuthResult{}, errClosed)
	}
	m.ui.Close()
	for _, ac := range m.authorities.Values() {
		if c, ok := ac.store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				m.log.Warn("closing token store", logger.Tag("manager"), slog.String("authority", ac.authority.Canonical), slog.Any("error", err))
			}
		}
	}
}

// SetUseBroker turns broker mode on or off. Broker mode needs a Broker.
func (m *Manager) SetUseBroker(use bool) error {
	if use && m.opts.Broker == nil {
		return errors.New(errors.KindConfiguration, "broker mode requires a broker")
	}
	m.useBroker.Store(use)
	m.log.Info("broker mode changed", logger.Tag("manager"), slog.Bool("use_broker", use))
	return nil
}

// UseBroker reports whether broker mode is on.
func (m *Manager) UseBroker() bool {
	return m.useBroker.Load()
}

// RegisterLogObserver makes obs the receiver of log events, replacing any previous one.
func (m *Manager) RegisterLogObserver(obs logger.Observer) {
	m.hub.Register(obs)
}

// UnregisterLogObserver stops delivery of log events.
func (m *Manager) UnregisterLogObserver() {
	m.hub.Unregister()
}

// SetLogLevel sets the minimum level of published events.
func (m *Manager) SetLogLevel(l logger.Level) error {
	return m.hub.SetLevel(l)
}

// PermissionResult reports the outcome of a platform permission request. Any denied
// permission is a PermissionDenied error.
func (m *Manager) PermissionResult(granted []bool) error {
	for _, g := range granted {
		if !g {
			m.log.Warn("permission request denied", logger.Tag("manager"))
			return errors.New(errors.KindPermissionDenied, "Permissions denied")
		}
	}
	return nil
}

// CreateContext creates the authentication context for authority, if it does not
// exist yet.
func (m *Manager) CreateContext(ctx context.Context, authority string, validate bool) *Call[struct{}] {
	return submit(m, ctx, "createContext", func(ctx context.Context) (struct{}, error) {
		_, err := m.authContext(ctx, authority, validate)
		return struct{}{}, err
	})
}

// authContext returns the context for raw, creating it on first use. Creation validates
// the authority and opens the context's store, unless another string naming the same
// authority opened it already. Failures are ConfigurationErrors and are not remembered.
func (m *Manager) authContext(ctx context.Context, raw string, validate bool) (*authContext, error) {
	raw = cache.Normalize(raw)
	return m.contexts.GetOrCreate(ctx, raw, func(ctx context.Context, raw string) (*authContext, error) {
		info, err := authority.New(raw, validate, m.opts.TrustedHosts...)
		if err != nil {
			return nil, err
		}
		return m.authorities.GetOrCreate(ctx, info.Canonical, func(ctx context.Context, canonical string) (*authContext, error) {
			store, err := m.opts.Stores(ctx, canonical)
			if err != nil {
				return nil, errors.Wrap(errors.KindConfiguration, err, "opening the token store")
			}
			m.log.Info("authentication context created", logger.Tag("manager"), slog.String("authority", canonical))
			return &authContext{authority: info, store: store}, nil
		})
	})
}

// submit runs fn on the worker pool and delivers its result on a new Call.
func submit[T any](m *Manager, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) *Call[T] {
	call := newCall[T](m.log, op)
	run := func() {
		if err := ctx.Err(); err != nil {
			call.fail(err)
			return
		}
		v, err := fn(ctx)
		if err != nil {
			call.fail(err)
			return
		}
		call.succeed(v)
	}
	dropped := func() { call.fail(errClosed) }
	if err := m.pool.Submit(run, dropped); err != nil {
		dropped()
	}
	return call
}
