// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Command adalbroker serves the authentication context manager over NATS.
//
// Requests are JSON objects {"action": ..., "args": [...]} sent to <prefix>.execute.
// The actions are those of package bridge. Interactive requests are published to
// <prefix>.interaction.launch for a UI host, or opened in the local browser when
// ADAL_SURFACE=browser.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/AzureAD/adal-broker-for-go/apps/bridge"
	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/identity"
	"github.com/AzureAD/adal-broker-for-go/apps/identity/oauth"
	"github.com/AzureAD/adal-broker-for-go/apps/identity/sharedbroker"
	"github.com/AzureAD/adal-broker-for-go/apps/keybootstrap"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
	"github.com/AzureAD/adal-broker-for-go/apps/manager"
	"github.com/AzureAD/adal-broker-for-go/apps/storage/file"
	"github.com/AzureAD/adal-broker-for-go/apps/storage/memory"
	"github.com/AzureAD/adal-broker-for-go/apps/storage/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "adalbroker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hub := logger.NewHub()
	level, _ := logger.ParseLevel(cfg.LogLevel)
	if err := hub.SetLevel(level); err != nil {
		return err
	}
	var base slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level.Slog()})
	if cfg.LogFormat == "text" {
		base = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level.Slog()})
	}
	log := logger.New(hub, base)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providerOpts := []oauth.Option{
		oauth.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		oauth.WithLogger(log),
	}
	if !cfg.Discovery {
		providerOpts = append(providerOpts, oauth.WithoutDiscovery())
	}
	provider := oauth.New(providerOpts...)

	stores, brokerStore, closeStores, err := openStores(ctx, cfg, provider, log)
	if err != nil {
		return err
	}
	defer closeStores()

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("adalbroker"))
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", cfg.NATSURL, err)
	}
	defer conn.Close()

	opts := []manager.Option{
		manager.WithStores(stores),
		manager.WithWorkers(cfg.Workers),
		manager.WithTrustedHosts(cfg.TrustedHosts...),
		manager.WithLogHub(hub),
		manager.WithLogHandler(base),
	}
	svc := &service{conn: conn, log: log, prefix: cfg.SubjectPrefix, queue: cfg.Queue, ctx: ctx}
	switch cfg.Surface {
	case surfaceBrowser:
		opts = append(opts, manager.WithBrowserSurface())
	default:
		opts = append(opts, manager.WithSurface(&natsSurface{conn: conn, subject: svc.launchSubject()}))
	}
	if brokerStore != nil {
		opts = append(opts, manager.WithBroker(sharedbroker.New(brokerStore, provider)))
	}

	m, err := manager.New(provider, opts...)
	if err != nil {
		return err
	}
	defer m.Close()
	if cfg.UseBroker {
		if err := m.SetUseBroker(true); err != nil {
			return err
		}
	}

	svc.d = bridge.New(m)
	if err := svc.start(); err != nil {
		return err
	}
	log.Info("adalbroker started", logger.Tag("service"), slog.String("nats", cfg.NATSURL), slog.String("store", cfg.Store), slog.String("surface", cfg.Surface))

	<-ctx.Done()
	log.Info("adalbroker stopping", logger.Tag("service"))
	svc.stop()
	return nil
}

// openStores builds the store factory for cfg.Store and, with the shared broker on,
// the broker's store. The returned func releases what was opened.
func openStores(ctx context.Context, cfg Config, provider identity.Provider, log *slog.Logger) (manager.StoreFactory, cache.Store, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case storeMemory:
		var broker cache.Store
		if cfg.SharedBroker {
			broker = memory.New()
		}
		return manager.MemoryStores(), broker, noop, nil

	case storeRedis:
		client, err := redis.ConnectFromEnv(ctx)
		if err != nil {
			return nil, nil, noop, err
		}
		var broker cache.Store
		if cfg.SharedBroker {
			broker = client.Store("broker")
		}
		return manager.RedisStores(client), broker, func() { _ = client.Close() }, nil
	}

	var src keybootstrap.Source = keybootstrap.Static(cfg.Passphrase)
	if cfg.KeyVaultURL != "" {
		cred := &refreshCredential{
			provider:     provider,
			authority:    cfg.KeyVaultAuthority,
			clientID:     cfg.KeyVaultClientID,
			refreshToken: cfg.KeyVaultRefreshToken,
		}
		kv, err := keybootstrap.NewKeyVaultSecret(cfg.KeyVaultURL, cfg.KeyVaultSecret, cred)
		if err != nil {
			return nil, nil, noop, err
		}
		src = kv
	}
	if !cfg.SharedBroker {
		return manager.FileStores(cfg.CacheDir, src, file.WithLogger(log)), nil, noop, nil
	}

	key, err := keybootstrap.Key(ctx, src)
	if err != nil {
		return nil, nil, noop, err
	}
	broker, err := file.Open(filepath.Join(cfg.CacheDir, "broker.cache"), key, file.WithLogger(log))
	if err != nil {
		return nil, nil, noop, err
	}
	return manager.FileStores(cfg.CacheDir, src, file.WithLogger(log)), broker, func() { _ = broker.Close() }, nil
}
