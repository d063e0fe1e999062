// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/AzureAD/adal-broker-for-go/apps/logger"
)

// Store kinds.
const (
	storeMemory = "memory"
	storeFile   = "file"
	storeRedis  = "redis"
)

// Surface kinds.
const (
	surfaceNATS    = "nats"
	surfaceBrowser = "browser"
)

// Config is the service configuration, read from the environment. Redis settings are
// read separately, see redis.Config.
type Config struct {
	NATSURL       string `env:"ADAL_NATS_URL,default=nats://127.0.0.1:4222"`
	SubjectPrefix string `env:"ADAL_SUBJECT_PREFIX,default=adal"`
	Queue         string `env:"ADAL_QUEUE,default=adalbroker"`

	// Store is memory, file or redis.
	Store    string `env:"ADAL_STORE,default=file"`
	CacheDir string `env:"ADAL_CACHE_DIR"`
	// Passphrase derives the file store key. Empty means the legacy default.
	Passphrase string `env:"ADAL_CACHE_PASSPHRASE"`

	// KeyVaultURL, when set, makes the file store passphrase a Key Vault secret.
	KeyVaultURL          string `env:"ADAL_KEYVAULT_URL"`
	KeyVaultSecret       string `env:"ADAL_KEYVAULT_SECRET,default=adal-cache-passphrase"`
	KeyVaultAuthority    string `env:"ADAL_KEYVAULT_AUTHORITY"`
	KeyVaultClientID     string `env:"ADAL_KEYVAULT_CLIENT_ID"`
	KeyVaultRefreshToken string `env:"ADAL_KEYVAULT_REFRESH_TOKEN"`

	// Surface is nats or browser.
	Surface string `env:"ADAL_SURFACE,default=nats"`

	// SharedBroker enables the shared account broker, stored next to the token caches.
	SharedBroker bool     `env:"ADAL_SHARED_BROKER,default=false"`
	UseBroker    bool     `env:"ADAL_USE_BROKER,default=false"`
	TrustedHosts []string `env:"ADAL_TRUSTED_HOSTS"`

	Workers     int           `env:"ADAL_WORKERS,default=4"`
	HTTPTimeout time.Duration `env:"ADAL_HTTP_TIMEOUT,default=30s"`
	Discovery   bool          `env:"ADAL_DISCOVERY,default=true"`

	LogLevel  string `env:"ADAL_LOG_LEVEL,default=info"`
	LogFormat string `env:"ADAL_LOG_FORMAT,default=json"`
}

// loadConfig decodes the environment and checks the result.
func loadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("reading configuration: %w", err)
	}
	if cfg.CacheDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return Config{}, fmt.Errorf("ADAL_CACHE_DIR is not set and there is no user cache directory: %w", err)
		}
		cfg.CacheDir = filepath.Join(dir, "adal")
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store {
	case storeMemory, storeFile, storeRedis:
	default:
		return fmt.Errorf("ADAL_STORE must be %s, %s or %s, got %q", storeMemory, storeFile, storeRedis, c.Store)
	}
	switch c.Surface {
	case surfaceNATS, surfaceBrowser:
	default:
		return fmt.Errorf("ADAL_SURFACE must be %s or %s, got %q", surfaceNATS, surfaceBrowser, c.Surface)
	}
	if c.KeyVaultURL != "" && (c.KeyVaultAuthority == "" || c.KeyVaultClientID == "" || c.KeyVaultRefreshToken == "") {
		return fmt.Errorf("ADAL_KEYVAULT_URL requires ADAL_KEYVAULT_AUTHORITY, ADAL_KEYVAULT_CLIENT_ID and ADAL_KEYVAULT_REFRESH_TOKEN")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("ADAL_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}
