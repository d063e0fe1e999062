// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/AzureAD/adal-broker-for-go/apps/identity/oauth"
	"github.com/AzureAD/adal-broker-for-go/apps/keybootstrap"
	"github.com/AzureAD/adal-broker-for-go/apps/manager"
)

// Config represents the config.json required to run the samples
type Config struct {
	ClientID    string `json:"client_id"`
	Authority   string `json:"authority"`
	Resource    string `json:"resource"`
	Username    string `json:"username"`
	RedirectURI string `json:"redirect_uri"`
	CacheDir    string `json:"cache_dir"`
	// ExtraQueryParameters are appended to the authorization URL, e.g. "domain_hint=contoso.com".
	ExtraQueryParameters string `json:"extra_query_parameters"`
}

// CreateConfig creates the Config struct from a json file.
func CreateConfig(fileName string) *Config {
	data, err := os.ReadFile(fileName)
	if err != nil {
		log.Fatal(err)
	}

	config := &Config{}
	err = json.Unmarshal(data, config)
	if err != nil {
		log.Fatal(err)
	}
	if config.CacheDir == "" {
		config.CacheDir = "cache"
	}
	return config
}

// newManager builds a manager that keeps tokens in encrypted files under the config's
// cache directory and signs in with the system browser.
func newManager(config *Config) *manager.Manager {
	m, err := manager.New(
		oauth.New(),
		manager.WithBrowserSurface(),
		manager.WithStores(manager.FileStores(config.CacheDir, keybootstrap.Static(""))),
	)
	if err != nil {
		log.Fatal(err)
	}
	return m
}
