// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

// To use browser login use "Mobile and desktop applications" in your App Registration's Authentication
// and register a http://localhost:<port> redirect URI, see:
// https://learn.microsoft.com/en-us/azure/active-directory/develop/reply-url#localhost-exceptions

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/AzureAD/adal-broker-for-go/apps/manager"
)

func acquireTokenInteractive(ctx context.Context, config *Config) {
	m := newManager(config)
	defer m.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	res, err := m.AcquireTokenInteractive(ctx, manager.InteractiveParams{
		Authority:            config.Authority,
		ValidateAuthority:    true,
		Resource:             config.Resource,
		ClientID:             config.ClientID,
		RedirectURI:          config.RedirectURI,
		UserID:               config.Username,
		ExtraQueryParameters: config.ExtraQueryParameters,
	}).Wait(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Username: %s; accesstoken: %v; expires: %v\n", res.UserInfo.DisplayableID, res.AccessToken, res.ExpiresOn)
}

func acquireTokenSilent(ctx context.Context, config *Config) {
	m := newManager(config)
	defer m.Close()

	res, err := m.AcquireTokenSilent(ctx, manager.SilentParams{
		Authority:         config.Authority,
		ValidateAuthority: true,
		Resource:          config.Resource,
		ClientID:          config.ClientID,
		UserID:            config.Username,
	}).Wait(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Silent: accesstoken: %v; expires: %v\n", res.AccessToken, res.ExpiresOn)
}
