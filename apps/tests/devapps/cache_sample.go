// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"log"
)

func listCache(ctx context.Context, config *Config) {
	m := newManager(config)
	defer m.Close()

	items, err := m.CacheReadAll(ctx, config.Authority, true).Wait(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, item := range items {
		fmt.Printf("%s %s %s mrrt=%v expires=%v\n", item.UserInfo.DisplayableID, item.ClientID, item.Resource, item.IsMultipleResourceRefreshToken, item.ExpiresOn)
	}
}

func clearCache(ctx context.Context, config *Config) {
	m := newManager(config)
	defer m.Close()

	if _, err := m.CacheClear(ctx, config.Authority, true).Wait(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Println("cache cleared")
}
