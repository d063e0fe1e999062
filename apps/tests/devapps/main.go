// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"os"
)

func main() {
	ctx := context.Background()
	config := CreateConfig("config.json")

	// Choose a sample to run.
	exampleType := "1"
	if len(os.Args) > 1 {
		exampleType = os.Args[1]
	}

	if exampleType == "1" {
		// The first call opens the browser, the second is served from the file cache.
		acquireTokenInteractive(ctx, config)
		acquireTokenSilent(ctx, config)
	} else if exampleType == "2" {
		listCache(ctx, config)
	} else if exampleType == "3" {
		clearCache(ctx, config)
	} else {
		panic("unknown sample " + exampleType)
	}
}
