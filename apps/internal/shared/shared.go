// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package shared

import (
	"net/http"
	"time"
)

// DefaultClient is our default shared HTTP client.
var DefaultClient = &http.Client{Timeout: 30 * time.Second}
