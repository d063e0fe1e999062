// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
)

// args are the positional arguments of an action, each a JSON value.
type args []json.RawMessage

func (a args) present(i int) bool {
	return i < len(a) && !bytes.Equal(bytes.TrimSpace(a[i]), []byte("null"))
}

// str returns argument i as a string. JSON null and the placeholder give "".
func (a args) str(i int) (string, error) {
	if i >= len(a) {
		return "", fmt.Errorf("argument %d is missing", i)
	}
	if !a.present(i) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(a[i], &s); err != nil {
		return "", fmt.Errorf("argument %d is not a string: %w", i, err)
	}
	return cache.Normalize(s), nil
}

// optStr is str with absent or malformed arguments giving "".
func (a args) optStr(i int) string {
	s, err := a.str(i)
	if err != nil {
		return ""
	}
	return s
}

// boolean returns argument i as a bool. The strings "true" and "false" are accepted.
func (a args) boolean(i int) (bool, error) {
	if !a.present(i) {
		return false, fmt.Errorf("argument %d is missing", i)
	}
	var b bool
	if err := json.Unmarshal(a[i], &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(a[i], &s); err == nil {
		switch strings.ToLower(s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("argument %d is not a boolean", i)
}

// optBool is boolean with absent or malformed arguments giving def.
func (a args) optBool(i int, def bool) bool {
	b, err := a.boolean(i)
	if err != nil {
		return def
	}
	return b
}

// integer returns argument i as an int.
func (a args) integer(i int) (int, error) {
	if !a.present(i) {
		return 0, fmt.Errorf("argument %d is missing", i)
	}
	var n int
	if err := json.Unmarshal(a[i], &n); err != nil {
		return 0, fmt.Errorf("argument %d is not an integer: %w", i, err)
	}
	return n, nil
}
