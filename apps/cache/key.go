// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import "strings"

// KeySeparator separates the fields of a cache key.
const KeySeparator = "$"

// keyEscaper escapes the separator (and the escape character itself) inside fields,
// so that distinct field tuples never join into the same key.
var keyEscaper = strings.NewReplacer("%", "%25", KeySeparator, "%24")

// Key builds the lookup key for a cache item. It is a pure function of its inputs:
//   - authority is lower cased and trailing slashes are dropped;
//   - resource is kept as given, except that the Placeholder means no resource;
//   - clientID and userID are lower cased, the Placeholder means absent;
//   - isMRRT is encoded as "y" or "n";
//   - tenant is lower cased and may be empty.
func Key(authority, resource, clientID string, isMRRT bool, userID, tenant string) string {
	authority = strings.TrimRight(strings.ToLower(Normalize(authority)), "/")
	mrrt := "n"
	if isMRRT {
		mrrt = "y"
	}

	fields := []string{
		authority,
		Normalize(resource),
		strings.ToLower(Normalize(clientID)),
		mrrt,
		strings.ToLower(Normalize(userID)),
		strings.ToLower(Normalize(tenant)),
	}
	for i, f := range fields {
		fields[i] = keyEscaper.Replace(f)
	}
	return strings.Join(fields, KeySeparator)
}
