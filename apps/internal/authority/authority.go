// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package authority parses and validates authority URLs.
package authority

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
)

var aadTrustedHostList = map[string]bool{
	"login.windows.net":            true, // Microsoft Azure Worldwide - Used in validation scenarios where host is not this list
	"login.chinacloudapi.cn":       true, // Microsoft Azure China
	"login.microsoftonline.de":     true, // Microsoft Azure Blackforest
	"login-us.microsoftonline.com": true, // Microsoft Azure US Government - Legacy
	"login.microsoftonline.us":     true, // Microsoft Azure US Government
	"login.microsoftonline.com":    true, // Microsoft Azure Worldwide
	"login.cloudgovapi.us":         true, // Microsoft Azure US Government
}

// TrustedHost checks if an AAD host is trusted/valid.
func TrustedHost(host string) bool {
	return aadTrustedHostList[strings.ToLower(host)]
}

// Info holds a parsed authority.
type Info struct {
	// Raw is the string the authority was created from.
	Raw string
	// Canonical is https://host/tenant in lower case, without a trailing slash.
	Canonical string
	Host      string
	Tenant    string
	// Validate records whether the host was checked against the trusted host list.
	Validate bool
}

// AuthorizeEndpoint is the OAuth2 authorization endpoint of the authority.
func (i Info) AuthorizeEndpoint() string {
	return i.Canonical + "/oauth2/authorize"
}

// TokenEndpoint is the OAuth2 token endpoint of the authority.
func (i Info) TokenEndpoint() string {
	return i.Canonical + "/oauth2/token"
}

// New parses raw. With validate set, the host must be a public or sovereign AAD host
// or one of trusted. All failures are configuration errors.
func New(raw string, validate bool, trusted ...string) (Info, error) {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return Info{}, errors.New(errors.KindConfiguration, "authority %q is not a valid URL", raw)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return Info{}, errors.New(errors.KindConfiguration, "authority %q must use https", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return Info{}, errors.New(errors.KindConfiguration, "authority %q must not have a query or fragment", raw)
	}
	host := strings.ToLower(u.Host)
	if u.Hostname() == "" {
		return Info{}, errors.New(errors.KindConfiguration, "authority %q has no host", raw)
	}
	tenant, err := firstPathSegment(u)
	if err != nil {
		return Info{}, errors.New(errors.KindConfiguration, "authority %q: %s", raw, err)
	}

	if validate && !TrustedHost(u.Hostname()) && !contains(trusted, u.Hostname()) {
		return Info{}, errors.New(errors.KindConfiguration, "authority %q: host %s is not a trusted authority", raw, host)
	}

	tenant = strings.ToLower(tenant)
	return Info{
		Raw:       raw,
		Canonical: fmt.Sprintf("https://%s/%s", host, tenant),
		Host:      host,
		Tenant:    tenant,
		Validate:  validate,
	}, nil
}

func firstPathSegment(u *url.URL) (string, error) {
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("authority does not have a tenant segment in the path")
}

func contains(hosts []string, host string) bool {
	for _, h := range hosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}
