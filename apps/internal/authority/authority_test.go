// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package authority

import (
	"testing"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/kylelemons/godebug/pretty"
)

func TestNew(t *testing.T) {
	tests := []struct {
		desc     string
		raw      string
		validate bool
		trusted  []string
		want     Info
		err      bool
	}{
		{
			desc:     "public cloud",
			raw:      "https://login.microsoftonline.com/common",
			validate: true,
			want: Info{
				Raw:       "https://login.microsoftonline.com/common",
				Canonical: "https://login.microsoftonline.com/common",
				Host:      "login.microsoftonline.com",
				Tenant:    "common",
				Validate:  true,
			},
		},
		{
			desc: "mixed case and extra segments",
			raw:  "https://Login.Windows.NET/Contoso.onmicrosoft.com/oauth2/",
			want: Info{
				Raw:       "https://Login.Windows.NET/Contoso.onmicrosoft.com/oauth2/",
				Canonical: "https://login.windows.net/contoso.onmicrosoft.com",
				Host:      "login.windows.net",
				Tenant:    "contoso.onmicrosoft.com",
			},
		},
		{
			desc:     "untrusted host without validation",
			raw:      "https://adfs.contoso.com/adfs",
			validate: false,
			want: Info{
				Raw:       "https://adfs.contoso.com/adfs",
				Canonical: "https://adfs.contoso.com/adfs",
				Host:      "adfs.contoso.com",
				Tenant:    "adfs",
			},
		},
		{
			desc:     "untrusted host added to the list",
			raw:      "https://adfs.contoso.com/adfs",
			validate: true,
			trusted:  []string{"ADFS.contoso.com"},
			want: Info{
				Raw:       "https://adfs.contoso.com/adfs",
				Canonical: "https://adfs.contoso.com/adfs",
				Host:      "adfs.contoso.com",
				Tenant:    "adfs",
				Validate:  true,
			},
		},
		{desc: "untrusted host with validation", raw: "https://evil.example.com/common", validate: true, err: true},
		{desc: "http", raw: "http://login.microsoftonline.com/common", err: true},
		{desc: "no tenant", raw: "https://login.microsoftonline.com/", err: true},
		{desc: "no host", raw: "https:///common", err: true},
		{desc: "empty", raw: "", err: true},
		{desc: "garbage", raw: "://bad", err: true},
		{desc: "query", raw: "https://login.microsoftonline.com/common?x=1", err: true},
	}

	for _, test := range tests {
		got, err := New(test.raw, test.validate, test.trusted...)
		switch {
		case err == nil && test.err:
			t.Errorf("TestNew(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestNew(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			if errors.KindOf(err) != errors.KindConfiguration {
				t.Errorf("TestNew(%s): got kind %s, want ConfigurationError", test.desc, errors.KindOf(err))
			}
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestNew(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestEndpoints(t *testing.T) {
	info, err := New("https://login.microsoftonline.com/common", true)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.AuthorizeEndpoint(); got != "https://login.microsoftonline.com/common/oauth2/authorize" {
		t.Errorf("TestEndpoints: AuthorizeEndpoint() = %s", got)
	}
	if got := info.TokenEndpoint(); got != "https://login.microsoftonline.com/common/oauth2/token" {
		t.Errorf("TestEndpoints: TokenEndpoint() = %s", got)
	}
}
