// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package keybootstrap derives the secret key that encrypts persisted token caches.

The key is derived with PBKDF2-SHA256 from a passphrase. Deployments that never set a
passphrase use the legacy default, so caches written by older releases stay readable.
The passphrase can also be kept in Azure Key Vault.
*/
package keybootstrap

import (
	"context"
	"crypto/sha256"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"golang.org/x/crypto/pbkdf2"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
)

// DefaultPassphrase is the legacy passphrase used when none is configured.
const DefaultPassphrase = "com.microsoft.aad.CordovaADAL"

const (
	iterations = 100
	// KeySize is the derived key length in bytes (AES-256).
	KeySize = 32
)

var salt = []byte("abcdedfdfd")

// Source supplies the passphrase.
type Source interface {
	Passphrase(ctx context.Context) (string, error)
}

// Static is a fixed passphrase. The empty Static means DefaultPassphrase.
type Static string

// Passphrase implements Source.
func (s Static) Passphrase(context.Context) (string, error) {
	if s == "" {
		return DefaultPassphrase, nil
	}
	return string(s), nil
}

// SecretGetter is implemented by *azsecrets.Client.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// KeyVaultSecret reads the passphrase from a Key Vault secret.
type KeyVaultSecret struct {
	Client SecretGetter
	Name   string
	// Version of the secret, empty for the latest.
	Version string
}

// NewKeyVaultSecret creates a KeyVaultSecret for the secret name in the vault at vaultURL.
func NewKeyVaultSecret(vaultURL, name string, cred azcore.TokenCredential) (*KeyVaultSecret, error) {
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, err, "creating key vault client")
	}
	return &KeyVaultSecret{Client: client, Name: name}, nil
}

// Passphrase implements Source.
func (k *KeyVaultSecret) Passphrase(ctx context.Context) (string, error) {
	resp, err := k.Client.GetSecret(ctx, k.Name, k.Version, nil)
	if err != nil {
		return "", err
	}
	if resp.Value == nil || *resp.Value == "" {
		return "", errors.New(errors.KindConfiguration, "key vault secret %q has no value", k.Name)
	}
	return *resp.Value, nil
}

// Derive returns the key for passphrase.
func Derive(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New)
}

// Key fetches the passphrase from src and derives the key. Any failure is a
// configuration error: without the key the cache cannot be opened.
func Key(ctx context.Context, src Source) ([]byte, error) {
	if src == nil {
		src = Static("")
	}
	p, err := src.Passphrase(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, err, "secret key bootstrap failed")
	}
	return Derive(p), nil
}
