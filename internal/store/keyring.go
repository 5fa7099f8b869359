package store

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "loreterm"

const smtpPasswordKey = "smtp-password"

// KeyringSecretStore keeps secrets in the OS keyring
// (macOS Keychain, Windows Credential Manager, or Linux Secret Service).
type KeyringSecretStore struct{}

// NewKeyringSecretStore returns a new KeyringSecretStore.
func NewKeyringSecretStore() *KeyringSecretStore {
	return &KeyringSecretStore{}
}

// SaveSMTPPassword stores the password git send-email authenticates with
// for the given sender identity.
func (k *KeyringSecretStore) SaveSMTPPassword(identity, password string) error {
	if err := keyring.Set(serviceName, smtpPasswordKey+":"+identity, password); err != nil {
		return fmt.Errorf("failed to save smtp password to keyring: %w", err)
	}
	return nil
}

// LoadSMTPPassword returns the stored password, or ErrNotFound.
func (k *KeyringSecretStore) LoadSMTPPassword(identity string) (string, error) {
	pw, err := keyring.Get(serviceName, smtpPasswordKey+":"+identity)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("smtp password for %s: %w", identity, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load smtp password from keyring: %w", err)
	}
	return pw, nil
}

// DeleteSMTPPassword removes the stored password.
func (k *KeyringSecretStore) DeleteSMTPPassword(identity string) error {
	err := keyring.Delete(serviceName, smtpPasswordKey+":"+identity)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete smtp password from keyring: %w", err)
	}
	return nil
}
