package store

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringSecretStore(t *testing.T) {
	keyring.MockInit()
	k := NewKeyringSecretStore()

	if _, err := k.LoadSMTPPassword("dev@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadSMTPPassword() before save error = %v, want ErrNotFound", err)
	}
	if err := k.SaveSMTPPassword("dev@example.com", "hunter2"); err != nil {
		t.Fatalf("SaveSMTPPassword() error: %v", err)
	}
	got, err := k.LoadSMTPPassword("dev@example.com")
	if err != nil {
		t.Fatalf("LoadSMTPPassword() error: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("password = %q, want hunter2", got)
	}
	if err := k.DeleteSMTPPassword("dev@example.com"); err != nil {
		t.Fatalf("DeleteSMTPPassword() error: %v", err)
	}
	if err := k.DeleteSMTPPassword("dev@example.com"); err != nil {
		t.Errorf("DeleteSMTPPassword() on absent secret error: %v", err)
	}
}
