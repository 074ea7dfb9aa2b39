package apikey

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "api_keys.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIssue(t *testing.T) {
	store := setupStore(t)

	issued, err := store.Issue("ci pipeline")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if !strings.HasPrefix(issued.Secret, "apk_") {
		t.Errorf("Secret = %q, want apk_ prefix", issued.Secret)
	}
	if len(issued.Secret) != len("apk_")+64 {
		t.Errorf("Secret length = %d, want %d", len(issued.Secret), len("apk_")+64)
	}
	if issued.KeyID == "" {
		t.Error("KeyID should be set")
	}
	if issued.Name != "ci pipeline" {
		t.Errorf("Name = %q", issued.Name)
	}
	if !issued.Active {
		t.Error("new key should be active")
	}

	// Two issuances never collide
	second, err := store.Issue("other")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if second.Secret == issued.Secret {
		t.Error("two issued secrets are identical")
	}
}

func TestIssue_DefaultName(t *testing.T) {
	store := setupStore(t)
	issued, err := store.Issue("   ")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if issued.Name != "Unnamed API Key" {
		t.Errorf("Name = %q, want default", issued.Name)
	}
}

func TestValidate(t *testing.T) {
	store := setupStore(t)
	issued, _ := store.Issue("test")

	key, err := store.Validate(issued.Secret)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if key.KeyID != issued.KeyID {
		t.Errorf("KeyID = %q, want %q", key.KeyID, issued.KeyID)
	}
	if key.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", key.RequestCount)
	}
	if key.LastUsed == nil {
		t.Error("LastUsed should be set after validation")
	}

	// Repeat validation keeps succeeding and keeps counting
	key, err = store.Validate(issued.Secret)
	if err != nil {
		t.Fatalf("second Validate() error = %v", err)
	}
	if key.RequestCount != 2 {
		t.Errorf("RequestCount = %d, want 2", key.RequestCount)
	}
}

func TestValidate_Rejections(t *testing.T) {
	store := setupStore(t)
	store.Issue("test")

	for _, secret := range []string{"", "nonsense", "apk_" + strings.Repeat("0", 64)} {
		if _, err := store.Validate(secret); !errors.Is(err, ErrKeyInvalid) {
			t.Errorf("Validate(%q) error = %v, want ErrKeyInvalid", secret, err)
		}
	}
}

func TestRevoke(t *testing.T) {
	store := setupStore(t)
	issued, _ := store.Issue("test")

	if err := store.Revoke(issued.KeyID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	// Hash still matches, but validation must fail identically to unknown keys
	if _, err := store.Validate(issued.Secret); !errors.Is(err, ErrKeyInvalid) {
		t.Errorf("Validate(revoked) error = %v, want ErrKeyInvalid", err)
	}

	if err := store.Revoke("no-such-id"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Revoke(unknown) error = %v, want ErrKeyNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	store := setupStore(t)
	issued, _ := store.Issue("test")

	if err := store.Remove(issued.KeyID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	keys, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("List() has %d keys after Remove, want 0", len(keys))
	}

	if err := store.Remove(issued.KeyID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("second Remove() error = %v, want ErrKeyNotFound", err)
	}
}

func TestList(t *testing.T) {
	store := setupStore(t)
	first, _ := store.Issue("first")
	second, _ := store.Issue("second")
	store.Revoke(second.KeyID)

	keys, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("List() = %d keys, want 2", len(keys))
	}

	byID := map[string]Key{}
	for _, k := range keys {
		byID[k.KeyID] = k
	}
	if !byID[first.KeyID].Active {
		t.Error("first key should be active")
	}
	if byID[second.KeyID].Active {
		t.Error("revoked key should be inactive")
	}
}
