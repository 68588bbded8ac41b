package encryption

import (
	"context"
	"testing"

	"trust-service/internal/config"
)

func testManager() *Manager {
	cfg := &config.Config{}
	return NewManager(cfg, nil)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	encoded, keyID, err := m.EncryptField(ctx, "6037991234567890")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if keyID != "local" {
		t.Fatalf("expected local key id, got %q", keyID)
	}
	if encoded == "6037991234567890" {
		t.Fatal("ciphertext equals plaintext")
	}

	plain, err := m.DecryptField(ctx, encoded)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "6037991234567890" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	m := testManager()
	if _, err := m.DecryptField(context.Background(), "not-an-envelope"); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestCiphertextsDiffer(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	a, _, err := m.EncryptField(ctx, "IR820540102680020817909002")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, _, err := m.EncryptField(ctx, "IR820540102680020817909002")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Fatal("expected unique nonce/key per encryption")
	}
}
