package signer

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	payload := []byte("payment claim payload")
	sig := Sign(priv, payload)

	if len(sig) != ed25519.SignatureSize {
		t.Errorf("expected signature size %d, got %d", ed25519.SignatureSize, len(sig))
	}

	if !Verify(pub, payload, sig) {
		t.Error("signature verification failed")
	}

	// Verify with wrong payload should fail
	if Verify(pub, []byte("tampered payload"), sig) {
		t.Error("verification should fail with wrong payload")
	}

	// Verify with wrong signature should fail
	wrongSig := make([]byte, ed25519.SignatureSize)
	if Verify(pub, payload, wrongSig) {
		t.Error("verification should fail with wrong signature")
	}

	// Malformed inputs must yield false, never panic
	if Verify(pub, payload, []byte("short")) {
		t.Error("verification should fail with short signature")
	}
	if Verify([]byte("bad key"), payload, sig) {
		t.Error("verification should fail with malformed public key")
	}
}

func TestSaveAndLoadSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys", "device.key")

	pub, priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if err := SaveSeed(path, priv); err != nil {
		t.Fatalf("save seed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat key file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected key file mode 0600, got %o", perm)
	}

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("load private key: %v", err)
	}

	msg := []byte("round trip")
	if !Verify(pub, msg, Sign(loaded, msg)) {
		t.Error("loaded key does not match saved key")
	}
}

func TestLoadRawPrivateKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.key")

	pub, priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	// 64-byte raw private key (seed + public)
	if err := os.WriteFile(path, priv, 0600); err != nil {
		t.Fatalf("write raw key: %v", err)
	}

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("load raw key: %v", err)
	}
	if !Verify(pub, []byte("x"), Sign(loaded, []byte("x"))) {
		t.Error("raw key round trip failed")
	}
}

func TestLoadInvalidKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.key")

	if err := os.WriteFile(path, []byte("not a key at all, wrong length"), 0600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	if _, err := LoadPrivateKey(path); err == nil {
		t.Error("expected error loading garbage key")
	}
}

func TestPublicKey(t *testing.T) {
	pub, priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	derived := PublicKey(priv)
	if len(derived) != ed25519.PublicKeySize {
		t.Errorf("expected public key size %d, got %d", ed25519.PublicKeySize, len(derived))
	}
	if string(derived) != string(pub) {
		t.Error("derived public key does not match generated public key")
	}
}
