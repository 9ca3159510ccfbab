package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func randomKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESGCM(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		errorMsg string
	}{
		{"empty key", "", "encryption key is empty"},
		{"invalid base64", "not-valid-base64!@#$", "base64 decode failed"},
		{"key too short", base64.StdEncoding.EncodeToString(make([]byte, 16)), "must be 32 bytes"},
		{"key too long", base64.StdEncoding.EncodeToString(make([]byte, 64)), "must be 32 bytes"},
		{"valid", base64.StdEncoding.EncodeToString(make([]byte, 32)), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewAESGCM(tt.key)
			if tt.errorMsg == "" {
				if err != nil || s == nil {
					t.Fatalf("NewAESGCM() = %v, %v", s, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("NewAESGCM() error = %v, want containing %q", err, tt.errorMsg)
			}
		})
	}
}

func TestSealOpenBindsLabel(t *testing.T) {
	s, err := NewAESGCM(randomKey(t))
	if err != nil {
		t.Fatal(err)
	}
	secret := []byte("https://discord.com/api/webhooks/1/token")

	sealed, err := s.Seal(secret, []byte("tenant:youtube"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	got, err := s.Open(sealed, []byte("tenant:youtube"))
	if err != nil || string(got) != string(secret) {
		t.Fatalf("Open() = %q, %v", got, err)
	}
	if _, err := s.Open(sealed, []byte("tenant:other")); !errors.Is(err, ErrOpen) {
		t.Errorf("Open() with wrong label err = %v, want ErrOpen", err)
	}

	again, _ := s.Seal(secret, []byte("tenant:youtube"))
	if string(again) == string(sealed) {
		t.Error("Seal() is deterministic; nonce not random")
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	s, _ := NewAESGCM(randomKey(t))
	sealed, _ := s.Seal([]byte("ya29.token"), nil)

	tests := map[string][]byte{
		"short":      sealed[:8],
		"flipped":    append(append([]byte{}, sealed[:len(sealed)-1]...), sealed[len(sealed)-1]^0xff),
		"empty":      {},
		"nonce only": sealed[:12],
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Open(in, nil); !errors.Is(err, ErrOpen) {
				t.Errorf("Open() err = %v, want ErrOpen", err)
			}
		})
	}
}

func TestOpenWithDifferentKeyFails(t *testing.T) {
	a, _ := NewAESGCM(randomKey(t))
	b, _ := NewAESGCM(randomKey(t))
	sealed, _ := a.Seal([]byte("refresh-token"), nil)
	if _, err := b.Open(sealed, nil); err == nil {
		t.Error("Open() with another key succeeded")
	}
}

func TestFieldHelpers(t *testing.T) {
	s, _ := NewAESGCM(randomKey(t))

	stored, version, err := SealField(s, "secret", "oauth:youtube:access")
	if err != nil {
		t.Fatalf("SealField() error = %v", err)
	}
	if version != VersionAESGCM || stored == "secret" {
		t.Errorf("SealField() = %q v%d, want sealed v1", stored, version)
	}
	got, err := OpenField(s, stored, version, "oauth:youtube:access")
	if err != nil || got != "secret" {
		t.Errorf("OpenField() = %q, %v", got, err)
	}

	plain, version, _ := SealField(nil, "secret", "x")
	if plain != "secret" || version != VersionPlaintext {
		t.Errorf("SealField(nil) = %q v%d, want plaintext v0", plain, version)
	}
	if got, _ := OpenField(s, plain, VersionPlaintext, "x"); got != "secret" {
		t.Errorf("OpenField(v0) = %q, want legacy plaintext", got)
	}

	if empty, v, _ := SealField(s, "", "x"); empty != "" || v != VersionPlaintext {
		t.Errorf("SealField(empty) = %q v%d", empty, v)
	}
}

func TestOpenFieldErrors(t *testing.T) {
	s, _ := NewAESGCM(randomKey(t))
	tests := []struct {
		name    string
		sealer  Sealer
		stored  string
		version int
	}{
		{"encrypted without key", nil, "abc", VersionAESGCM},
		{"bad base64", s, "!!!", VersionAESGCM},
		{"unknown version", s, "abc", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OpenField(tt.sealer, tt.stored, tt.version, "x"); err == nil {
				t.Error("OpenField() expected error")
			}
		})
	}
}
