package snapshot

import (
	"bytes"
	"errors"
	"testing"

	"github.com/yndnr/diagsave-go/pkg/crypto/adaptive"
)

func TestValidateConfig(t *testing.T) {
	salt := bytes.Repeat([]byte{0x5a}, SaltLength)

	tests := []struct {
		name    string
		cfg     EncryptionConfig
		wantErr error
	}{
		{
			name:    "empty config is valid",
			cfg:     EncryptionConfig{},
			wantErr: nil,
		},
		{
			name:    "valid key",
			cfg:     EncryptionConfig{Key: make([]byte, 32)},
			wantErr: nil,
		},
		{
			name:    "key too short",
			cfg:     EncryptionConfig{Key: make([]byte, 8)},
			wantErr: ErrKeyTooShort,
		},
		{
			name:    "valid passphrase",
			cfg:     EncryptionConfig{Passphrase: []byte("mypassword123"), Salt: salt},
			wantErr: nil,
		},
		{
			name:    "passphrase too weak",
			cfg:     EncryptionConfig{Passphrase: []byte("short"), Salt: salt},
			wantErr: ErrPassphraseTooWeak,
		},
		{
			name:    "passphrase without salt",
			cfg:     EncryptionConfig{Passphrase: []byte("mypassword123")},
			wantErr: ErrSaltRequired,
		},
		{
			name:    "passphrase overrides key validation",
			cfg:     EncryptionConfig{Key: make([]byte, 8), Passphrase: []byte("mypassword123"), Salt: salt},
			wantErr: nil,
		},
		{
			name:    "unknown algorithm",
			cfg:     EncryptionConfig{Key: make([]byte, 32), Algorithm: "rot13"},
			wantErr: adaptive.ErrUnknownCipher,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewKeyring(t *testing.T) {
	tests := []struct {
		name     string
		cfg      EncryptionConfig
		wantNil  bool
		wantType adaptive.CipherType
	}{
		{
			name:    "disabled",
			cfg:     EncryptionConfig{},
			wantNil: true,
		},
		{
			name:     "aes-gcm",
			cfg:      EncryptionConfig{Key: make([]byte, 32), Algorithm: "aes-gcm"},
			wantType: adaptive.CipherAESGCM,
		},
		{
			name:     "chacha20-poly1305",
			cfg:      EncryptionConfig{Key: make([]byte, 32), Algorithm: "chacha20-poly1305"},
			wantType: adaptive.CipherChaCha20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kr, err := NewKeyring(tt.cfg)
			if err != nil {
				t.Fatalf("NewKeyring() error = %v", err)
			}
			if (kr == nil) != tt.wantNil {
				t.Fatalf("NewKeyring() nil = %v, want %v", kr == nil, tt.wantNil)
			}

			c, err := kr.CipherFor("diagram-1")
			if err != nil {
				t.Fatalf("CipherFor() error = %v", err)
			}
			if tt.wantNil {
				if c != nil {
					t.Error("disabled keyring should hand out nil ciphers")
				}
				return
			}
			if c.Type() != tt.wantType {
				t.Errorf("cipher type = %s, want %s", c.Type(), tt.wantType)
			}
		})
	}
}

func TestKeyring_NamespacesDoNotShareKeys(t *testing.T) {
	kr, err := NewKeyring(EncryptionConfig{Key: bytes.Repeat([]byte{1}, 32), Algorithm: "aes-gcm"})
	if err != nil {
		t.Fatal(err)
	}
	defer kr.Close()

	a, err := kr.CipherFor("a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := kr.CipherFor("b")
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := a.Encrypt([]byte("hello"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Decrypt(sealed, nil); err == nil {
		t.Error("namespace b must not decrypt records sealed for namespace a")
	}

	a2, _ := kr.CipherFor("a")
	got, err := a2.Decrypt(sealed, nil)
	if err != nil {
		t.Fatalf("same namespace decrypt: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want hello", got)
	}
}

func TestDeriveKeyFromPassphrase(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, SaltLength)

	k1 := DeriveKeyFromPassphrase([]byte("correct horse"), salt)
	k2 := DeriveKeyFromPassphrase([]byte("correct horse"), salt)
	if len(k1) != 32 {
		t.Fatalf("key length = %d, want 32", len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase and salt must derive the same key")
	}

	k3 := DeriveKeyFromPassphrase([]byte("correct horse"), bytes.Repeat([]byte{8}, SaltLength))
	if bytes.Equal(k1, k3) {
		t.Error("different salt must derive a different key")
	}
}

func TestDeriveSubkey(t *testing.T) {
	master := bytes.Repeat([]byte{3}, 32)

	s1, err := DeriveSubkey(master, "one", 32)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := DeriveSubkey(master, "two", 32)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(s1, s2) {
		t.Error("different info must derive different subkeys")
	}

	if _, err := DeriveSubkey(make([]byte, 4), "x", 32); !errors.Is(err, ErrKeyTooShort) {
		t.Errorf("short master key: got %v, want ErrKeyTooShort", err)
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey(32)
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != 32 {
		t.Errorf("len = %d, want 32", len(key))
	}

	if _, err := GenerateKey(8); !errors.Is(err, ErrKeyTooShort) {
		t.Errorf("GenerateKey(8) = %v, want ErrKeyTooShort", err)
	}

	ZeroKey(key)
	if !bytes.Equal(key, make([]byte, 32)) {
		t.Error("ZeroKey should clear the key")
	}
}
