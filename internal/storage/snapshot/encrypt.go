package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/diagsave-go/pkg/crypto/adaptive"
)

// Encryption errors.
var (
	ErrKeyTooShort       = errors.New("snapshot: encryption key too short (minimum 16 bytes)")
	ErrPassphraseTooWeak = errors.New("snapshot: passphrase too weak (minimum 8 characters)")
	ErrSaltRequired      = errors.New("snapshot: passphrase requires a salt of at least 16 bytes")
)

const (
	// MinKeyLength is the minimum master key length.
	MinKeyLength = 16

	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the minimum salt length for passphrase derivation.
	SaltLength = 16

	// Argon2id parameters for passphrase derivation.
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4

	subkeyLength = 32
	subkeyInfo   = "diagsave/snapshot/v1/"
)

// EncryptionConfig configures at-rest encryption of snapshot payloads.
// Leaving both Key and Passphrase empty disables encryption.
type EncryptionConfig struct {
	// Key is the raw master key (at least 16 bytes).
	Key []byte

	// Passphrase derives the master key with Argon2id. Takes precedence
	// over Key.
	Passphrase []byte

	// Salt is the Argon2id salt. Required with Passphrase and must stay
	// stable across restarts, otherwise old records no longer decrypt.
	Salt []byte

	// Algorithm is "aes-gcm", "chacha20-poly1305" or empty for the
	// platform default.
	Algorithm string
}

// Enabled reports whether the configuration turns encryption on.
func (c EncryptionConfig) Enabled() bool {
	return len(c.Key) > 0 || len(c.Passphrase) > 0
}

// ValidateConfig validates the encryption configuration.
func ValidateConfig(cfg EncryptionConfig) error {
	if _, err := adaptive.ParseType(cfg.Algorithm); err != nil {
		return err
	}
	if len(cfg.Passphrase) > 0 {
		if len(cfg.Passphrase) < MinPassphraseLength {
			return ErrPassphraseTooWeak
		}
		if len(cfg.Salt) < SaltLength {
			return ErrSaltRequired
		}
		return nil
	}
	if len(cfg.Key) > 0 && len(cfg.Key) < MinKeyLength {
		return ErrKeyTooShort
	}
	return nil
}

// Keyring hands out per-namespace ciphers derived from one master key.
//
// Subkeys are derived with HKDF-SHA256 using the namespace as info, so a
// record copied into another namespace fails authentication.
type Keyring struct {
	master []byte
	algo   adaptive.CipherType
}

// NewKeyring builds a Keyring from cfg. It returns (nil, nil) when
// encryption is disabled.
func NewKeyring(cfg EncryptionConfig) (*Keyring, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, nil
	}

	var master []byte
	if len(cfg.Passphrase) > 0 {
		master = DeriveKeyFromPassphrase(cfg.Passphrase, cfg.Salt)
	} else {
		master = append([]byte(nil), cfg.Key...)
	}

	algo, _ := adaptive.ParseType(cfg.Algorithm)
	return &Keyring{master: master, algo: algo}, nil
}

// CipherFor returns the cipher for a namespace.
func (k *Keyring) CipherFor(namespace string) (adaptive.Cipher, error) {
	if k == nil {
		return nil, nil
	}
	sub, err := DeriveSubkey(k.master, subkeyInfo+namespace, subkeyLength)
	if err != nil {
		return nil, err
	}
	defer ZeroKey(sub)
	return adaptive.NewWithType(sub, k.algo)
}

// Close wipes the master key.
func (k *Keyring) Close() {
	if k != nil {
		ZeroKey(k.master)
	}
}

// DeriveKeyFromPassphrase derives a 32-byte key with Argon2id.
func DeriveKeyFromPassphrase(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, subkeyLength)
}

// DeriveSubkey derives a subkey from a master key using HKDF-SHA256.
func DeriveSubkey(masterKey []byte, info string, length int) ([]byte, error) {
	if len(masterKey) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("snapshot: derive subkey: %w", err)
	}
	return key, nil
}

// GenerateKey generates a random key of the specified length.
func GenerateKey(length int) ([]byte, error) {
	if length < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("snapshot: generate key: %w", err)
	}
	return key, nil
}

// ZeroKey zeroes key in place.
func ZeroKey(key []byte) {
	clear(key)
}
