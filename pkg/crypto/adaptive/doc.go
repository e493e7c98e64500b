// Package adaptive provides authenticated encryption with automatic
// algorithm selection.
//
// Supported algorithms:
//
//   - AES-256-GCM: preferred where the CPU has AES instructions
//   - ChaCha20-Poly1305: fallback elsewhere
//
// Ciphertexts carry their random nonce as a prefix, so a Cipher value is
// stateless and safe for concurrent use.
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
package adaptive
