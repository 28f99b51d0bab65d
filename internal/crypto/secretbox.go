package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const secretboxNonceSize = 24

// SecretBox seals values with XSalsa20-Poly1305. The encoded form is
// base64(nonce || box).
type SecretBox struct{}

func (SecretBox) Hash(password string) Key {
	return HashPassword(password)
}

func (SecretBox) Encrypt(plaintext string, key Key) (string, error) {
	var nonce [secretboxNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	k := [KeySize]byte(key)
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &k)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (SecretBox) Decrypt(ciphertext string, key Key) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode base64: %v", ErrDecrypt, err)
	}
	if len(raw) < secretboxNonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, ErrCiphertextShort)
	}

	var nonce [secretboxNonceSize]byte
	copy(nonce[:], raw[:secretboxNonceSize])

	k := [KeySize]byte(key)
	plaintext, ok := secretbox.Open(nil, raw[secretboxNonceSize:], &nonce, &k)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
