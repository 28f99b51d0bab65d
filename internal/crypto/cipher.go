package crypto

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/sha3"
)

const KeySize = 32

var (
	ErrDecrypt       = errors.New("decryption failed")
	ErrUnknownCipher = errors.New("unknown cipher")
)

// Key is a symmetric key derived from a password.
type Key [KeySize]byte

// Cipher encrypts values under a password-derived key. Ciphertexts are
// standard Base64 strings so they survive a round trip through .env files.
type Cipher interface {
	Hash(password string) Key
	Encrypt(plaintext string, key Key) (string, error)
	Decrypt(ciphertext string, key Key) (string, error)
}

const (
	CipherSecretBox = "secretbox"
	CipherAESGCM    = "aes-gcm"
	CipherAge       = "age"
)

var ciphers = map[string]func() Cipher{
	CipherSecretBox: func() Cipher { return SecretBox{} },
	CipherAESGCM:    func() Cipher { return AESGCM{} },
	CipherAge:       func() Cipher { return Age{} },
}

// New returns the cipher registered under name. An empty name selects secretbox.
func New(name string) (Cipher, error) {
	if name == "" {
		name = CipherSecretBox
	}
	ctor, ok := ciphers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownCipher, name, Names())
	}
	return ctor(), nil
}

func Names() []string {
	names := make([]string, 0, len(ciphers))
	for name := range ciphers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HashPassword derives a key as the SHA3-256 digest of the password. The
// derivation is deterministic so that the same password always opens values
// written in earlier sessions.
func HashPassword(password string) Key {
	return Key(sha3.Sum256([]byte(password)))
}
