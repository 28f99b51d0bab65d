package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"filippo.io/age"
)

// ageWorkFactor is the scrypt log2 cost written into each value. Every
// variable in a file is opened on --check-previous and toggles, so it is kept
// below age's interactive default.
const ageWorkFactor = 15

// Age seals values as age files with a scrypt recipient whose passphrase is
// the hex-encoded password key. The encoded form is base64 of the binary age
// file.
type Age struct{}

func (Age) Hash(password string) Key {
	return HashPassword(password)
}

func agePassphrase(key Key) string {
	return hex.EncodeToString(key[:])
}

func (Age) Encrypt(plaintext string, key Key) (string, error) {
	recipient, err := age.NewScryptRecipient(agePassphrase(key))
	if err != nil {
		return "", fmt.Errorf("create age recipient: %w", err)
	}
	recipient.SetWorkFactor(ageWorkFactor)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (Age) Decrypt(ciphertext string, key Key) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode base64: %v", ErrDecrypt, err)
	}

	identity, err := age.NewScryptIdentity(agePassphrase(key))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}
