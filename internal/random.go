package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const opaqueSecretRawSize = 32

// NewOpaqueSecret returns a cryptographically random, URL-safe secret string.
// Secrets are 32 random bytes encoded as unpadded base64url: entropy-dense,
// cookie- and header-safe text.
func NewOpaqueSecret() (string, error) {
	var raw [opaqueSecretRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidateOpaqueSecret rejects values that cannot have been produced by
// NewOpaqueSecret. Store lookups build Redis keys from caller-supplied
// secrets, so malformed input is refused before it reaches the store.
func ValidateOpaqueSecret(secret string) error {
	raw, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil {
		return errors.New("malformed opaque secret")
	}
	if len(raw) != opaqueSecretRawSize {
		return errors.New("invalid opaque secret size")
	}
	return nil
}
