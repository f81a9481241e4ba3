package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sealed:v1:"

// SealAPIKey encrypts a provider API key with a key derived from the
// application secret so the plaintext is never stored in the database.
func SealAPIKey(apiKey, secret string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("api key is empty")
	}

	key := sha256.Sum256([]byte(secret))

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %v", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(apiKey), &nonce, &key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenAPIKey decrypts a sealed API key. Values without the sealed prefix
// are returned as-is for compatibility with records written before sealing.
func OpenAPIKey(sealed, secret string) (string, error) {
	if !IsSealedAPIKey(sealed) {
		return sealed, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("malformed sealed api key: %v", err)
	}
	if len(raw) < 24 {
		return "", fmt.Errorf("malformed sealed api key: too short")
	}

	key := sha256.Sum256([]byte(secret))

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, &key)
	if !ok {
		return "", fmt.Errorf("failed to open sealed api key")
	}

	return string(plaintext), nil
}

func IsSealedAPIKey(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// MaskAPIKey produces the representation returned to API clients. The
// plaintext never leaves the service once sealed.
func MaskAPIKey(value string) string {
	if value == "" {
		return ""
	}
	return "[CONFIGURED]"
}
