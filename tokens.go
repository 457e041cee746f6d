package auth

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

const sessionIDLength = 32

// generateToken returns length random bytes, hex encoded.
func generateToken(length int) (string, error) {
	if length <= 0 {
		length = DefaultTokenLength
	}
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// NewSessionID returns a fresh unguessable session identifier.
func NewSessionID() (string, error) {
	return generateToken(sessionIDLength)
}
