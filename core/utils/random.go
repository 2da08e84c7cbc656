package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RandString returns n random bytes encoded as hex.
func RandString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
