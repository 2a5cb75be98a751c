package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Charsets for different random string types.
const (
	CharsetAlphanumeric  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	CharsetUpperAlphaNum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CharsetDigits        = "0123456789"
)

// String generates a random string from the given charset.
func String(length int, charset string) (string, error) {
	if length <= 0 {
		return "", nil
	}
	if charset == "" {
		charset = CharsetAlphanumeric
	}

	result := make([]byte, length)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("generate random index: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// Alphanumeric generates a random mixed-case alphanumeric string.
// Useful for channel nonces.
func Alphanumeric(length int) string {
	s, _ := String(length, CharsetAlphanumeric)
	return s
}

// UpperAlphaNum generates a random uppercase alphanumeric string.
func UpperAlphaNum(length int) string {
	s, _ := String(length, CharsetUpperAlphaNum)
	return s
}

// Int64InRange returns a uniform random int64 in [min, max).
func Int64InRange(min, max int64) (int64, error) {
	if max <= min {
		return 0, fmt.Errorf("invalid range [%d, %d)", min, max)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max-min))
	if err != nil {
		return 0, fmt.Errorf("generate random int: %w", err)
	}
	return min + n.Int64(), nil
}
