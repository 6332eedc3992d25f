package usecase

import (
	"crypto/rand"
	"fmt"
)

const cacheIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewCacheIDGenerator returns a generator of URL-safe random identifiers
// for shareable answer links. Collisions are possible and handled by the
// cache's insert-if-absent contract.
func NewCacheIDGenerator(length int) func() (string, error) {
	if length <= 0 {
		length = 12
	}
	return func() (string, error) {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for i, b := range buf {
			buf[i] = cacheIDAlphabet[int(b)%len(cacheIDAlphabet)]
		}
		return string(buf), nil
	}
}
