// Package cache provides byte caches used to memoize embedding calls.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a namespaced cache key from the hash of parts.
// Parts are joined with a NUL separator so ("ab","c") and ("a","bc") differ.
func Key(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "factrag:" + namespace + ":" + hex.EncodeToString(hash[:])
}
