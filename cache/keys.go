package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultNamespace prefixes every cache key.
const DefaultNamespace = "mvel"

// Kind names a cache partition.
type Kind string

// Cache kinds.
const (
	KindParse   Kind = "parse"
	KindExplain Kind = "explain"
	KindContext Kind = "context"
)

// TTLs maps each kind to its expiry.
type TTLs map[Kind]time.Duration

// DefaultTTLs returns parse 7 days, explain 24 hours, context 6 hours.
func DefaultTTLs() TTLs {
	return TTLs{
		KindParse:   7 * 24 * time.Hour,
		KindExplain: 24 * time.Hour,
		KindContext: 6 * time.Hour,
	}
}

// For returns the TTL for kind, falling back to the default table.
func (t TTLs) For(kind Kind) time.Duration {
	if d, ok := t[kind]; ok && d > 0 {
		return d
	}
	return DefaultTTLs()[kind]
}

// Hash returns the lowercase hex SHA-256 of the UTF-8 bytes of raw.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyFor builds "<namespace>:cache:<kind>:<hash>". An empty namespace uses DefaultNamespace.
func KeyFor(namespace string, kind Kind, hash string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + ":cache:" + string(kind) + ":" + hash
}
