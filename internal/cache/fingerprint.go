// Package cache persists criteria sets across runs, keyed by a normalized
// asset fingerprint, so identical asset classes never pay for a second
// criteria-selection call. Entries are never evicted: the keyspace is the
// set of (vendor, os_type, role) triples seen, which is small, and
// entries are cheap. That is a deliberate simplification, not an
// oversight; created_at is stored so a TTL policy could be added without
// a migration.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the stable cache key for an asset class: sha256
// over the lowercase-normalized (vendor, os_type, role) triple.
func Fingerprint(vendor, osType, role string) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	h := sha256.Sum256([]byte(norm(vendor) + "|" + norm(osType) + "|" + norm(role)))
	return hex.EncodeToString(h[:])
}
