package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// LocHash computes the immutable identity hash for a UrlEntry.Loc:
// UrlEntry.locHash = SHA-256(loc).
func LocHash(loc string) string {
	sum := sha256.Sum256([]byte(loc))
	return hex.EncodeToString(sum[:])
}

// ContentHash computes Sitemap.contentHash over a list of child locs,
// hashing them in the order given. Callers sort the list first so that
// unchanged children round-trip to the same hash regardless of document
// ordering.
func ContentHash(locs []string) string {
	h := sha256.New()
	for _, l := range locs {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
