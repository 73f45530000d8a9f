package core

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// FingerprintSeparator joins field values before hashing.
// It is not expected to occur inside values.
const FingerprintSeparator = "__"

// FingerprintOf computes the content identity of r: its field values in schema
// order joined by FingerprintSeparator, MD5-hashed. The record ID is not part
// of the fingerprint, so a stored row and a freshly parsed line with the same
// values always match.
func FingerprintOf(s Schema, r Record) Fingerprint {
	values := make([]string, len(s.Fields))
	copy(values, r.Values)

	sum := md5.Sum([]byte(strings.Join(values, FingerprintSeparator)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// SnapshotVersion returns a token identifying the content of a table.
// Two row sets with the same multiset of fingerprints share a version,
// regardless of row order or IDs.
func SnapshotVersion(s Schema, rows []Record) string {
	fps := make([]string, len(rows))
	for i, r := range rows {
		fps[i] = string(FingerprintOf(s, r))
	}
	sort.Strings(fps)

	h := sha256.New()
	h.Write([]byte(s.Domain))
	for _, fp := range fps {
		h.Write([]byte{'\n'})
		h.Write([]byte(fp))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
