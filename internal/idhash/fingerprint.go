package idhash

import (
	"crypto/sha256"
	"hash"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// Fingerprinter accumulates canonical record lines and renders a compact
// base58 digest. Identical records added in identical order always produce
// identical fingerprints, which is what replay verification relies on.
type Fingerprinter struct {
	h hash.Hash
}

// NewFingerprinter creates an empty fingerprinter.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{h: sha256.New()}
}

// Add appends one record line built from parts joined with "|".
func (f *Fingerprinter) Add(parts ...string) {
	f.h.Write([]byte(strings.Join(parts, "|")))
	f.h.Write([]byte{'\n'})
}

// Sum renders the accumulated digest as base58 (typically 43-44 characters).
func (f *Fingerprinter) Sum() string {
	return base58.Encode(f.h.Sum(nil))
}

// FormatFloat renders a float64 canonically for fingerprint records.
// Shortest round-trip form, so equal values are byte-identical.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatInt renders an int64 canonically for fingerprint records.
func FormatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
