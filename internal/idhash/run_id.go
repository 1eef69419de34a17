package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(metric|period_seconds|fitter_id|data_fingerprint)
// Returns hex-encoded hash (64 characters).
func ComputeRunID(
	metric string,
	periodSeconds int,
	fitterID string,
	dataFingerprint string,
) string {
	data := fmt.Sprintf("%s|%d|%s|%s",
		metric,
		periodSeconds,
		fitterID,
		dataFingerprint,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
