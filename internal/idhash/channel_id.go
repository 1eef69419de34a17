package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeChannelID computes a deterministic channel_id using SHA256.
// Formula: SHA256(name|medium)
// Returns hex-encoded hash (64 characters).
func ComputeChannelID(name string, medium string) string {
	data := fmt.Sprintf("%s|%s", name, medium)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
