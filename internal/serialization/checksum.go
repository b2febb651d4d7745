package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ComputeChecksum computes the SHA-256 checksum of the tensor data section.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares computed checksum against stored checksum.
// Returns ErrChecksumMismatch if they don't match.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}

// HeaderDigest returns the hex SHA-256 of the RFC 8785 canonical form of a JSON header.
// Two headers that differ only in key order or whitespace share a digest.
func HeaderDigest(headerJSON []byte) (string, error) {
	canonical, err := jcs.Transform(headerJSON)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize header: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
