package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Fingerprint is a content digest of one input file. Two fingerprints are
// equal iff the underlying bytes are unchanged.
type Fingerprint string

// FileFingerprint hashes a file's contents with sha256.
func FileFingerprint(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}
