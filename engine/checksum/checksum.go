// Package checksum fingerprints content for change detection and dedup.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Bytes returns the lowercase hex SHA-256 digest of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// String returns the digest of the UTF-8 bytes of s.
func String(s string) string { return Bytes([]byte(s)) }

// Reader streams r through SHA-256.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("checksum: read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File streams the file at path through SHA-256.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: open %s: %w", path, err)
	}
	defer f.Close()
	return Reader(f)
}

// Verify reports whether the file at path has digest want.
func Verify(path, want string) (bool, error) {
	got, err := File(path)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
