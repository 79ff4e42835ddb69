// Package integrity verifies downloaded files against expected checksums.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const hashChunkSize = 64 * 1024

// HashFile streams the file through SHA-256 in bounded chunks and returns
// the lowercase hex digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()

	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFile compares the file's SHA-256 against expected,
// case-insensitively. A mismatch returns (false, nil); only an unreadable
// file makes the call itself fail.
func VerifyFile(path, expected string) (bool, error) {
	actual, err := HashFile(path)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(actual, expected), nil
}
