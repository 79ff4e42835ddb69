// Package archive sniffs the real container format of a completed download
// and extracts its payload into the configured layout. Detection trusts the
// file's leading bytes, not its extension: the download endpoint routinely
// serves 7z content under a .zip name.
package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Format is a detected container format.
type Format string

const (
	FormatZip     Format = "zip"
	Format7z      Format = "7z"
	FormatUnknown Format = "unknown"
)

var (
	zipMagic      = []byte{0x50, 0x4B}
	sevenZipMagic = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
)

// Sniff reads the first 8 bytes of the file and classifies it. Files with
// neither signature fall back to their extension, else FormatUnknown.
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, 8)
	n, _ := f.Read(head)
	head = head[:n]

	if bytes.HasPrefix(head, zipMagic) {
		return FormatZip, nil
	}

	if bytes.HasPrefix(head, sevenZipMagic) {
		return Format7z, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return FormatZip, nil
	case ".7z":
		return Format7z, nil
	}

	return FormatUnknown, nil
}
