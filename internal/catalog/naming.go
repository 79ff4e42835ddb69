package catalog

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const maxFilenameLength = 200

var (
	invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	collapseRuns         = regexp.MustCompile(`[_\s]+`)
	firstNumber          = regexp.MustCompile(`\d+`)
)

// SanitizeTitle makes a title safe as a cross-platform filename: invalid
// characters become underscores, runs collapse to a single space, leading
// and trailing dots/spaces are trimmed and the result is length-capped.
func SanitizeTitle(title string) string {
	s := invalidFilenameChars.ReplaceAllString(title, "_")
	s = collapseRuns.ReplaceAllString(s, " ")
	s = strings.Trim(s, " .")

	if s == "" {
		return "Unknown Game"
	}

	if len(s) > maxFilenameLength {
		s = strings.TrimRight(s[:maxFilenameLength], " .")
	}

	return s
}

// PartNumber extracts the numeric value of a part label: "Disc 2" -> 2,
// "1" -> 1. Labels with no number ("Single Disc") count as 1.
func PartNumber(label string) int {
	m := firstNumber.FindString(label)
	if m == "" {
		return 1
	}

	n, err := strconv.Atoi(m)
	if err != nil {
		return 1
	}

	return n
}

// Namer builds output paths under a base directory, in either the
// normalized (frontend-compatible) layout or the legacy per-item layout.
type Namer struct {
	BaseDir    string
	Normalized bool
}

// RomPath returns the destination for a part's payload file.
//
// Normalized: {base}/{system-folder}/{Title}[ (Disc N)]{ext}. The disc
// suffix is decided by numeric value: any label whose number is 1 gets no
// suffix, so "1", "Disc 1" and "Disc 01" all collapse to the bare title.
// Legacy: {base}/{category}/{Title}/disc_{N}{ext}.
func (n *Namer) RomPath(category, title, partLabel, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	safeTitle := SanitizeTitle(title)
	num := PartNumber(partLabel)

	if !n.Normalized {
		return filepath.Join(n.BaseDir, category, safeTitle, "disc_"+strconv.Itoa(num)+ext)
	}

	name := safeTitle
	if num > 1 {
		name += " (Disc " + strconv.Itoa(num) + ")"
	}

	return filepath.Join(n.BaseDir, FolderFor(category), name+ext)
}

// ExtractionDir returns the directory extracted payload files land in.
// Normalized output goes straight into the system folder, not a per-item
// subdirectory.
func (n *Namer) ExtractionDir(category, title string) string {
	if !n.Normalized {
		return filepath.Join(n.BaseDir, category, SanitizeTitle(title))
	}

	return filepath.Join(n.BaseDir, FolderFor(category))
}
