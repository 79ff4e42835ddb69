package catalog

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "clean title unchanged", title: "Halo 2", want: "Halo 2"},
		{name: "invalid chars replaced", title: `Ico: Castle/Shadow?`, want: "Ico Castle Shadow"},
		{name: "region tag preserved", title: "Final Fantasy VII (USA)", want: "Final Fantasy VII (USA)"},
		{name: "trailing dots trimmed", title: "S.T.A.L.K.E.R.", want: "S.T.A.L.K.E.R"},
		{name: "empty becomes placeholder", title: "///", want: "Unknown Game"},
		{name: "runs collapse", title: "A  __  B", want: "A B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeTitle(tt.title))
		})
	}
}

func TestSanitizeTitle_LengthCap(t *testing.T) {
	long := strings.Repeat("a", 300)
	assert.Len(t, SanitizeTitle(long), 200)
}

func TestPartNumber(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"Disc 1", 1},
		{"Disc 01", 1},
		{"1", 1},
		{"Disc 2", 2},
		{"disc 12", 12},
		{"Single Disc", 1},
		{"", 1},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, PartNumber(tt.label))
		})
	}
}

func TestNamer_RomPath_Normalized(t *testing.T) {
	n := &Namer{BaseDir: "/roms", Normalized: true}

	tests := []struct {
		name      string
		category  string
		title     string
		partLabel string
		ext       string
		want      string
	}{
		{
			name:     "single disc has no suffix",
			category: "PS1", title: "Vagrant Story", partLabel: "Disc 1", ext: ".chd",
			want: filepath.Join("/roms", "psx", "Vagrant Story.chd"),
		},
		{
			name:     "disc 01 also has no suffix",
			category: "PS1", title: "Vagrant Story", partLabel: "Disc 01", ext: ".chd",
			want: filepath.Join("/roms", "psx", "Vagrant Story.chd"),
		},
		{
			name:     "second disc gets suffix",
			category: "PS1", title: "Final Fantasy VIII", partLabel: "Disc 2", ext: ".chd",
			want: filepath.Join("/roms", "psx", "Final Fantasy VIII (Disc 2).chd"),
		},
		{
			name:     "unknown category falls back",
			category: "Some Console", title: "Game", partLabel: "1", ext: "iso",
			want: filepath.Join("/roms", "some_console", "Game.iso"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.RomPath(tt.category, tt.title, tt.partLabel, tt.ext))
		})
	}
}

func TestNamer_RomPath_Legacy(t *testing.T) {
	n := &Namer{BaseDir: "/downloads"}

	got := n.RomPath("Xbox", "Halo: Combat Evolved", "Disc 2", ".zip")
	assert.Equal(t, filepath.Join("/downloads", "Xbox", "Halo Combat Evolved", "disc_2.zip"), got)
}

func TestNamer_ExtractionDir(t *testing.T) {
	normalized := &Namer{BaseDir: "/roms", Normalized: true}
	assert.Equal(t, filepath.Join("/roms", "gc"), normalized.ExtractionDir("GameCube", "Pikmin"))

	legacy := &Namer{BaseDir: "/roms"}
	assert.Equal(t, filepath.Join("/roms", "GameCube", "Pikmin"), legacy.ExtractionDir("GameCube", "Pikmin"))
}

func TestFolderFor(t *testing.T) {
	assert.Equal(t, "psx", FolderFor("PlayStation"))
	assert.Equal(t, "xbox", FolderFor("Xbox"))
	assert.Equal(t, "tg16", FolderFor("TurboGrafx-16"))
}

func TestIsROMExtension(t *testing.T) {
	assert.True(t, IsROMExtension("Xbox", ".iso"))
	assert.True(t, IsROMExtension("Xbox", ".ISO"))
	// Not in the Xbox mapping but in the broad fallback list.
	assert.True(t, IsROMExtension("Xbox", ".chd"))
	assert.False(t, IsROMExtension("Xbox", ".txt"))
}

func TestExpectedExtensions_UnmappedCategory(t *testing.T) {
	assert.Equal(t, []string{".zip", ".7z"}, ExpectedExtensions("Vectrex"))
}
