package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemFor(t *testing.T) {
	m, ok := SystemFor("PS1")
	require.True(t, ok)
	assert.Equal(t, "psx", m.Folder)
	assert.Equal(t, "Sony PlayStation", m.FullName)
	assert.Contains(t, m.Extensions, ".chd")

	_, ok = SystemFor("Amiga CD32")
	assert.False(t, ok)
}

func TestFolderFor_UnmappedFallback(t *testing.T) {
	assert.Equal(t, "gc", FolderFor("GameCube"))
	assert.Equal(t, "amiga_cd32", FolderFor("Amiga CD32"))
}

func TestSupportedCategories(t *testing.T) {
	categories := SupportedCategories()

	require.NotEmpty(t, categories)
	assert.IsIncreasing(t, categories)
	assert.Contains(t, categories, "PS1")
	assert.Contains(t, categories, "Neo Geo Pocket Color")
}
