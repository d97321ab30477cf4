package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArea_SaveAndRemove(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	area, err := NewArea(base)
	require.NoError(t, err)
	require.DirExists(t, area.Dir())

	require.NoError(t, area.Save("img-0.png", []byte{0x89, 0x50}))
	data, err := os.ReadFile(filepath.Join(area.Dir(), "img-0.png"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 0x50}, data)

	require.NoError(t, area.Remove())
	require.NoDirExists(t, area.Dir())
}

func TestArea_UniqueNamespaces(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	first, err := NewArea(base)
	require.NoError(t, err)
	second, err := NewArea(base)
	require.NoError(t, err)
	require.NotEqual(t, first.Dir(), second.Dir())
}

func TestArea_RejectsTraversal(t *testing.T) {
	t.Parallel()

	area, err := NewArea(t.TempDir())
	require.NoError(t, err)
	require.Error(t, area.Save("../escape.txt", []byte("nope")))
	require.Error(t, area.Save("", []byte("nope")))
}
