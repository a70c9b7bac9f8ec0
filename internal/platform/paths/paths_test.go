package paths_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-console/internal/platform/paths"
)

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG", "")
	assert.Equal(t, paths.DefaultConfigPath, paths.ResolveConfigPath(""))

	t.Setenv("CONSOLE_CONFIG", "/etc/console.yaml")
	assert.Equal(t, "/etc/console.yaml", paths.ResolveConfigPath(""))
	assert.Equal(t, "custom.yaml", paths.ResolveConfigPath("custom.yaml"))
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CONSOLE_DATA_ROOT", root)

	require.NoError(t, paths.EnsureDirs())
	assert.Equal(t, filepath.Join(root, "uploads"), paths.UploadDir())

	for _, sub := range []string{"uploads", "logs"} {
		info, err := os.Stat(filepath.Join(root, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
