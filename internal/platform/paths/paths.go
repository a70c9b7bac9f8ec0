package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const DefaultConfigPath = "config/default.yaml"

// ResolveDataRoot returns the directory holding spooled uploads and logs.
func ResolveDataRoot() string {
	if root := os.Getenv("CONSOLE_DATA_ROOT"); root != "" {
		return root
	}
	return filepath.Join(os.TempDir(), "ts-console")
}

// ResolveConfigPath picks the flag value, then CONSOLE_CONFIG, then the
// repository default.
func ResolveConfigPath(customPath string) string {
	if customPath != "" {
		return customPath
	}
	if p := os.Getenv("CONSOLE_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// UploadDir is where multipart uploads are spooled before analysis.
func UploadDir() string {
	return filepath.Join(ResolveDataRoot(), "uploads")
}

// EnsureDirs creates the data subdirectories if they don't exist.
func EnsureDirs(dirs ...string) error {
	if len(dirs) == 0 {
		dirs = []string{UploadDir(), filepath.Join(ResolveDataRoot(), "logs")}
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
