package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// AppDirName is the per-user directory holding config, logs and the wallet.
const AppDirName = ".skillforge"

// GetAppDir returns ~/.skillforge, or a directory under the system temp dir
// when the home directory cannot be resolved.
func GetAppDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "skillforge")
	}
	return filepath.Join(home, AppDirName)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
