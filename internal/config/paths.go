package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// GetGlobalConfigDir returns the path to the global configuration directory (~/.quill).
// It's a variable to allow overriding in tests.
var GetGlobalConfigDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".quill"), nil
}

// GetDataDir returns the directory holding task folders and the index.
// Resolution order (first match wins):
// 1. Explicit config via "data.dir" (Viper/env/flag)
// 2. Local directory: .quill/data (if exists)
// 3. XDG_DATA_HOME/quill (if XDG_DATA_HOME is set)
// 4. Global fallback: ~/.quill/data
func GetDataDir() string {
	if path := viper.GetString("data.dir"); path != "" {
		return path
	}

	local := filepath.Join(".quill", "data")
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "quill")
	}

	dir, err := GetGlobalConfigDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(dir, "data")
}
