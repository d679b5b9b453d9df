package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/subosito/gotenv"
)

// LoadEnvFile sets variables from a .env file without overriding ones
// already present in the environment. A missing file is not an error.
func LoadEnvFile(filename string) error {
	if _, err := os.Stat(filename); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(filename); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", filename, err)
	}
	return nil
}

// IsEnvFile reports whether path names a dotenv file rather than a
// structured config file viper can parse.
func IsEnvFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".env") || strings.HasSuffix(base, ".env") || filepath.Ext(base) == ""
}
