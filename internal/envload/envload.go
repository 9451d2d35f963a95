// Package envload locates and loads the nearest .env file so daemon and
// one-shot commands pick up provider keys without explicit flags.
package envload

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadNearest loads the .env file from cwd or the closest parent directory.
// Values never override variables already present in the environment.
// Returns the loaded path when found, empty string otherwise.
func LoadNearest() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir := wd
	for {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return "", err
			}
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
