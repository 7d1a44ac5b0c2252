// Package appdir models the app data directory as a value passed to the
// objects that need it (Vault, salt storage), never as a global getter
// (see SPEC_FULL.md §9).
package appdir

import (
	"os"
	"path/filepath"
)

// Dir is an app data directory, created on first use.
type Dir struct {
	path string
}

// New returns a Dir rooted at path, creating it (mode 0700) if missing.
func New(path string) (Dir, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return Dir{}, err
	}
	return Dir{path: path}, nil
}

func (d Dir) Path() string { return d.path }

// Join returns path joined under the app data directory.
func (d Dir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.path}, elem...)...)
}
