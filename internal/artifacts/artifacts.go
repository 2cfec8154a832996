// Package artifacts stores original and annotated images on the local file
// system, addressed by file name.
package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Storage writes artifacts into a single directory.
type Storage struct {
	dir string
}

// New creates a Storage rooted at dir, creating the directory if needed.
func New(dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Storage{dir: abs}, nil
}

// Dir returns the absolute storage directory.
func (s *Storage) Dir() string {
	return s.dir
}

// Save writes data under the sanitised form of name and returns the stored
// name, which is the reference used to read it back.
// The file is written to a temporary name first and renamed into place.
func (s *Storage) Save(name string, data []byte) (string, error) {
	safe := SanitizeFilename(name)
	if safe == "" {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", safe, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", safe, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, safe)); err != nil {
		return "", fmt.Errorf("store %s: %w", safe, err)
	}

	return safe, nil
}

// Open reads a previously saved artifact.
func (s *Storage) Open(name string) ([]byte, error) {
	safe := SanitizeFilename(name)
	if safe == "" || safe != name {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, safe))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Remove deletes a saved artifact. Removing a missing artifact is not an error.
func (s *Storage) Remove(name string) error {
	safe := SanitizeFilename(name)
	if safe == "" || safe != name {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(s.dir, safe))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SanitizeFilename reduces name to a safe base name: path components are
// stripped, spaces become underscores and anything other than ASCII letters,
// digits, '.', '-' and '_' is dropped. Leading dots are removed so the result
// is never hidden or a relative path.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}

	return strings.TrimLeft(b.String(), "._")
}
