package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the named script does not exist.
	ErrNotFound = errors.New("script not found")

	// ErrInvalidName indicates the script name fails identity constraints.
	ErrInvalidName = errors.New("invalid script name")
)

// Store provides file access for scripts under a fixed root directory.
// Script identities are simple filenames ending in the configured extension.
type Store struct {
	dir string
	ext string
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
func NewStore(dir, ext string) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("scripts directory is empty")
	}
	if !strings.HasPrefix(ext, ".") {
		return nil, fmt.Errorf("script extension %q must start with a dot", ext)
	}

	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create scripts directory: %w", err)
	}

	return &Store{dir: filepath.Clean(trimmed), ext: ext}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Extension returns the required script filename extension.
func (s *Store) Extension() string {
	return s.ext
}

// ValidateName checks that name is a simple filename with the required
// extension and no path separators.
func (s *Store) ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.Contains(name, "/") || strings.Contains(name, `\`) {
		return fmt.Errorf("%w: %q must not contain path separators", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, s.ext) || name == s.ext {
		return fmt.Errorf("%w: %q must be a simple %s filename", ErrInvalidName, name, s.ext)
	}
	if filepath.Clean(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Path returns the absolute-ish path of the named script inside the store.
// It does not check existence.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether the named script file is present on disk.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Mtime returns the script file's modification timestamp. The second return
// is false when the metadata cannot be read; callers must treat that as
// "no mtime available".
func (s *Store) Mtime(name string) (time.Time, bool) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Read returns the script's contents.
func (s *Store) Read(name string) ([]byte, error) {
	if err := s.ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read script %s: %w", name, err)
	}
	return data, nil
}

// Save writes the script's contents, creating or replacing the file.
func (s *Store) Save(name string, code []byte) error {
	if err := s.ValidateName(name); err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(name), code, 0o644); err != nil {
		return fmt.Errorf("write script %s: %w", name, err)
	}
	return nil
}

// Delete removes the script file. Deleting a missing script returns
// ErrNotFound.
func (s *Store) Delete(name string) error {
	if err := s.ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete script %s: %w", name, err)
	}
	return nil
}

// Scan lists the names of all scripts currently in the directory.
func (s *Store) Scan() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != s.ext {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
