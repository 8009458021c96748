// Package templates manages the bridge's local template directory. Names
// arriving over HTTP are sanitized to a bare filename with a whitelisted
// suffix before touching the filesystem.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Allowed template file suffixes, lower-cased.
var allowedSuffixes = map[string]bool{
	".json": true,
	".flow": true,
}

// Info describes one stored template file.
type Info struct {
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size_bytes"`
	ModifiedAt int64  `json:"modified_at"`
}

// Store is a template directory rooted at a fixed path.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// SanitizeName reduces a client-supplied name to a safe bare filename.
// It returns "" when the name is empty, a dot entry, or carries a suffix
// outside the whitelist.
func SanitizeName(raw string) string {
	name := filepath.Base(strings.TrimSpace(raw))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	if !allowedSuffixes[strings.ToLower(filepath.Ext(name))] {
		return ""
	}
	return name
}

// resolve maps a raw name to an absolute path inside the store directory.
func (s *Store) resolve(raw string) (string, error) {
	name := SanitizeName(raw)
	if name == "" {
		return "", fmt.Errorf("invalid template filename %q (allowed extensions: .json, .flow)", raw)
	}
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, name)
	// filepath.Base already stripped any directory component, keep the
	// containment check anyway.
	if filepath.Dir(target) != dir {
		return "", fmt.Errorf("invalid template filename %q", raw)
	}
	return target, nil
}

// List returns the whitelisted files in the store, sorted by name. A
// missing directory lists as empty.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("read templates dir: %w", err)
	}
	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !allowedSuffixes[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Filename:   entry.Name(),
			SizeBytes:  stat.Size(),
			ModifiedAt: stat.ModTime().Unix(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Filename < infos[j].Filename })
	return infos, nil
}

// Path resolves a template name to its on-disk path without checking
// existence. Callers stat or read it themselves.
func (s *Store) Path(raw string) (string, error) {
	return s.resolve(raw)
}

// Read returns the bytes of a stored template. Missing files surface as
// fs errors satisfying os.IsNotExist.
func (s *Store) Read(raw string) ([]byte, error) {
	target, err := s.resolve(raw)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

// Write stores the template content, creating the directory on demand,
// and returns the saved file's info.
func (s *Store) Write(raw string, content []byte) (Info, error) {
	target, err := s.resolve(raw)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("create templates dir: %w", err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return Info{}, fmt.Errorf("write template: %w", err)
	}
	stat, err := os.Stat(target)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Filename:   filepath.Base(target),
		SizeBytes:  stat.Size(),
		ModifiedAt: stat.ModTime().Unix(),
	}, nil
}
