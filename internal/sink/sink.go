// Package sink writes generated artifacts to disk. Writes are idempotent: a
// file whose bytes already match is left untouched, so its mtime does not
// move and downstream file watchers stay quiet.
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Header is the first line of every generated file. Prune only considers
// files that start with it.
const Header = "// @generated by endpointgen. DO NOT EDIT."

// RouteFile is the name of a per-route bridging file.
const RouteFile = "route.ts"

// Sink writes artifacts under the local filesystem.
type Sink struct {
	// Mode is the file permission mode (default: 0644).
	Mode os.FileMode

	// RemoveOrphans makes Prune delete the orphans it finds instead of
	// only reporting them.
	RemoveOrphans bool
}

// New creates a Sink with default permissions.
func New(removeOrphans bool) *Sink {
	return &Sink{Mode: 0o644, RemoveOrphans: removeOrphans}
}

// WriteIfChanged writes content to path unless the file already holds
// exactly those bytes. It reports whether a write happened. Parent
// directories are created as needed and the write is a temp file + rename.
func (s *Sink) WriteIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directories: %w", err)
	}

	mode := s.Mode
	if mode == 0 {
		mode = 0o644
	}

	tmp, err := os.CreateTemp(dir, ".endpointgen-*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(content)
	closeErr := tmp.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("write temp file: %w", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("close temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("set file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("rename temp file: %w", err)
	}
	return true, nil
}

// Prune finds generated route files under routesDir that are not in keep
// (absolute paths). Hand-written route files, recognized by the missing
// Header, are never touched. Orphans are returned sorted; they are deleted
// only when RemoveOrphans is set. A missing routesDir has no orphans.
func (s *Sink) Prune(routesDir string, keep map[string]bool) ([]string, error) {
	if routesDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(routesDir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var orphans []string
	err := filepath.WalkDir(routesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != RouteFile || keep[path] {
			return nil
		}
		generated, err := isGenerated(path)
		if err != nil {
			return err
		}
		if generated {
			orphans = append(orphans, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan routes: %w", err)
	}
	sort.Strings(orphans)

	for _, path := range orphans {
		if !s.RemoveOrphans {
			slog.Warn("sink.orphan", "path", path)
			continue
		}
		if err := os.Remove(path); err != nil {
			return orphans, fmt.Errorf("remove orphan: %w", err)
		}
		slog.Info("sink.pruned", "path", path)
		removeEmptyParents(filepath.Dir(path), routesDir)
	}
	return orphans, nil
}

func isGenerated(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	buf := make([]byte, len(Header))
	n, _ := io.ReadFull(f, buf)
	return n == len(Header) && string(buf) == Header, nil
}

// removeEmptyParents removes dir and its ancestors while they are empty,
// stopping at (and keeping) root.
func removeEmptyParents(dir, root string) {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
