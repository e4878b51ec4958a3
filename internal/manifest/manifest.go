// Package manifest persists the source path -> content hash map used to
// decide whether anything changed since the last generation.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// Manifest maps a source-root-relative path (forward slashes) to the
// lowercase hex digest of the file content.
type Manifest map[string]string

// Load reads the manifest at path. A missing, unreadable or malformed file
// yields an empty manifest, which forces a full rebuild.
func Load(path string) Manifest {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("manifest.unreadable", "path", path, "err", err)
		}
		return Manifest{}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn("manifest.invalid", "path", path, "err", err)
		return Manifest{}
	}
	if m == nil {
		return Manifest{}
	}
	return m
}

// Marshal returns the canonical encoding: keys sorted, two-space indent,
// trailing newline.
func (m Manifest) Marshal() ([]byte, error) {
	if m == nil {
		m = Manifest{}
	}
	data, err := json.MarshalIndent(map[string]string(m), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save replaces the manifest at path atomically (temp file + rename).
func (m Manifest) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir manifest dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write manifest: %w", errors.Join(writeErr, closeErr))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Equal reports whether both manifests track the same key set with the
// same hash for every key.
func (m Manifest) Equal(other Manifest) bool {
	if len(m) != len(other) {
		return false
	}
	for path, hash := range m {
		if h, ok := other[path]; !ok || h != hash {
			return false
		}
	}
	return true
}

// Changed returns the paths whose entries differ between m and other,
// including paths present on only one side.
func (m Manifest) Changed(other Manifest) []string {
	var out []string
	for path, hash := range m {
		if h, ok := other[path]; !ok || h != hash {
			out = append(out, path)
		}
	}
	for path := range other {
		if _, ok := m[path]; !ok {
			out = append(out, path)
		}
	}
	return out
}

// Clone returns a shallow copy.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FileHash returns the lowercase hex xxh3 digest of the file at path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Hash returns the digest FileHash would compute for content.
func Hash(content []byte) string {
	h := xxh3.New()
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
