package discover

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SourceExt is the extension of endpoint source files.
const SourceExt = ".ts"

// IgnoreFileName holds extra glob patterns (one per line) to skip.
const IgnoreFileName = ".endpointignore"

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".git": true, ".hg": true, ".idea": true,
	".next": true, ".npm": true, ".pnpm-store": true, ".svn": true,
	".turbo": true, ".vscode": true, ".yarn": true, "__tests__": true,
	"bower_components": true, "build": true, "coverage": true,
	"dist": true, "node_modules": true, "out": true, "tmp": true,
}

// IGNORE_SUFFIXES are TypeScript files that never hold endpoints.
var IGNORE_SUFFIXES = []string{".d.ts", ".test.ts", ".spec.ts"}

// FileInfo represents a discovered endpoint source file.
type FileInfo struct {
	Path    string // absolute path
	RelPath string // relative to source root, forward slashes
}

// Options configures file discovery.
type Options struct {
	IgnoreFile string // path to an ignore file (optional)
}

// IsSource reports whether a source-root-relative path names an endpoint
// source file. Directory components are checked against IGNORE_PATTERNS.
func IsSource(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	if !strings.HasSuffix(relPath, SourceExt) {
		return false
	}
	for _, suffix := range IGNORE_SUFFIXES {
		if strings.HasSuffix(relPath, suffix) {
			return false
		}
	}
	parts := strings.Split(relPath, "/")
	for _, dir := range parts[:len(parts)-1] {
		if IGNORE_PATTERNS[dir] {
			return false
		}
	}
	return true
}

// shouldSkipDir returns true if the directory should be skipped during discovery.
func shouldSkipDir(name, rel string, extraIgnore []string) bool {
	if IGNORE_PATTERNS[name] {
		return true
	}
	return matchesAny(name, rel, extraIgnore)
}

func matchesAny(name, rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Matcher applies the discovery filters to source-root-relative paths, so
// that a walk and a stream of notifications select the same files.
type Matcher struct {
	patterns []string
}

// NewMatcher loads the ignore file for root. A missing ignore file means no
// extra patterns.
func NewMatcher(root string, opts *Options) *Matcher {
	patterns, _ := LoadIgnoreFile(ignorePath(root, opts))
	return &Matcher{patterns: patterns}
}

// SkipDir reports whether the directory name at rel is pruned.
func (m *Matcher) SkipDir(name, rel string) bool {
	return shouldSkipDir(name, rel, m.patterns)
}

// SkipPath reports whether rel is, or lies below, a pruned directory.
func (m *Matcher) SkipPath(rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := range parts {
		if m.SkipDir(parts[i], strings.Join(parts[:i+1], "/")) {
			return true
		}
	}
	return false
}

// Match reports whether rel names a file Discover would return.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if !IsSource(rel) || matchesAny(path.Base(rel), rel, m.patterns) {
		return false
	}
	dir := path.Dir(rel)
	return dir == "." || !m.SkipPath(dir)
}

// Discover walks the endpoint source root and returns all endpoint files in
// lexical order. An unreadable root is an error; unreadable subdirectories
// are skipped.
func Discover(ctx context.Context, root string, opts *Options) ([]FileInfo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Check cancellation before starting walk
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", root)
	}

	m := NewMatcher(root, opts)

	var files []FileInfo

	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if path == root {
				return walkErr
			}
			return filepath.SkipDir
		}

		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if path != root && m.SkipDir(info.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !m.Match(rel) {
			return nil
		}
		files = append(files, FileInfo{Path: path, RelPath: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func ignorePath(root string, opts *Options) string {
	if opts != nil && opts.IgnoreFile != "" {
		return opts.IgnoreFile
	}
	return filepath.Join(root, IgnoreFileName)
}

// LoadIgnoreFile reads glob patterns, skipping blank lines and # comments.
func LoadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns, scanner.Err()
}
