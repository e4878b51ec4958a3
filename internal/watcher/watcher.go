// Package watcher keeps generated artifacts in sync with the endpoint
// sources while they are being edited.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/endpointgen/internal/build"
	"github.com/DeusData/endpointgen/internal/config"
	"github.com/DeusData/endpointgen/internal/discover"
	"github.com/DeusData/endpointgen/internal/endpoint"
	"github.com/DeusData/endpointgen/internal/manifest"
	"github.com/DeusData/endpointgen/internal/parser"
	"github.com/DeusData/endpointgen/internal/routes"
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the quiescence window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithSource injects the notification source instead of opening fsnotify.
func WithSource(src Source) Option {
	return func(w *Watcher) { w.src = src }
}

// WithController shares an existing build controller, and with it the
// run lock, with other callers.
func WithController(c *build.Controller) Option {
	return func(w *Watcher) { w.ctrl = c }
}

// OnRegenerate registers a hook called after every regeneration.
func OnRegenerate(fn func(*build.Result)) Option {
	return func(w *Watcher) { w.onRegenerate = fn }
}

// Watcher regenerates artifacts as endpoint sources change. Notifications
// restart a single debounce timer; when it fires only the most recent path
// is examined. Regeneration runs inline on the event loop, so events that
// arrive meanwhile queue up and open a fresh debounce window.
type Watcher struct {
	cfg          *config.Config
	ctrl         *build.Controller
	debounce     time.Duration
	src          Source
	onRegenerate func(*build.Result)

	changes chan change
	match   *discover.Matcher
	trees   *parser.TreeCache

	// mu guards descs and m, which are written only by the event loop.
	mu    sync.Mutex
	descs map[string]*endpoint.Descriptor
	m     manifest.Manifest

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a Watcher for cfg. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) *Watcher {
	w := &Watcher{
		cfg:      cfg,
		debounce: cfg.DebounceOrDefault(),
		changes:  make(chan change, 64),
		descs:    make(map[string]*endpoint.Descriptor),
		m:        manifest.Manifest{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.ctrl == nil {
		w.ctrl = build.New(cfg)
	}
	return w
}

// Start performs a full build, then begins watching. It returns once the
// watch goroutines are running; use Stop or cancel ctx to end them.
func (w *Watcher) Start(ctx context.Context) error {
	if w.group != nil {
		return errors.New("watcher already started")
	}
	trees, err := parser.NewTreeCache(parser.DefaultCacheSize)
	if err != nil {
		return err
	}
	w.trees = trees
	w.match = discover.NewMatcher(w.cfg.SourceDir, nil)

	res, err := w.initialBuild(ctx)
	if err != nil {
		return err
	}
	slog.Info("watch.initial", "endpoints", res.Endpoints, "routes", res.RouteFiles,
		"written", len(res.Written))
	w.notify(res)

	if w.src == nil {
		src, err := NewFSSource()
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		w.src = src
	}
	if err := w.addRecursive(w.cfg.SourceDir); err != nil {
		_ = w.src.Close()
		return fmt.Errorf("watch: %w", err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.group, ctx = errgroup.WithContext(ctx)
	w.group.Go(func() error { return w.pump(ctx) })
	w.group.Go(func() error { return w.loop(ctx) })
	slog.Info("watch.start", "source", w.cfg.SourceDir, "debounce", w.debounce)
	return nil
}

// Stop ends the watch goroutines and releases the notification source.
func (w *Watcher) Stop() error {
	if w.group == nil {
		return nil
	}
	w.cancel()
	closeErr := w.src.Close()
	err := w.group.Wait()
	w.trees.Purge()
	if err != nil {
		return err
	}
	return closeErr
}

// Wait blocks until the watch goroutines exit.
func (w *Watcher) Wait() error {
	if w.group == nil {
		return nil
	}
	return w.group.Wait()
}

// Descriptors returns the live descriptor set sorted by rel path.
func (w *Watcher) Descriptors() []*endpoint.Descriptor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sortedDescriptors()
}

// Manifest returns a copy of the in-memory manifest.
func (w *Watcher) Manifest() manifest.Manifest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m.Clone()
}

func (w *Watcher) sortedDescriptors() []*endpoint.Descriptor {
	out := make([]*endpoint.Descriptor, 0, len(w.descs))
	for _, d := range w.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out
}

// initialBuild extracts every file regardless of the persisted manifest.
// The whole pass holds the controller's run lock.
func (w *Watcher) initialBuild(ctx context.Context) (*build.Result, error) {
	ex := w.ctrl.Extractor()
	res, descs, m, err := w.ctrl.RebuildWith(ctx, func(f discover.FileInfo, source []byte, hash string) (*endpoint.Descriptor, *endpoint.Warning, error) {
		return ex.ExtractCached(w.trees, f, source, hash)
	})
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range descs {
		w.descs[d.RelPath] = d
	}
	w.m = m.Clone()
	return res, nil
}

// addRecursive subscribes dir and every non-ignored directory below it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir {
			if rel, ok := w.rel(path); ok && w.match.SkipDir(d.Name(), rel) {
				return filepath.SkipDir
			}
		}
		if err := w.src.Add(path); err != nil {
			return err
		}
		slog.Debug("watch.add", "dir", path)
		return nil
	})
}

// change is one pending notification. A dir change asks for every source
// file below rel to be re-examined.
type change struct {
	rel string
	dir bool
}

// pump turns raw notifications into source-relative changes.
func (w *Watcher) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.src.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watch.error", "err", err)
		case ev, ok := <-w.src.Events():
			if !ok {
				return nil
			}
			c, ok := w.classify(ev)
			if !ok {
				continue
			}
			select {
			case w.changes <- c:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// classify maps a notification to a change. New directories are subscribed
// before their contents are queued, so files written in between are seen by
// the rescan.
func (w *Watcher) classify(ev fsnotify.Event) (change, bool) {
	if ev.Op == fsnotify.Chmod {
		return change{}, false
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return change{}, false
	}
	if w.match.Match(rel) {
		return change{rel: rel}, true
	}
	if w.match.SkipPath(rel) {
		return change{}, false
	}
	if ev.Has(fsnotify.Create) {
		info, err := os.Stat(ev.Name)
		if err != nil || !info.IsDir() {
			return change{}, false
		}
		if err := w.addRecursive(ev.Name); err != nil {
			slog.Warn("watch.add", "dir", ev.Name, "err", err)
		}
		return change{rel: rel, dir: true}, true
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		// Possibly a directory; the rescan drops whatever was tracked below it.
		return change{rel: rel, dir: true}, true
	}
	return change{}, false
}

// rel returns path relative to the source root with forward slashes.
func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.cfg.SourceDir, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// loop owns the debounce timer and runs every regeneration. Within one
// window only the latest file change is kept; directory rescans accumulate.
func (w *Watcher) loop(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	var latest string
	dirs := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-w.changes:
			if c.dir {
				dirs[c.rel] = true
			} else {
				latest = c.rel
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			batch := make([]string, 0, len(dirs))
			for d := range dirs {
				batch = append(batch, d)
			}
			sort.Strings(batch)
			clear(dirs)
			if err := w.process(latest, batch); err != nil {
				return err
			}
			latest = ""
		}
	}
}

// process handles the changes that closed a debounce window. Errors
// returned here end the watch; per-file problems are only logged.
func (w *Watcher) process(latest string, dirs []string) error {
	w.mu.Lock()
	changed := false
	for _, dir := range dirs {
		if w.rescan(dir) {
			changed = true
		}
	}
	if latest != "" && w.update(latest) {
		changed = true
	}
	if !changed {
		w.mu.Unlock()
		return nil
	}
	descs := w.sortedDescriptors()
	m := w.m.Clone()
	w.mu.Unlock()

	res, err := w.ctrl.Regenerate(descs, m)
	if err != nil {
		var dupRoute *routes.DuplicateRouteMethodError
		var dupName *build.DuplicateNameError
		if errors.As(err, &dupRoute) || errors.As(err, &dupName) {
			slog.Error("watch.regenerate", "file", latest, "dirs", dirs, "err", err)
			return nil
		}
		return err
	}
	slog.Info("watch.regenerate", "file", latest, "dirs", dirs, "endpoints", res.Endpoints,
		"routes", res.RouteFiles, "written", len(res.Written))
	w.notify(res)
	return nil
}

// update re-examines one source file and reports whether the descriptor
// cache or manifest changed. w.mu must be held.
func (w *Watcher) update(rel string) bool {
	abs := filepath.Join(w.cfg.SourceDir, filepath.FromSlash(rel))
	source, err := os.ReadFile(abs)
	switch {
	case err == nil:
		hash := manifest.Hash(source)
		if w.m[rel] == hash {
			return false
		}
		w.m[rel] = hash
		w.trees.Forget(rel)
		d, warn, exErr := w.ctrl.Extractor().ExtractCached(w.trees, discover.FileInfo{Path: abs, RelPath: rel}, source, hash)
		switch {
		case exErr != nil:
			slog.Warn("watch.extract", "file", rel, "err", exErr)
		case warn != nil:
			slog.Warn("extract.skip", "file", warn.RelPath, "reason", warn.Reason)
		default:
			w.descs[rel] = d
		}
		return true
	case errors.Is(err, fs.ErrNotExist):
		_, tracked := w.m[rel]
		if !tracked && w.descs[rel] == nil {
			return false
		}
		delete(w.m, rel)
		delete(w.descs, rel)
		w.trees.Forget(rel)
		slog.Info("watch.removed", "file", rel)
		return true
	default:
		slog.Warn("watch.read", "file", rel, "err", err)
		return false
	}
}

// rescan updates every source file below dir, then drops tracked files
// under dir that no longer exist. w.mu must be held.
func (w *Watcher) rescan(dir string) bool {
	root := filepath.Join(w.cfg.SourceDir, filepath.FromSlash(dir))
	seen := make(map[string]bool)
	changed := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return filepath.SkipDir
		}
		rel, ok := w.rel(path)
		if !ok {
			return nil
		}
		if d.IsDir() {
			if path != root && w.match.SkipDir(d.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.match.Match(rel) {
			return nil
		}
		seen[rel] = true
		if w.update(rel) {
			changed = true
		}
		return nil
	})

	prefix := dir + "/"
	for rel := range w.m {
		if strings.HasPrefix(rel, prefix) && !seen[rel] && w.update(rel) {
			changed = true
		}
	}
	return changed
}

func (w *Watcher) notify(res *build.Result) {
	if w.onRegenerate != nil {
		w.onRegenerate(res)
	}
}
