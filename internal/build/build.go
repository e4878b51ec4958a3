// Package build runs one-shot incremental generation: hash the sources,
// compare with the persisted manifest, and rebuild everything on any
// difference.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/DeusData/endpointgen/internal/codegen"
	"github.com/DeusData/endpointgen/internal/config"
	"github.com/DeusData/endpointgen/internal/discover"
	"github.com/DeusData/endpointgen/internal/endpoint"
	"github.com/DeusData/endpointgen/internal/extract"
	"github.com/DeusData/endpointgen/internal/manifest"
	"github.com/DeusData/endpointgen/internal/routes"
	"github.com/DeusData/endpointgen/internal/sink"
)

// Status is the terminal state of one run.
type Status int

const (
	StatusNoFiles Status = iota
	StatusUnchanged
	StatusRebuilt
)

func (s Status) String() string {
	switch s {
	case StatusNoFiles:
		return "no_files"
	case StatusUnchanged:
		return "unchanged"
	case StatusRebuilt:
		return "rebuilt"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result reports what a run did.
type Result struct {
	Status     Status             `json:"status"`
	Endpoints  int                `json:"endpoints"`
	RouteFiles int                `json:"route_files"`
	Written    []string           `json:"written,omitempty"`
	Warnings   []endpoint.Warning `json:"warnings,omitempty"`
	Orphans    []string           `json:"orphans,omitempty"`
}

// Controller owns the generation state of one configured project. Runs are
// serialized: Run and Regenerate never execute concurrently.
type Controller struct {
	cfg       *config.Config
	extractor *extract.Extractor
	sink      *sink.Sink
	policy    routes.DuplicatePolicy

	// Force skips the manifest comparison in Run.
	Force bool

	mu sync.Mutex
}

// New creates a Controller for cfg.
func New(cfg *config.Config) *Controller {
	return &Controller{
		cfg:       cfg,
		extractor: extract.New(cfg),
		sink:      sink.New(cfg.PruneOrphans),
		policy:    routes.ParsePolicy(cfg.DuplicatePolicy()),
	}
}

// Config returns the controller's configuration.
func (c *Controller) Config() *config.Config { return c.cfg }

// Extractor returns the extractor bound to the controller's configuration.
func (c *Controller) Extractor() *extract.Extractor { return c.extractor }

// Run performs one generation pass, skipping extraction when the sources
// match the persisted manifest and Force is unset.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	return c.run(ctx, c.Force)
}

// Rebuild performs a generation pass that ignores the persisted manifest.
func (c *Controller) Rebuild(ctx context.Context) (*Result, error) {
	return c.run(ctx, true)
}

func (c *Controller) run(ctx context.Context, force bool) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	slog.Info("build.start", "source", c.cfg.SourceDir, "force", force)

	files, current, err := c.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		slog.Info("build.nofiles", "source", c.cfg.SourceDir)
		return &Result{Status: StatusNoFiles}, nil
	}

	if !force {
		previous := manifest.Load(c.cfg.ManifestPath())
		if previous.Equal(current) {
			slog.Info("build.unchanged", "files", len(files))
			return &Result{Status: StatusUnchanged}, nil
		}
		slog.Debug("build.changed", "files", previous.Changed(current))
	}

	descs, warnings, err := c.ExtractAll(files)
	if err != nil {
		return nil, err
	}
	res, err := c.emit(descs)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	if err := current.Save(c.cfg.ManifestPath()); err != nil {
		return nil, err
	}
	slog.Info("build.done", "endpoints", res.Endpoints, "routes", res.RouteFiles,
		"written", len(res.Written), "skipped", len(warnings), "elapsed", time.Since(start))
	return res, nil
}

// Scan discovers the source files, sorted by rel path, and hashes them.
func (c *Controller) Scan(ctx context.Context) ([]discover.FileInfo, manifest.Manifest, error) {
	files, err := discover.Discover(ctx, c.cfg.SourceDir, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })

	m := make(manifest.Manifest, len(files))
	for _, f := range files {
		h, err := manifest.FileHash(f.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("hash %s: %w", f.RelPath, err)
		}
		m[f.RelPath] = h
	}
	return files, m, nil
}

// ExtractAll extracts every file. Malformed files become warnings and are
// logged; I/O and parser failures abort.
func (c *Controller) ExtractAll(files []discover.FileInfo) ([]*endpoint.Descriptor, []endpoint.Warning, error) {
	var descs []*endpoint.Descriptor
	var warnings []endpoint.Warning
	for _, f := range files {
		d, w, err := c.extractor.ExtractFile(f)
		if err != nil {
			return nil, nil, err
		}
		if w != nil {
			slog.Warn("extract.skip", "file", w.RelPath, "reason", w.Reason)
			warnings = append(warnings, *w)
			continue
		}
		descs = append(descs, d)
	}
	return descs, warnings, nil
}

// ExtractFunc extracts one scanned file whose content hashes to hash.
type ExtractFunc func(f discover.FileInfo, source []byte, hash string) (*endpoint.Descriptor, *endpoint.Warning, error)

// RebuildWith scans, extracts every file through fn and emits, all under the
// run lock. It returns every extracted descriptor, including those dropped
// from the artifacts as duplicate names, and the manifest it persisted.
func (c *Controller) RebuildWith(ctx context.Context, fn ExtractFunc) (*Result, []*endpoint.Descriptor, manifest.Manifest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	files, m, err := c.Scan(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	var descs []*endpoint.Descriptor
	var warnings []endpoint.Warning
	for _, f := range files {
		source, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("read %s: %w", f.RelPath, err)
		}
		d, w, err := fn(f, source, m[f.RelPath])
		if err != nil {
			return nil, nil, nil, err
		}
		if w != nil {
			slog.Warn("extract.skip", "file", w.RelPath, "reason", w.Reason)
			warnings = append(warnings, *w)
			continue
		}
		descs = append(descs, d)
	}

	res, err := c.emit(descs)
	if err != nil {
		return nil, nil, nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	if err := m.Save(c.cfg.ManifestPath()); err != nil {
		return nil, nil, nil, err
	}
	return res, descs, m, nil
}

// Regenerate writes the artifacts for an already extracted descriptor set
// and persists m. It is the watch-mode entry point.
func (c *Controller) Regenerate(descs []*endpoint.Descriptor, m manifest.Manifest) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.emit(descs)
	if err != nil {
		return nil, err
	}
	if err := m.Save(c.cfg.ManifestPath()); err != nil {
		return nil, err
	}
	return res, nil
}

// DuplicateNameError reports two descriptors declaring the same endpoint name.
type DuplicateNameError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("endpoint name %q declared by both %s and %s", e.Name, e.First, e.Second)
}

// Unique drops descriptors whose name was already declared by a file earlier
// in rel path order, reporting each as a warning. Under the error duplicate
// policy the first collision is a *DuplicateNameError instead.
func (c *Controller) Unique(descs []*endpoint.Descriptor) ([]*endpoint.Descriptor, []endpoint.Warning, error) {
	sorted := append([]*endpoint.Descriptor(nil), descs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	owner := make(map[string]string, len(sorted))
	out := sorted[:0]
	var warnings []endpoint.Warning
	for _, d := range sorted {
		first, seen := owner[d.Name]
		if !seen {
			owner[d.Name] = d.RelPath
			out = append(out, d)
			continue
		}
		if c.policy == routes.DuplicateError {
			return nil, nil, &DuplicateNameError{Name: d.Name, First: first, Second: d.RelPath}
		}
		w := endpoint.Warning{
			RelPath: d.RelPath,
			Reason:  fmt.Sprintf("duplicate endpoint name %q, already declared in %s", d.Name, first),
		}
		slog.Warn("extract.skip", "file", w.RelPath, "reason", w.Reason)
		warnings = append(warnings, w)
	}
	return out, warnings, nil
}

// Groups buckets descriptors by route under the configured duplicate policy.
func (c *Controller) Groups(descs []*endpoint.Descriptor) (map[string]*routes.Group, error) {
	sorted := append([]*endpoint.Descriptor(nil), descs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })
	return routes.Build(sorted, c.policy)
}

// emit groups, generates and writes. The manifest is left to the caller so
// it is only persisted after every artifact is on disk.
func (c *Controller) emit(descs []*endpoint.Descriptor) (*Result, error) {
	descs, warnings, err := c.Unique(descs)
	if err != nil {
		return nil, err
	}
	groups, err := c.Groups(descs)
	if err != nil {
		return nil, err
	}
	artifacts := codegen.Generate(descs, groups, c.cfg)

	res := &Result{
		Status:     StatusRebuilt,
		Endpoints:  len(descs),
		RouteFiles: codegen.RouteArtifacts(artifacts),
		Warnings:   warnings,
	}
	keep := make(map[string]bool)
	for _, a := range artifacts {
		if a.Route != "" {
			keep[a.Path] = true
		}
		wrote, err := c.sink.WriteIfChanged(a.Path, a.Content)
		if err != nil {
			return nil, fmt.Errorf("write artifact: %w", err)
		}
		if wrote {
			slog.Debug("build.write", "path", a.Path)
			res.Written = append(res.Written, a.Path)
		}
	}

	orphans, err := c.sink.Prune(c.cfg.RoutesDir, keep)
	if err != nil {
		return nil, err
	}
	res.Orphans = orphans
	return res, nil
}
