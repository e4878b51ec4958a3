// Package config holds the resolved generator configuration.
//
// Config discovery and path-alias auto-detection are left to callers: Load
// reads one explicit YAML file, applies .env and environment overrides, and
// resolves every directory against the file's location.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "endpointgen.yaml"

// ManifestFile is the manifest name inside the output directory.
const ManifestFile = ".endpointgen-manifest.json"

// Duplicate route/method policies.
const (
	DuplicateLastWins = "last-wins"
	DuplicateError    = "error"
)

// DefaultDebounce is the watch-mode quiescence window.
const DefaultDebounce = 150 * time.Millisecond

// DefaultCrudFilenames are filenames that map to an operation verb and are
// dropped from derived routes.
var DefaultCrudFilenames = []string{"list", "get", "create", "update", "delete", "patch", "index"}

// Config is the resolved generator configuration.
type Config struct {
	// SourceDir is the root of the endpoint source tree.
	SourceDir string `yaml:"sourceDir" validate:"required"`
	// OutDir receives api.ts, store.ts, invalidate.ts and the manifest.
	OutDir string `yaml:"outDir" validate:"required"`
	// BaseURL configures the default fetch transport.
	BaseURL string `yaml:"baseUrl"`
	// BaseQuery is custom transport source text used instead of BaseURL.
	BaseQuery string `yaml:"baseQuery" validate:"excluded_with=BaseURL"`
	// CrudFilenames overrides DefaultCrudFilenames.
	CrudFilenames []string `yaml:"crudFilenames" validate:"dive,required"`
	// RoutesDir receives per-route bridging files. Empty disables them.
	RoutesDir string `yaml:"routesDir"`
	// HandlerModule is the module exporting createRouteHandler.
	HandlerModule string `yaml:"handlerModule" validate:"required_with=RoutesDir"`
	// IgnoreRoutes lists top-level route segments excluded from route files.
	IgnoreRoutes []string `yaml:"ignoreRoutes"`
	// Alias is the import alias prefix (e.g. "@").
	Alias string `yaml:"alias"`
	// AliasRoot is the directory the alias maps to.
	AliasRoot string `yaml:"aliasRoot" validate:"required_with=Alias"`
	// DuplicateRoutes selects the route/method collision policy.
	DuplicateRoutes string `yaml:"duplicateRoutes" validate:"omitempty,oneof=last-wins error"`
	// PruneOrphans deletes generated route files no longer backed by a route group.
	PruneOrphans bool `yaml:"pruneOrphans"`
	// Debounce is the watch-mode quiescence window.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// Default returns a configuration rooted at dir with conventional paths.
func Default(dir string) *Config {
	c := &Config{
		SourceDir:       filepath.Join(dir, "src", "endpoints"),
		OutDir:          filepath.Join(dir, "src", "generated"),
		BaseURL:         "/",
		RoutesDir:       filepath.Join(dir, "src", "app", "api"),
		HandlerModule:   "@/lib/endpoint/server",
		Alias:           "@",
		AliasRoot:       filepath.Join(dir, "src"),
		DuplicateRoutes: DuplicateLastWins,
		Debounce:        DefaultDebounce,
	}
	c.CrudFilenames = append([]string(nil), DefaultCrudFilenames...)
	return c
}

// Load reads a YAML config file. A .env file next to it (or in the working
// directory) is loaded first so ENDPOINTGEN_* overrides can live there.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}
	dir := filepath.Dir(abs)

	_ = godotenv.Load(filepath.Join(dir, ".env"))

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default(dir)
	raw := &Config{}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", abs, err)
	}
	merge(cfg, raw)
	applyEnv(cfg)
	cfg.resolve(dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault returns the conventional configuration rooted at dir with
// .env and environment overrides applied. It is used when no config file
// exists.
func LoadDefault(dir string) (*Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}
	_ = godotenv.Load(filepath.Join(abs, ".env"))

	cfg := Default(abs)
	applyEnv(cfg)
	cfg.resolve(abs)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge copies every non-zero field of src onto dst.
func merge(dst, src *Config) {
	if src.SourceDir != "" {
		dst.SourceDir = src.SourceDir
	}
	if src.OutDir != "" {
		dst.OutDir = src.OutDir
	}
	if src.BaseQuery != "" {
		dst.BaseQuery = src.BaseQuery
		dst.BaseURL = ""
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.CrudFilenames != nil {
		dst.CrudFilenames = src.CrudFilenames
	}
	if src.RoutesDir != "" {
		dst.RoutesDir = src.RoutesDir
	}
	if src.HandlerModule != "" {
		dst.HandlerModule = src.HandlerModule
	}
	if src.IgnoreRoutes != nil {
		dst.IgnoreRoutes = src.IgnoreRoutes
	}
	if src.Alias != "" {
		dst.Alias = src.Alias
	}
	if src.AliasRoot != "" {
		dst.AliasRoot = src.AliasRoot
	}
	if src.DuplicateRoutes != "" {
		dst.DuplicateRoutes = src.DuplicateRoutes
	}
	if src.PruneOrphans {
		dst.PruneOrphans = true
	}
	if src.Debounce != 0 {
		dst.Debounce = src.Debounce
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ENDPOINTGEN_SOURCE_DIR"); v != "" {
		cfg.SourceDir = v
	}
	if v := os.Getenv("ENDPOINTGEN_OUT_DIR"); v != "" {
		cfg.OutDir = v
	}
	if v := os.Getenv("ENDPOINTGEN_BASE_URL"); v != "" {
		cfg.BaseURL = v
		cfg.BaseQuery = ""
	}
	if v, ok := os.LookupEnv("ENDPOINTGEN_ROUTES_DIR"); ok {
		cfg.RoutesDir = v
	}
}

// resolve makes every directory absolute relative to base.
func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.SourceDir = abs(c.SourceDir)
	c.OutDir = abs(c.OutDir)
	c.RoutesDir = abs(c.RoutesDir)
	c.AliasRoot = abs(c.AliasRoot)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and returns a readable error listing
// every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(valErrs))
	for _, ve := range valErrs {
		msgs = append(msgs, ve.Field()+": "+formatValidationError(ve))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "required_with":
		return fmt.Sprintf("required when %s is set", ve.Param())
	case "excluded_with":
		return fmt.Sprintf("must be empty when %s is set", ve.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", ve.Param())
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

// CrudSet returns the CRUD filenames as a set.
func (c *Config) CrudSet() map[string]bool {
	names := c.CrudFilenames
	if names == nil {
		names = DefaultCrudFilenames
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// IgnoreSet returns the ignored top-level route segments as a set.
func (c *Config) IgnoreSet() map[string]bool {
	set := make(map[string]bool, len(c.IgnoreRoutes))
	for _, s := range c.IgnoreRoutes {
		set[strings.Trim(s, "/")] = true
	}
	return set
}

// ManifestPath returns the manifest location inside OutDir.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.OutDir, ManifestFile)
}

// DebounceOrDefault returns Debounce, or DefaultDebounce when unset.
func (c *Config) DebounceOrDefault() time.Duration {
	if c.Debounce <= 0 {
		return DefaultDebounce
	}
	return c.Debounce
}

// DuplicatePolicy returns the collision policy, defaulting to last-wins.
func (c *Config) DuplicatePolicy() string {
	if c.DuplicateRoutes == "" {
		return DuplicateLastWins
	}
	return c.DuplicateRoutes
}
