// Package endpoint defines the descriptor extracted from one endpoint source
// file. Descriptors are built once by the extractor and never mutated; a
// changed source file produces a new descriptor.
package endpoint

import (
	"fmt"
	"strings"
)

// Methods lists the HTTP methods an endpoint may declare, lowercase as they
// appear in source (endpoint.get, endpoint.post, ...).
var Methods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true,
}

// Descriptor is the structured form of one endpoint.
type Descriptor struct {
	Name       string `json:"name"`
	Method     string `json:"method"`
	RelPath    string `json:"rel_path"`
	SourcePath string `json:"-"`
	ImportPath string `json:"import_path"`
	RoutePath  string `json:"route_path"`

	Protected        bool `json:"protected"`
	HasRequestSchema bool `json:"has_request_schema"`
	HasHandler       bool `json:"has_handler"`

	ResponseType       string `json:"response_type"`
	ArgsType           string `json:"args_type"`
	ResponseTypeImport string `json:"response_type_import,omitempty"`
	ArgsTypeImport     string `json:"args_type_import,omitempty"`

	// Opaque source fragments, spliced verbatim into generated code.
	Query       string `json:"query,omitempty"`
	Provides    string `json:"provides,omitempty"`
	Invalidates string `json:"invalidates,omitempty"`
	Optimistic  string `json:"optimistic,omitempty"`

	// OptimisticUpdates is nil when the optimistic block is absent or did
	// not match a recognized shape.
	OptimisticUpdates []OptimisticUpdate `json:"optimistic_updates,omitempty"`

	// MaxRetries is 0 when absent, otherwise a positive retry count.
	MaxRetries int `json:"max_retries,omitempty"`

	// TypeImports maps an import path to the sorted type names needed from it.
	TypeImports map[string][]string `json:"type_imports,omitempty"`
	// TagTypes are the sorted tag types referenced by Provides/Invalidates.
	TagTypes []string `json:"tag_types,omitempty"`
}

// OptimisticUpdate patches one cached query while a mutation is in flight.
type OptimisticUpdate struct {
	Target    string `json:"target"`
	Args      string `json:"args"`
	Update    string `json:"update"`
	Condition string `json:"condition,omitempty"`
}

// UpperMethod returns the HTTP method in uppercase.
func (d *Descriptor) UpperMethod() string {
	return strings.ToUpper(d.Method)
}

// IsQuery reports whether the endpoint reads data (GET) rather than mutating it.
func (d *Descriptor) IsQuery() bool {
	return d.Method == "get"
}

// Warning explains why a source file produced no descriptor.
type Warning struct {
	RelPath string `json:"rel_path"`
	Reason  string `json:"reason"`
}

func (w *Warning) String() string {
	return fmt.Sprintf("%s: %s", w.RelPath, w.Reason)
}
