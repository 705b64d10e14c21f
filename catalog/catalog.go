// Package catalog holds the static variable and source registries for the
// CrocoLake databases. The catalogs are immutable; the process-wide default
// is built once and shared by reference.
package catalog

import (
	"sort"
	"sync"
)

// DatabaseType identifies a database variant.
type DatabaseType string

const (
	// PHY is the physical observation database.
	PHY DatabaseType = "PHY"
	// BGC is the biogeochemical observation database.
	BGC DatabaseType = "BGC"
)

// Valid reports whether t is a recognized database type.
func (t DatabaseType) Valid() bool {
	return t == PHY || t == BGC
}

// DirName returns the on-disk directory name for the database variant,
// e.g. "CrocoLakePHY".
func (t DatabaseType) DirName() string {
	return "CrocoLake" + string(t)
}

// Variable describes one canonical column of the merged database.
type Variable struct {
	// Name is the canonical column name, e.g. "TEMP".
	Name string
	// LongName is the human-readable description.
	LongName string
	// Unit is the measurement unit recorded in the schema metadata.
	Unit string
	// Mandatory marks identifier columns that are always included in a
	// projection regardless of the caller's variable selection.
	Mandatory bool
	// Types lists the database variants the variable belongs to.
	Types []DatabaseType
}

// Source describes one originating observation dataset.
type Source struct {
	// Name is the registry name, e.g. "ARGO".
	Name string
	// Codename is the token embedded in the on-disk sub-directory name.
	Codename string
	// Types lists the database variants the source ships in. Spray glider
	// data, for example, exists in PHY but not in BGC.
	Types []DatabaseType
}

func (s Source) hasType(t DatabaseType) bool {
	for _, st := range s.Types {
		if st == t {
			return true
		}
	}
	return false
}

func (v Variable) hasType(t DatabaseType) bool {
	for _, vt := range v.Types {
		if vt == t {
			return true
		}
	}
	return false
}

// Catalog is an immutable variable and source registry.
type Catalog struct {
	variables map[string]Variable
	varOrder  []string
	sources   map[string]Source
	srcOrder  []string
}

// New builds a catalog from explicit variable and source lists. Tests use
// this to inject a minimal catalog; production code uses Default.
func New(variables []Variable, sources []Source) *Catalog {
	c := &Catalog{
		variables: make(map[string]Variable, len(variables)),
		sources:   make(map[string]Source, len(sources)),
	}
	for _, v := range variables {
		if _, ok := c.variables[v.Name]; !ok {
			c.varOrder = append(c.varOrder, v.Name)
		}
		c.variables[v.Name] = v
	}
	for _, s := range sources {
		if _, ok := c.sources[s.Name]; !ok {
			c.srcOrder = append(c.srcOrder, s.Name)
		}
		c.sources[s.Name] = s
	}
	return c
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide CrocoLake catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = New(defaultVariables, defaultSources)
	})
	return defaultCatalog
}

// Variable looks up a variable by canonical name.
func (c *Catalog) Variable(name string) (Variable, bool) {
	v, ok := c.variables[name]
	return v, ok
}

// HasVariable reports whether name is a known variable for the given type.
func (c *Catalog) HasVariable(name string, t DatabaseType) bool {
	v, ok := c.variables[name]
	return ok && v.hasType(t)
}

// VariablesFor returns the canonical names of all variables belonging to
// the given database type, in catalog order.
func (c *Catalog) VariablesFor(t DatabaseType) []string {
	var names []string
	for _, name := range c.varOrder {
		if c.variables[name].hasType(t) {
			names = append(names, name)
		}
	}
	return names
}

// MandatoryFor returns the names of the always-included identifier columns
// for the given database type, in catalog order.
func (c *Catalog) MandatoryFor(t DatabaseType) []string {
	var names []string
	for _, name := range c.varOrder {
		v := c.variables[name]
		if v.Mandatory && v.hasType(t) {
			names = append(names, name)
		}
	}
	return names
}

// Source looks up a source by registry name.
func (c *Catalog) Source(name string) (Source, bool) {
	s, ok := c.sources[name]
	return s, ok
}

// SourcesFor returns the names of all sources shipping in the given
// database type, in catalog order.
func (c *Catalog) SourcesFor(t DatabaseType) []string {
	var names []string
	for _, name := range c.srcOrder {
		if c.sources[name].hasType(t) {
			names = append(names, name)
		}
	}
	return names
}

// SourceNames returns all registered source names, sorted.
func (c *Catalog) SourceNames() []string {
	names := make([]string, len(c.srcOrder))
	copy(names, c.srcOrder)
	sort.Strings(names)
	return names
}

// Unit returns the unit recorded for a variable, or "unknown" if the
// variable is not in the catalog.
func (c *Catalog) Unit(name string) string {
	if v, ok := c.variables[name]; ok && v.Unit != "" {
		return v.Unit
	}
	return "unknown"
}
