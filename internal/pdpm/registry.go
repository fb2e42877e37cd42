package pdpm

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// TablesKey is the top-level key of a table file
const TablesKey = "pdpm_tables"

//go:embed tables.yaml
var builtinTables []byte

type tableFile struct {
	Tables []*CategoryTable `yaml:"pdpm_tables"`
}

// Registry is an immutable, validated set of category tables addressed by domain and
// variant. Tables returned by a Registry must not be modified.
type Registry struct {
	tables map[string]*CategoryTable
	source string
}

// ParseTables decodes and validates a table file. Unknown fields are rejected so that
// a typo cannot silently drop a band.
func ParseTables(data []byte) ([]*CategoryTable, error) {
	var f tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode tables: %v", ErrInvalidTable, err)
	}

	var errs []error
	seen := make(map[string]bool, len(f.Tables))
	for i, t := range f.Tables {
		if t == nil {
			errs = append(errs, fmt.Errorf("%w: entry %d is empty", ErrInvalidTable, i))
			continue
		}
		t.normalize()
		if err := t.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[t.Key()] {
			errs = append(errs, fmt.Errorf("%w: duplicate table %s", ErrInvalidTable, t.Key()))
			continue
		}
		seen[t.Key()] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return f.Tables, nil
}

// NewRegistry validates tables and builds a registry from them. The registry keeps
// its own copies; the caller's tables are left untouched.
func NewRegistry(source string, tables []*CategoryTable) (*Registry, error) {
	r := &Registry{tables: make(map[string]*CategoryTable, len(tables)), source: source}
	if err := r.add(tables); err != nil {
		return nil, err
	}
	return r, nil
}

// add normalizes and validates copies of tables and adds them. A key may appear at
// most once in tables.
func (r *Registry) add(tables []*CategoryTable) error {
	added := make(map[string]bool, len(tables))
	for _, t := range tables {
		if t == nil {
			return fmt.Errorf("%w: nil table", ErrInvalidTable)
		}
		c := t.clone()
		c.normalize()
		if err := c.validate(); err != nil {
			return err
		}
		if added[c.Key()] {
			return fmt.Errorf("%w: duplicate table %s", ErrInvalidTable, c.Key())
		}
		added[c.Key()] = true
		r.tables[c.Key()] = c
	}
	return nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the built-in FY2020 PDPM tables. The built-in tables are
// validated on first use; a defect there is a build error, so it panics.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		tables, err := ParseTables(builtinTables)
		if err != nil {
			panic(fmt.Sprintf("pdpm: built-in tables are invalid: %v", err))
		}
		r, err := NewRegistry("builtin", tables)
		if err != nil {
			panic(fmt.Sprintf("pdpm: built-in tables are invalid: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Merge returns a new registry in which override tables replace or extend r's tables.
// r's tables are shared with the result and are never written.
func (r *Registry) Merge(source string, override []*CategoryTable) (*Registry, error) {
	merged := &Registry{tables: make(map[string]*CategoryTable, len(r.tables)+len(override)), source: source}
	for key, t := range r.tables {
		merged.tables[key] = t
	}
	if err := merged.add(override); err != nil {
		return nil, err
	}
	return merged, nil
}

// Table returns the table of domain/variant. An empty variant selects the default table.
func (r *Registry) Table(domain Domain, variant string) (*CategoryTable, error) {
	variant = strings.ToLower(strings.TrimSpace(variant))
	if variant == "" {
		variant = DefaultVariant
	}
	key := strings.ToLower(string(domain)) + "/" + variant
	t, ok := r.tables[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, key)
	}
	return t, nil
}

// Tables returns every table sorted by key
func (r *Registry) Tables() []*CategoryTable {
	out := make([]*CategoryTable, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Len returns the number of tables
func (r *Registry) Len() int { return len(r.tables) }

// Source names where the registry was loaded from
func (r *Registry) Source() string { return r.source }

// LoadFile reads a table file and merges it over the built-in tables
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables %s: %w", path, err)
	}
	tables, err := ParseTables(data)
	if err != nil {
		return nil, fmt.Errorf("parse tables %s: %w", path, err)
	}
	return DefaultRegistry().Merge(path, tables)
}

// TablesFromMap converts a config-manager map back into tables. A map without the
// tables key yields no tables.
func TablesFromMap(m map[string]interface{}) ([]*CategoryTable, error) {
	if _, ok := m[TablesKey]; !ok {
		return nil, nil
	}
	data, err := yaml.Marshal(map[string]interface{}{TablesKey: m[TablesKey]})
	if err != nil {
		return nil, fmt.Errorf("%w: re-encode tables: %v", ErrInvalidTable, err)
	}
	return ParseTables(data)
}

// ValidateMap validates the tables section of a raw config map for the config manager
func ValidateMap(m map[string]interface{}) error {
	tables, err := TablesFromMap(m)
	if err != nil {
		return err
	}
	_, err = DefaultRegistry().Merge("validate", tables)
	return err
}
