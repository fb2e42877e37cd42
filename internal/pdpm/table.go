package pdpm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain is a PDPM payment component
type Domain string

const (
	DomainNTA     Domain = "nta"
	DomainSLP     Domain = "slp"
	DomainNursing Domain = "nursing"
	DomainPT      Domain = "pt"
	DomainOT      Domain = "ot"
)

// DefaultVariant names the only table of single-table domains
const DefaultVariant = "default"

// Code is a PDPM case-mix group code (e.g. "NA", "SK", "HDE2")
type Code string

// Kind selects how a table maps totals to a code
type Kind string

const (
	KindBanded Kind = "banded"
	KindGrid   Kind = "grid"
)

var (
	ErrUnknownTable = errors.New("unknown category table")
	ErrInvalidTable = errors.New("invalid category table")
)

// Band maps every total >= Min (and below the next band) to Code
type Band struct {
	Min  float64 `yaml:"min" json:"min"`
	Code Code    `yaml:"code" json:"code"`
}

// CategoryTable is one static score-to-category table.
// Tables are validated once and never mutated afterwards.
type CategoryTable struct {
	Domain      Domain           `yaml:"domain" json:"domain"`
	Variant     string           `yaml:"variant" json:"variant"`
	Kind        Kind             `yaml:"kind" json:"kind"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Bands       []Band           `yaml:"bands,omitempty" json:"bands,omitempty"`
	Grid        [][]Code         `yaml:"grid,omitempty" json:"grid,omitempty"`
	CMI         map[Code]float64 `yaml:"cmi" json:"cmi"`
}

// Key returns "domain/variant"
func (t *CategoryTable) Key() string {
	return string(t.Domain) + "/" + t.Variant
}

// Codes returns every code the table can produce, in table order
func (t *CategoryTable) Codes() []Code {
	var out []Code
	seen := make(map[Code]bool)
	add := func(c Code) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, b := range t.Bands {
		add(b.Code)
	}
	for _, row := range t.Grid {
		for _, c := range row {
			add(c)
		}
	}
	return out
}

// Totals is the input of a table lookup
type Totals struct {
	Primary float64 `json:"primary"` // banded tables
	General int     `json:"general"` // grid rows
	Diet    int     `json:"diet"`    // grid columns
}

// Lookup maps totals to a category code.
//
// Banded tables are scanned from the highest band down and the first band whose
// minimum does not exceed the total wins; the lowest band is the default.
// Grid tables clamp both counts into the grid.
func (t *CategoryTable) Lookup(totals Totals) Code {
	if t.Kind == KindGrid {
		row := clampIndex(totals.General, len(t.Grid))
		cols := t.Grid[row]
		return cols[clampIndex(totals.Diet, len(cols))]
	}
	for _, b := range t.Bands {
		if totals.Primary >= b.Min {
			return b.Code
		}
	}
	return t.Bands[len(t.Bands)-1].Code
}

// CMIFor returns the case-mix index of a code. Validation guarantees every code the
// table can produce has one.
func (t *CategoryTable) CMIFor(c Code) float64 {
	return t.CMI[c]
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// clone returns a deep copy of t
func (t *CategoryTable) clone() *CategoryTable {
	c := *t
	c.Bands = append([]Band(nil), t.Bands...)
	if t.Grid != nil {
		c.Grid = make([][]Code, len(t.Grid))
		for i, row := range t.Grid {
			c.Grid[i] = append([]Code(nil), row...)
		}
	}
	if t.CMI != nil {
		c.CMI = make(map[Code]float64, len(t.CMI))
		for k, v := range t.CMI {
			c.CMI[k] = v
		}
	}
	return &c
}

// normalize sorts bands highest first and fills defaults
func (t *CategoryTable) normalize() {
	t.Domain = Domain(strings.ToLower(strings.TrimSpace(string(t.Domain))))
	t.Variant = strings.ToLower(strings.TrimSpace(t.Variant))
	if t.Variant == "" {
		t.Variant = DefaultVariant
	}
	t.Kind = Kind(strings.ToLower(strings.TrimSpace(string(t.Kind))))
	if t.Kind == "" {
		t.Kind = KindBanded
	}
	sort.SliceStable(t.Bands, func(i, j int) bool { return t.Bands[i].Min > t.Bands[j].Min })
}

// validate checks the table is usable for lookups. It is run on normalized tables.
func (t *CategoryTable) validate() error {
	if t.Domain == "" {
		return fmt.Errorf("%w: missing domain", ErrInvalidTable)
	}
	switch t.Kind {
	case KindBanded:
		if len(t.Bands) == 0 {
			return fmt.Errorf("%w: %s: banded table has no bands", ErrInvalidTable, t.Key())
		}
		if len(t.Grid) > 0 {
			return fmt.Errorf("%w: %s: banded table must not define a grid", ErrInvalidTable, t.Key())
		}
		for i, b := range t.Bands {
			if b.Code == "" {
				return fmt.Errorf("%w: %s: band %d has no code", ErrInvalidTable, t.Key(), i)
			}
			if b.Min < 0 {
				return fmt.Errorf("%w: %s: band %s has negative minimum %v", ErrInvalidTable, t.Key(), b.Code, b.Min)
			}
			if i > 0 && b.Min == t.Bands[i-1].Min {
				return fmt.Errorf("%w: %s: duplicate band minimum %v", ErrInvalidTable, t.Key(), b.Min)
			}
		}
	case KindGrid:
		if len(t.Grid) == 0 {
			return fmt.Errorf("%w: %s: grid table has no rows", ErrInvalidTable, t.Key())
		}
		if len(t.Bands) > 0 {
			return fmt.Errorf("%w: %s: grid table must not define bands", ErrInvalidTable, t.Key())
		}
		width := len(t.Grid[0])
		for i, row := range t.Grid {
			if len(row) == 0 || len(row) != width {
				return fmt.Errorf("%w: %s: grid row %d has %d columns, want %d", ErrInvalidTable, t.Key(), i, len(row), width)
			}
			for j, c := range row {
				if c == "" {
					return fmt.Errorf("%w: %s: grid cell [%d][%d] has no code", ErrInvalidTable, t.Key(), i, j)
				}
			}
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidTable, t.Key(), t.Kind)
	}

	for _, c := range t.Codes() {
		v, ok := t.CMI[c]
		if !ok {
			return fmt.Errorf("%w: %s: code %s has no case-mix index", ErrInvalidTable, t.Key(), c)
		}
		if v < 0 {
			return fmt.Errorf("%w: %s: code %s has negative case-mix index %v", ErrInvalidTable, t.Key(), c, v)
		}
	}
	return nil
}
