package model

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Trait is one selectable option within a layer.
type Trait struct {
	Name   string  `json:"name"`
	File   string  `json:"file"`
	Rarity float64 `json:"rarity"`
}

// Layer is a named group of mutually exclusive traits. Its position in the
// catalog is its stacking order.
type Layer struct {
	Name      string  `json:"name"`
	Directory string  `json:"directory"`
	Traits    []Trait `json:"traits"`
}

// Catalog is the ordered list of layers for one job. It is built once and not mutated.
type Catalog []Layer

// Space returns the number of distinct combinations the catalog can produce,
// saturating at math.MaxInt.
func (c Catalog) Space() int {
	if len(c) == 0 {
		return 0
	}
	n := 1
	for _, l := range c {
		t := len(l.Traits)
		if t == 0 {
			return 0
		}
		if n > math.MaxInt/t {
			return math.MaxInt
		}
		n *= t
	}
	return n
}

// Selection is the trait drawn for one layer.
type Selection struct {
	Layer     string `json:"layer"`
	Directory string `json:"directory"`
	Trait     Trait  `json:"trait"`
}

// Combination is one trait per layer, in layer order.
type Combination []Selection

// Fingerprint returns the canonical key of the combination: sorted
// "layer":"trait" pairs joined by ";". Names are Go-quoted, so separators
// inside a name cannot make two combinations collide. It does not depend on
// selection order.
func (c Combination) Fingerprint() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = strconv.Quote(s.Layer) + ":" + strconv.Quote(s.Trait.Name)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
