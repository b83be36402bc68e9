// Package sampler draws weighted trait combinations that never repeat within a job.
package sampler

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// DefaultMaxConsecutiveRejections bounds how many duplicate draws in a row
// are tolerated before the combination space is considered exhausted.
const DefaultMaxConsecutiveRejections = 10000

// ErrExhaustedCombinationSpace is returned by Next when no unseen combination
// is left or none could be drawn within the rejection limit.
var ErrExhaustedCombinationSpace = errors.New("combination space exhausted")

// Options configures a Sampler.
type Options struct {
	// MaxConsecutiveRejections is the number of back-to-back duplicate draws
	// after which Next gives up. Zero means DefaultMaxConsecutiveRejections.
	MaxConsecutiveRejections int
	// Rand is the random source. Nil means a randomly seeded PCG.
	Rand *rand.Rand
}

// Sampler produces unique combinations for a single job. It owns the job's
// seen-set and is not safe for concurrent use.
type Sampler struct {
	catalog       model.Catalog
	cumulative    [][]float64
	seen          map[string]struct{}
	rng           *rand.Rand
	maxRejections int
	rejections    int
	// pool holds the unseen combinations once random draws have stalled.
	pool []candidate
}

// New prepares a sampler over c. Every layer must have at least one trait and
// every trait a positive rarity.
func New(c model.Catalog, opts Options) (*Sampler, error) {
	if len(c) == 0 {
		return nil, errors.New("sampler: empty catalog")
	}
	cumulative := make([][]float64, len(c))
	for i, layer := range c {
		if len(layer.Traits) == 0 {
			return nil, fmt.Errorf("sampler: layer %q has no traits", layer.Name)
		}
		weights := make([]float64, len(layer.Traits))
		for j, t := range layer.Traits {
			if t.Rarity <= 0 {
				return nil, fmt.Errorf("sampler: trait %s/%s has non-positive rarity %v", layer.Name, t.Name, t.Rarity)
			}
			weights[j] = t.Rarity
		}
		cumulative[i] = floats.CumSum(make([]float64, len(weights)), weights)
	}

	maxRejections := opts.MaxConsecutiveRejections
	if maxRejections <= 0 {
		maxRejections = DefaultMaxConsecutiveRejections
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Sampler{
		catalog:       c,
		cumulative:    cumulative,
		seen:          make(map[string]struct{}),
		rng:           rng,
		maxRejections: maxRejections,
	}, nil
}

// Draw picks one trait per layer, weighted by rarity, without consulting the
// seen-set.
func (s *Sampler) Draw() model.Combination {
	combo := make(model.Combination, len(s.catalog))
	for i, layer := range s.catalog {
		cum := s.cumulative[i]
		r := s.rng.Float64() * cum[len(cum)-1]
		combo[i] = model.Selection{
			Layer:     layer.Name,
			Directory: layer.Directory,
			Trait:     layer.Traits[pick(cum, r)],
		}
	}
	return combo
}

// pick returns the first index whose cumulative weight exceeds r.
func pick(cumulative []float64, r float64) int {
	i := sort.Search(len(cumulative), func(i int) bool { return cumulative[i] > r })
	if i == len(cumulative) {
		return i - 1
	}
	return i
}

// enumerationLimit is the largest combination space that Next falls back to
// enumerating once random draws stop finding unseen combinations.
const enumerationLimit = 1 << 16

// Next draws until it finds a combination not emitted before, registers it
// and returns it. After MaxConsecutiveRejections duplicates in a row it
// switches to a weighted pick among the remaining unseen combinations when
// the space is small enough to enumerate, and returns
// ErrExhaustedCombinationSpace otherwise. It also returns
// ErrExhaustedCombinationSpace once every combination has been emitted.
func (s *Sampler) Next() (model.Combination, error) {
	space := s.catalog.Space()
	if len(s.seen) >= space {
		return nil, fmt.Errorf("%w: all %d combinations used", ErrExhaustedCombinationSpace, space)
	}
	if s.pool != nil {
		return s.fromPool(space)
	}
	for streak := 0; streak < s.maxRejections; streak++ {
		combo := s.Draw()
		fp := combo.Fingerprint()
		if _, dup := s.seen[fp]; dup {
			s.rejections++
			continue
		}
		s.seen[fp] = struct{}{}
		return combo, nil
	}
	if space <= enumerationLimit {
		s.pool = s.unseen()
		return s.fromPool(space)
	}
	return nil, fmt.Errorf("%w: %d consecutive duplicate draws after %d unique combinations (space %d)",
		ErrExhaustedCombinationSpace, s.maxRejections, len(s.seen), space)
}

// Rejections returns the number of duplicate draws discarded so far.
func (s *Sampler) Rejections() int { return s.rejections }

// Seen returns the number of combinations emitted so far.
func (s *Sampler) Seen() int { return len(s.seen) }

// Release forgets a previously emitted combination so it can be drawn again.
func (s *Sampler) Release(combo model.Combination) {
	delete(s.seen, combo.Fingerprint())
	s.pool = nil
}

type candidate struct {
	combo  model.Combination
	fp     string
	weight float64
}

// unseen enumerates every combination not emitted yet. Its weight is the
// product of its trait rarities, proportional to its chance under Draw.
func (s *Sampler) unseen() []candidate {
	var pool []candidate
	idx := make([]int, len(s.catalog))
	for {
		combo := make(model.Combination, len(s.catalog))
		weight := 1.0
		for i, layer := range s.catalog {
			t := layer.Traits[idx[i]]
			combo[i] = model.Selection{Layer: layer.Name, Directory: layer.Directory, Trait: t}
			weight *= t.Rarity
		}
		fp := combo.Fingerprint()
		if _, dup := s.seen[fp]; !dup {
			pool = append(pool, candidate{combo: combo, fp: fp, weight: weight})
		}

		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(s.catalog[i].Traits) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return pool
		}
	}
}

// fromPool picks one pooled combination by weight and registers it.
func (s *Sampler) fromPool(space int) (model.Combination, error) {
	pool := s.pool[:0]
	for _, c := range s.pool {
		if _, dup := s.seen[c.fp]; !dup {
			pool = append(pool, c)
		}
	}
	s.pool = pool
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: no unseen combination left after %d unique combinations (space %d)",
			ErrExhaustedCombinationSpace, len(s.seen), space)
	}

	weights := make([]float64, len(pool))
	for i, c := range pool {
		weights[i] = c.weight
	}
	cum := floats.CumSum(make([]float64, len(weights)), weights)
	i := pick(cum, s.rng.Float64()*cum[len(cum)-1])

	c := pool[i]
	pool[i] = pool[len(pool)-1]
	s.pool = pool[:len(pool)-1]
	s.seen[c.fp] = struct{}{}
	return c.combo, nil
}
