package matching

import (
	"fmt"
	"sort"

	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// Rule declares that two categories may share a table. Lower Priority
// values are preferred when several fresh partners are available.
type Rule struct {
	A        models.Category `yaml:"a" json:"a"`
	B        models.Category `yaml:"b" json:"b"`
	Priority int             `yaml:"priority" json:"priority"`
}

// Compatibility is a symmetric relation over categories. A category is only
// compatible with itself when a rule names it on both sides.
type Compatibility struct {
	allowed map[models.Category]map[models.Category]int
}

// NewCompatibility builds the relation from rules, storing each in both
// directions.
func NewCompatibility(rules ...Rule) (*Compatibility, error) {
	c := &Compatibility{allowed: make(map[models.Category]map[models.Category]int)}
	for _, r := range rules {
		if !r.A.Valid() || !r.B.Valid() {
			return nil, fmt.Errorf("unknown category in rule %s-%s", r.A, r.B)
		}
		if existing, ok := c.allowed[r.A][r.B]; ok && existing != r.Priority {
			return nil, fmt.Errorf("conflicting priority for %s-%s: %d and %d", r.A, r.B, existing, r.Priority)
		}
		c.set(r.A, r.B, r.Priority)
		c.set(r.B, r.A, r.Priority)
	}
	return c, nil
}

// DefaultCompatibility returns the standard reciprocal table: each category
// may sit with both categories of the opposite gender, preferring matching
// top/bottom preference first.
func DefaultCompatibility() *Compatibility {
	c, _ := NewCompatibility(
		Rule{A: models.CategoryTopMale, B: models.CategoryTopFemale, Priority: 1},
		Rule{A: models.CategoryBottomMale, B: models.CategoryBottomFemale, Priority: 2},
		Rule{A: models.CategoryTopMale, B: models.CategoryBottomFemale, Priority: 3},
		Rule{A: models.CategoryBottomMale, B: models.CategoryTopFemale, Priority: 4},
	)
	return c
}

func (c *Compatibility) set(a, b models.Category, priority int) {
	row, ok := c.allowed[a]
	if !ok {
		row = make(map[models.Category]int)
		c.allowed[a] = row
	}
	row[b] = priority
}

// Compatible reports whether a and b may be seated together.
func (c *Compatibility) Compatible(a, b models.Category) bool {
	_, ok := c.allowed[a][b]
	return ok
}

// Priority returns the preference rank of the pair.
func (c *Compatibility) Priority(a, b models.Category) (int, bool) {
	p, ok := c.allowed[a][b]
	return p, ok
}

// Partners returns the categories cat may be paired with, sorted by name.
func (c *Compatibility) Partners(cat models.Category) []models.Category {
	out := make([]models.Category, 0, len(c.allowed[cat]))
	for other := range c.allowed[cat] {
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rules returns the relation as one rule per unordered pair, sorted.
func (c *Compatibility) Rules() []Rule {
	var out []Rule
	for a, row := range c.allowed {
		for b, p := range row {
			if a <= b {
				out = append(out, Rule{A: a, B: b, Priority: p})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}
