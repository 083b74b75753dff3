// Package phrases supplies the text the engine speaks. Phrases are grouped
// by tone and dotted category; tones come from YAML files or phrase-pack
// plugins, and the engine never knows how many exist.
package phrases

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/security"
)

// DefaultTone is used when the requested tone is unknown.
const DefaultTone = "default"

var (
	ErrNoPhrases     = errors.New("no phrases for category")
	ErrEmptyCatalog  = errors.New("phrase catalog has no tones")
	ErrEmptyCategory = errors.New("category cannot be empty")
)

//go:embed default.yaml
var defaultYAML []byte

// Provider resolves the phrase pool for a tone and category.
type Provider interface {
	Phrases(ctx context.Context, tone, category string) ([]string, error)
}

// Catalog is an in-memory set of tone packs.
type Catalog struct {
	tones map[string]map[string][]string
}

type catalogFile struct {
	Tones map[string]map[string][]string `yaml:"tones"`
}

// Parse reads a YAML catalog of the form tones: {tone: {category: [phrase]}}.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse phrase catalog: %w", err)
	}
	if len(f.Tones) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{tones: make(map[string]map[string][]string, len(f.Tones))}
	for tone, cats := range f.Tones {
		tone = strings.TrimSpace(tone)
		m := make(map[string][]string, len(cats))
		for cat, pool := range cats {
			clean := make([]string, 0, len(pool))
			for _, p := range pool {
				if p = strings.TrimSpace(p); p != "" {
					clean = append(clean, p)
				}
			}
			if len(clean) > 0 {
				m[strings.TrimSpace(cat)] = clean
			}
		}
		c.tones[tone] = m
	}
	return c, nil
}

// LoadFile parses the catalog at path.
func LoadFile(path string) (*Catalog, error) {
	data, err := security.SafeReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phrase catalog: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("phrases: built-in catalog: %v", err))
	}
	return c
}

// Merge overlays other onto c: categories present in other replace those
// in c, everything else is kept.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{tones: make(map[string]map[string][]string)}
	for _, src := range []*Catalog{c, other} {
		if src == nil {
			continue
		}
		for tone, cats := range src.tones {
			if out.tones[tone] == nil {
				out.tones[tone] = make(map[string][]string)
			}
			for cat, pool := range cats {
				out.tones[tone][cat] = append([]string(nil), pool...)
			}
		}
	}
	return out
}

// Tones lists the known tone names.
func (c *Catalog) Tones() []string {
	out := make([]string, 0, len(c.tones))
	for t := range c.tones {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Phrases returns the pool for category in tone. An unknown tone falls
// back to DefaultTone; a category with no phrases falls back to its parent
// ("nag.3" then "nag"), first within the tone, then within DefaultTone.
func (c *Catalog) Phrases(_ context.Context, tone, category string) ([]string, error) {
	if category == "" {
		return nil, ErrEmptyCategory
	}
	tones := []string{tone}
	if tone != DefaultTone {
		tones = append(tones, DefaultTone)
	}
	for _, t := range tones {
		cats, ok := c.tones[t]
		if !ok {
			continue
		}
		for _, cat := range Lineage(category) {
			if pool := cats[cat]; len(pool) > 0 {
				return append([]string(nil), pool...), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNoPhrases, tone, category)
}

// Lineage returns category followed by each dotted parent:
// "celebrate.big.x" → ["celebrate.big.x", "celebrate.big", "celebrate"].
func Lineage(category string) []string {
	out := []string{category}
	for {
		i := strings.LastIndex(category, ".")
		if i <= 0 {
			return out
		}
		category = category[:i]
		out = append(out, category)
	}
}
