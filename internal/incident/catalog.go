package incident

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// bundle is the on-disk layout of a catalog file
type bundle struct {
	Version   string       `yaml:"version"`
	Incidents []Definition `yaml:"incidents"`
}

// Catalog is the immutable incident knowledge base. It is safe for
// concurrent use once constructed.
type Catalog struct {
	version     string
	definitions []Definition
	index       map[string]int
}

// Default returns the catalog compiled into the binary
func Default() (*Catalog, error) {
	return Parse(embeddedCatalog)
}

// Parse decodes and validates a YAML catalog
func Parse(raw []byte) (*Catalog, error) {
	var b bundle
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parse incident catalog: %w", err)
	}
	if err := validate(b); err != nil {
		return nil, err
	}

	c := &Catalog{
		version:     b.Version,
		definitions: b.Incidents,
		index:       make(map[string]int, len(b.Incidents)),
	}
	for i, d := range b.Incidents {
		c.index[d.ID] = i
	}
	return c, nil
}

func validate(b bundle) error {
	if len(b.Incidents) == 0 {
		return errors.New("incident catalog: incidents is empty")
	}

	seen := make(map[string]struct{}, len(b.Incidents))
	for _, d := range b.Incidents {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return errors.New("incident catalog: incident id is required")
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("incident catalog: duplicate incident id: %s", id)
		}
		seen[id] = struct{}{}

		if !d.Category.Valid() {
			return fmt.Errorf("incident catalog: unknown category %q for %s", d.Category, id)
		}
		if len(d.ImmediateActions) == 0 {
			return fmt.Errorf("incident catalog: no immediate actions for %s", id)
		}
		for _, step := range d.EscalationLadder {
			if step.Level <= 0 {
				return fmt.Errorf("incident catalog: escalation level must be positive for %s", id)
			}
		}
	}
	return nil
}

// Version returns the catalog revision
func (c *Catalog) Version() string {
	return c.version
}

// Len returns the number of incidents
func (c *Catalog) Len() int {
	return len(c.definitions)
}

// FindByID looks up an incident by its id
func (c *Catalog) FindByID(id string) (*Definition, error) {
	i, ok := c.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	d := c.definitions[i]
	return &d, nil
}

// CategoryOf returns the category of the incident with the given id
func (c *Catalog) CategoryOf(id string) (Category, error) {
	d, err := c.FindByID(id)
	if err != nil {
		return "", err
	}
	return d.Category, nil
}

// All returns every incident in catalog order
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.definitions))
	copy(out, c.definitions)
	return out
}

// Search returns incidents whose title, category or summary contains
// query, ignoring case. Matches keep catalog order. An empty query
// matches everything.
func (c *Catalog) Search(query string) []Definition {
	q := strings.ToLower(query)
	out := make([]Definition, 0, len(c.definitions))
	for _, d := range c.definitions {
		if strings.Contains(strings.ToLower(d.Title), q) ||
			strings.Contains(strings.ToLower(string(d.Category)), q) ||
			strings.Contains(strings.ToLower(d.Summary), q) {
			out = append(out, d)
		}
	}
	return out
}

// ByCategory returns the incidents filed under category
func (c *Catalog) ByCategory(category Category) []Definition {
	var out []Definition
	for _, d := range c.definitions {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}
