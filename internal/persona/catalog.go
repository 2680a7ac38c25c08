package persona

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/types"
)

//go:embed data/*.yaml
var defaultFS embed.FS

// Directory is the lookup surface the orchestrator depends on
type Directory interface {
	Resolve(id string) (*Persona, error)
	Greeting(id string) (string, error)
	Directive(id string, tier types.Tier) (string, error)
	List() []*Persona
}

// Catalog is an in-memory, read-mostly persona directory
type Catalog struct {
	mu       sync.RWMutex
	personas map[string]*Persona
}

var _ Directory = (*Catalog)(nil)

type personaFile struct {
	Personas []*Persona `yaml:"personas"`
}

// NewCatalog builds a catalog from personas
func NewCatalog(personas ...*Persona) (*Catalog, error) {
	c := &Catalog{personas: make(map[string]*Persona)}
	seen := make(map[string]bool)
	for _, p := range personas {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate persona id: %s", p.ID)
		}
		seen[p.ID] = true
		c.personas[p.ID] = p
	}
	return c, nil
}

// Default loads the embedded personas
func Default() (*Catalog, error) {
	personas, err := readFS(defaultFS, "data")
	if err != nil {
		return nil, err
	}
	return NewCatalog(personas...)
}

// Load returns the embedded personas, overridden and extended by any
// *.yaml files found in dir. An empty dir means defaults only.
func Load(dir string) (*Catalog, error) {
	c, err := Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load default personas: %w", err)
	}
	if dir == "" {
		return c, nil
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("persona directory: %w", err)
	}
	extra, err := readFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, p := range extra {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate persona id in %s: %s", dir, p.ID)
		}
		seen[p.ID] = true
		if _, exists := c.personas[p.ID]; exists {
			logging.Info("Overriding built-in persona", map[string]interface{}{"persona_id": p.ID, "dir": dir})
		}
		c.personas[p.ID] = p
	}
	return c, nil
}

func readFS(fsys fs.FS, dir string) ([]*Persona, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona directory: %w", err)
	}

	var out []*Persona
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, entry.Name())))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		var file personaFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		out = append(out, file.Personas...)
	}
	return out, nil
}

// Resolve returns the persona with id or a NotFoundError
func (c *Catalog) Resolve(id string) (*Persona, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.personas[id]
	if !ok {
		return nil, &types.NotFoundError{Kind: "persona", ID: id}
	}
	return p, nil
}

// Greeting returns the opening line of the persona
func (c *Catalog) Greeting(id string) (string, error) {
	p, err := c.Resolve(id)
	if err != nil {
		return "", err
	}
	return p.Greeting, nil
}

// Directive returns the behavior text of persona id at tier
func (c *Catalog) Directive(id string, tier types.Tier) (string, error) {
	p, err := c.Resolve(id)
	if err != nil {
		return "", err
	}
	return p.Directive(tier)
}

// List returns all personas ordered by id
func (c *Catalog) List() []*Persona {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Persona, 0, len(c.personas))
	for _, p := range c.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
