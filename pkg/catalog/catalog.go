// Package catalog answers which (provider, model) pairs can serve which
// generation capability.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/mediagate/pkg/provider"
)

// Model describes one generation model.
type Model struct {
	Provider     provider.Provider     `yaml:"provider"`
	ID           string                `yaml:"id"`
	DisplayName  string                `yaml:"display_name,omitempty"`
	Capabilities []provider.Capability `yaml:"capabilities"`
	Default      bool                  `yaml:"default,omitempty"`
	Credits      float64               `yaml:"credits,omitempty"`
}

// Has reports whether the model serves capability c.
func (m Model) Has(c provider.Capability) bool {
	for _, mc := range m.Capabilities {
		if mc == c {
			return true
		}
	}
	return false
}

// Name returns the display name, falling back to the ID.
func (m Model) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ID
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Provider   provider.Provider
	Capability provider.Capability
}

// Overlay is the structure of models.yaml.
type Overlay struct {
	Models  []Model           `yaml:"models"`
	Aliases map[string]string `yaml:"aliases"`
}

type modelKey struct {
	provider provider.Provider
	id       string
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	models  map[modelKey]Model
	order   []modelKey
	aliases map[string]string
}

// New returns a catalog seeded with the built-in model table.
func New() *Catalog {
	c := &Catalog{
		models:  make(map[modelKey]Model),
		aliases: make(map[string]string),
	}
	for _, m := range builtin {
		c.add(m)
	}
	return c
}

// Load reads a YAML overlay and merges it over the built-in table.
func Load(path string) (*Catalog, error) {
	c := New()
	if err := c.Merge(path); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadWithFallback merges ~/.mediagate/models.yaml when it exists, else the
// given path when it exists, else returns the built-in catalog.
func LoadWithFallback(defaultPath string) (*Catalog, error) {
	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".mediagate", "models.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return Load(userPath)
		}
	}

	if defaultPath != "" {
		if _, err := os.Stat(defaultPath); err == nil {
			return Load(defaultPath)
		}
	}

	return New(), nil
}

// Merge applies the overlay file at path.
func (c *Catalog) Merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return c.Apply(overlay)
}

// Apply merges an overlay. Entries replace built-ins with the same
// (provider, id).
func (c *Catalog) Apply(overlay Overlay) error {
	for _, m := range overlay.Models {
		if !m.Provider.Valid() {
			return fmt.Errorf("model %q: %w: %q", m.ID, provider.ErrUnknown, m.Provider)
		}
		if m.ID == "" {
			return fmt.Errorf("model for provider %s has no id", m.Provider)
		}
		if len(m.Capabilities) == 0 {
			return fmt.Errorf("model %s/%s lists no capabilities", m.Provider, m.ID)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range overlay.Models {
		if m.Default {
			c.clearDefaultLocked(m)
		}
		c.add(m)
	}
	for alias, target := range overlay.Aliases {
		c.aliases[alias] = target
	}
	return nil
}

func (c *Catalog) add(m Model) {
	k := modelKey{m.Provider, m.ID}
	if _, exists := c.models[k]; !exists {
		c.order = append(c.order, k)
	}
	c.models[k] = m
}

func (c *Catalog) clearDefaultLocked(m Model) {
	for k, existing := range c.models {
		if k.provider != m.Provider || !existing.Default {
			continue
		}
		for _, mc := range m.Capabilities {
			if existing.Has(mc) {
				existing.Default = false
				c.models[k] = existing
				break
			}
		}
	}
}

// Supports reports whether the (provider, model) pair can serve capability.
func (c *Catalog) Supports(p provider.Provider, model string, capability provider.Capability) bool {
	model = c.Resolve(model)

	c.mu.RLock()
	m, ok := c.models[modelKey{p, model}]
	c.mu.RUnlock()
	if ok {
		return m.Has(capability)
	}

	for _, hc := range openHubs[p] {
		if hc == capability && isHubID(model) {
			return true
		}
	}
	return false
}

// Lookup returns the catalog entry for a pair.
func (c *Catalog) Lookup(p provider.Provider, model string) (Model, bool) {
	model = c.Resolve(model)
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[modelKey{p, model}]
	return m, ok
}

// DefaultModel returns the default model for a provider and capability.
func (c *Catalog) DefaultModel(p provider.Provider, capability provider.Capability) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var fallback string
	for _, k := range c.order {
		if k.provider != p {
			continue
		}
		m := c.models[k]
		if !m.Has(capability) {
			continue
		}
		if m.Default {
			return m.ID, true
		}
		if fallback == "" {
			fallback = m.ID
		}
	}
	return fallback, fallback != ""
}

// List returns models matching f, sorted by provider then ID.
func (c *Catalog) List(f Filter) []Model {
	c.mu.RLock()
	var out []Model
	for _, k := range c.order {
		m := c.models[k]
		if f.Provider != "" && m.Provider != f.Provider {
			continue
		}
		if f.Capability != "" && !m.Has(f.Capability) {
			continue
		}
		out = append(out, m)
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Providers returns the providers with at least one model for capability,
// in provider.All order.
func (c *Catalog) Providers(capability provider.Capability) []provider.Provider {
	seen := make(map[provider.Provider]bool)
	for _, m := range c.List(Filter{Capability: capability}) {
		seen[m.Provider] = true
	}
	var out []provider.Provider
	for _, p := range provider.All() {
		if seen[p] {
			out = append(out, p)
		}
	}
	return out
}

// Resolve returns the canonical model name for an alias. If the input is not
// an alias, it returns the input unchanged.
func (c *Catalog) Resolve(modelOrAlias string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if canonical, ok := c.aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// Aliases returns a copy of the alias map.
func (c *Catalog) Aliases() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.aliases))
	for k, v := range c.aliases {
		out[k] = v
	}
	return out
}

func isHubID(model string) bool {
	owner, name, ok := strings.Cut(model, "/")
	if !ok || owner == "" || name == "" {
		return false
	}
	return !strings.ContainsAny(name, "/ ") && !strings.Contains(owner, " ")
}
