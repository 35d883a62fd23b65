package catalog

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// Snapshot is an immutable view of the catalog.
type Snapshot struct {
	models  []*Model
	byKey   map[string]*Model
	aliases map[string]string // provider/alias -> provider/id
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		byKey:   make(map[string]*Model),
		aliases: make(map[string]string),
	}
}

// NewSnapshot builds a snapshot from already validated models. Duplicates are
// rejected.
func NewSnapshot(models ...*Model) (*Snapshot, error) {
	snap := newSnapshot()
	for _, m := range models {
		if err := snap.add(m); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *Snapshot) add(m *Model) error {
	key := m.Key()
	if _, exists := s.byKey[key]; exists {
		return fmt.Errorf("model %q already registered", key)
	}
	for _, alias := range m.Aliases {
		aliasKey := m.Provider + "/" + normalize(m.Provider, alias)
		if target, exists := s.aliases[aliasKey]; exists && target != key {
			return fmt.Errorf("alias %q already maps to %q", alias, target)
		}
	}

	s.models = append(s.models, m)
	s.byKey[key] = m
	for _, alias := range m.Aliases {
		s.aliases[m.Provider+"/"+normalize(m.Provider, alias)] = key
	}
	return nil
}

// Models returns every model in provider/id order.
func (s *Snapshot) Models() []*Model {
	return s.models
}

// Providers returns the distinct provider names.
func (s *Snapshot) Providers() []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range s.models {
		if !seen[m.Provider] {
			seen[m.Provider] = true
			names = append(names, m.Provider)
		}
	}
	return names
}

// Lookup returns the model with the exact provider and id.
func (s *Snapshot) Lookup(provider, id string) (*Model, bool) {
	m, ok := s.byKey[provider+"/"+id]
	return m, ok
}

// Resolve finds the canonical model for an id that may be an alias, carry a
// provider prefix, or be a free-tier variant name.
func (s *Snapshot) Resolve(provider, id string) (*Model, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if m, ok := s.byKey[provider+"/"+id]; ok {
		return m, nil
	}

	norm := normalize(provider, id)
	if m, ok := s.byKey[provider+"/"+norm]; ok {
		return m, nil
	}
	if target, ok := s.aliases[provider+"/"+norm]; ok {
		return s.byKey[target], nil
	}
	return nil, fmt.Errorf("%s: unknown model %q", provider, id)
}

// normalize lower-cases id, drops a provider prefix and a free-variant suffix.
func normalize(provider, id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimPrefix(id, provider+"/")
	id = strings.TrimSuffix(id, ":free")
	id = strings.TrimSuffix(id, "-free")
	return id
}

// Catalog serves the current snapshot and swaps it atomically on reload.
type Catalog struct {
	dir      string
	logger   *slog.Logger
	snap     atomic.Pointer[Snapshot]
	onReload func(error)
}

// New creates a catalog that serves the given snapshot.
func New(snap *Snapshot, logger *slog.Logger) *Catalog {
	c := &Catalog{logger: logger}
	c.snap.Store(snap)
	return c
}

// Open loads the catalog from a directory of YAML files.
func Open(dir string, logger *slog.Logger) (*Catalog, error) {
	snap, err := LoadDir(dir, logger)
	if err != nil {
		return nil, err
	}
	c := New(snap, logger)
	c.dir = dir
	return c, nil
}

// Dir returns the directory the catalog was loaded from.
func (c *Catalog) Dir() string {
	return c.dir
}

// Snapshot returns the current snapshot.
func (c *Catalog) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Resolve resolves a model id against the current snapshot.
func (c *Catalog) Resolve(provider, id string) (*Model, error) {
	return c.Snapshot().Resolve(provider, id)
}

// OnReload registers a callback invoked with the result of every Reload.
// It must be set before Watch starts.
func (c *Catalog) OnReload(fn func(error)) {
	c.onReload = fn
}

// Reload re-reads the catalog directory. The previous snapshot stays in
// service if the directory cannot be read or yields no models.
func (c *Catalog) Reload() (err error) {
	if c.onReload != nil {
		defer func() { c.onReload(err) }()
	}
	if c.dir == "" {
		return fmt.Errorf("catalog has no source directory")
	}

	snap, err := LoadDir(c.dir, c.logger)
	if err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}
	if len(snap.Models()) == 0 {
		return fmt.Errorf("reload catalog: no valid models in %s", c.dir)
	}

	c.snap.Store(snap)
	c.logger.Info("catalog reloaded", "dir", c.dir, "models", len(snap.Models()))
	return nil
}
