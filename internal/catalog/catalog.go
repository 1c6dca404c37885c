// Package catalog keeps loaded graphs by owner, namespace and name.
package catalog

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/loading"
	"github.com/23skdu/quiver/internal/metrics"
	"github.com/rs/zerolog"
)

// Key identifies a graph in the catalog.
type Key struct {
	Owner     string
	Namespace string
	Name      string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Owner, k.Namespace, k.Name)
}

func (k Key) validate(operation string) error {
	if k.Owner == "" || k.Namespace == "" || k.Name == "" {
		return qerrors.NewValidationError(operation, "owner, namespace and name are required").
			WithContext("key", k.String())
	}
	return nil
}

// Entry is a registered graph.
type Entry struct {
	Key   Key
	Graph *loading.Graph
}

// Catalog is a concurrency safe registry of graphs. Graphs dropped from the
// catalog or still held on Close are released.
type Catalog struct {
	mu     sync.RWMutex
	graphs map[Key]*loading.Graph
	closed bool
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Catalog {
	return &Catalog{
		graphs: make(map[Key]*loading.Graph),
		logger: logger,
	}
}

// Set registers g under key. It fails if the key is taken.
func (c *Catalog) Set(key Key, g *loading.Graph) error {
	if err := key.validate("catalog.set"); err != nil {
		return err
	}
	if g == nil {
		return qerrors.NewValidationError("catalog.set", "graph is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return qerrors.NewMisuseError("catalog.set", "catalog closed")
	}
	if _, ok := c.graphs[key]; ok {
		return qerrors.NewValidationError("catalog.set", "graph already exists").
			WithContext("key", key.String())
	}
	c.graphs[key] = g
	metrics.CatalogGraphs.Set(float64(len(c.graphs)))
	c.logger.Info().
		Str("graph", key.String()).
		Int64("nodes", g.NodeCount()).
		Int64("relationships", g.RelationshipCount()).
		Msg("Graph registered")
	return nil
}

// Get returns the graph under key.
func (c *Catalog) Get(key Key) (*loading.Graph, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.graphs[key]
	if !ok {
		return nil, notFound("catalog.get", key)
	}
	return g, nil
}

func (c *Catalog) Exists(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.graphs[key]
	return ok
}

// Drop removes and releases the graph under key.
func (c *Catalog) Drop(key Key) error {
	c.mu.Lock()
	g, ok := c.graphs[key]
	if ok {
		delete(c.graphs, key)
		metrics.CatalogGraphs.Set(float64(len(c.graphs)))
	}
	c.mu.Unlock()
	if !ok {
		return notFound("catalog.drop", key)
	}
	g.Release()
	c.logger.Info().Str("graph", key.String()).Msg("Graph dropped")
	return nil
}

// List returns the entries of owner, or of every owner when owner is empty,
// sorted by key.
func (c *Catalog) List(owner string) []Entry {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.graphs))
	for k, g := range c.graphs {
		if owner == "" || k.Owner == owner {
			entries = append(entries, Entry{Key: k, Graph: g})
		}
	}
	c.mu.RUnlock()
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Key.Owner, b.Key.Owner),
			cmp.Compare(a.Key.Namespace, b.Key.Namespace),
			cmp.Compare(a.Key.Name, b.Key.Name),
		)
	})
	return entries
}

// Close releases every graph. The catalog rejects new graphs afterwards.
func (c *Catalog) Close() error {
	c.mu.Lock()
	graphs := c.graphs
	c.graphs = make(map[Key]*loading.Graph)
	c.closed = true
	c.mu.Unlock()

	for _, g := range graphs {
		g.Release()
	}
	metrics.CatalogGraphs.Set(0)
	c.logger.Info().Int("released", len(graphs)).Msg("Catalog closed")
	return nil
}

func notFound(operation string, key Key) error {
	return qerrors.NewValidationError(operation, "graph not found").
		WithContext("key", key.String())
}
