package domain

import (
	"iter"
	"maps"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Graph is the dependency graph of the packages taking part in one install.
type Graph struct {
	deps  map[string][]string
	order []string
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		deps: make(map[string][]string),
	}
}

// AddPackage adds a package and the names it depends on.
// It returns an error if the package was already added.
func (g *Graph) AddPackage(name string, deps []string) error {
	if _, exists := g.deps[name]; exists {
		return zerr.With(zerr.Wrap(ErrDuplicatePackage, name), "package", name)
	}
	g.deps[name] = slices.Clone(deps)
	return nil
}

// Validate checks for cycles with a topological sort and fixes the start order.
// Dependencies that are not part of the graph are already installed and are ignored.
// Packages are visited in name order so the order is deterministic.
func (g *Graph) Validate() error {
	g.order = make([]string, 0, len(g.deps))
	visited := make(map[string]int) // 0: unvisited, 1: visiting, 2: visited
	var path []string

	var visit func(u string) error
	visit = func(u string) error {
		visited[u] = 1
		path = append(path, u)

		deps := slices.Clone(g.deps[u])
		slices.Sort(deps)
		for _, dep := range deps {
			if _, inGraph := g.deps[dep]; !inGraph {
				continue
			}
			if visited[dep] == 1 {
				return cycleError(path, dep)
			}
			if visited[dep] == 0 {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[u] = 2
		path = path[:len(path)-1]
		g.order = append(g.order, u)
		return nil
	}

	for _, name := range slices.Sorted(maps.Keys(g.deps)) {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				g.order = nil
				return err
			}
		}
	}
	return nil
}

func cycleError(path []string, dep string) error {
	start := slices.Index(path, dep)
	cycle := append(slices.Clone(path[start:]), dep)
	joined := strings.Join(cycle, " -> ")
	return zerr.With(zerr.Wrap(ErrDependencyCycle, joined), "cycle", joined)
}

// Walk yields package names with dependencies before their dependents.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[string] {
	return slices.Values(g.order)
}
