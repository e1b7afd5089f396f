// Package graph provides a dependency graph for subtask scheduling.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the plan.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of subtask dependencies.
// Subtasks are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps subtask ID to the subtask itself.
	nodes map[int]models.Subtask
	// edges maps subtask ID to IDs of subtasks it depends on.
	edges     map[int][]int
	completed map[int]bool
	failed    map[int]bool
	logger    *zap.Logger
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[int]models.Subtask),
		edges:     make(map[int][]int),
		completed: make(map[int]bool),
		failed:    make(map[int]bool),
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the debug logger.
func (g *DependencyGraph) SetLogger(l *zap.Logger) {
	if l != nil {
		g.logger = l
	}
}

// Build constructs the graph from a plan.
// Returns an error if a cycle is detected or dependencies reference unknown subtasks.
func (g *DependencyGraph) Build(subtasks []models.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// First pass: register all subtasks as nodes.
	for _, st := range subtasks {
		if _, dup := g.nodes[st.ID]; dup {
			return fmt.Errorf("duplicate subtask id %d", st.ID)
		}
		g.nodes[st.ID] = st
		g.edges[st.ID] = nil
	}

	// Second pass: build edges from DependsOn.
	for _, st := range subtasks {
		for _, dep := range st.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return fmt.Errorf("subtask %d depends on unknown subtask %d", st.ID, dep)
			}
			g.edges[st.ID] = append(g.edges[st.ID], dep)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	g.logger.Debug("graph built", zap.Int("nodes", len(g.nodes)))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

func (g *DependencyGraph) hasCycleLocked() bool {
	return len(backEdges(g.sortedIDs(), g.edges)) > 0
}

func (g *DependencyGraph) sortedIDs() []int {
	ids := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// backEdges runs a coloring DFS over ids in order and returns every edge
// (from, to) that closes a cycle.
func backEdges(ids []int, edges map[int][]int) [][2]int {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[int]int, len(ids))
	var found [][2]int

	var visit func(id int)
	visit = func(id int) {
		colors[id] = 1
		for _, dep := range edges[id] {
			switch colors[dep] {
			case 1:
				found = append(found, [2]int{id, dep})
			case 0:
				visit(dep)
			}
		}
		colors[id] = 2
	}

	for _, id := range ids {
		if colors[id] == 0 {
			visit(id)
		}
	}
	return found
}

// TopologicalSort returns subtask IDs in an order where all dependencies
// come before their dependents. Ties are broken by ascending id.
func (g *DependencyGraph) TopologicalSort() ([]int, error) {
	waves, err := g.Waves()
	if err != nil {
		return nil, err
	}
	var order []int
	for _, w := range waves {
		order = append(order, w...)
	}
	return order, nil
}

// Waves groups subtasks into layers: every subtask in a wave depends only on
// subtasks in earlier waves. IDs within a wave are ascending.
func (g *DependencyGraph) Waves() ([][]int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	placed := make(map[int]bool, len(g.nodes))
	remaining := g.sortedIDs()
	var waves [][]int
	for len(remaining) > 0 {
		var wave, rest []int
		for _, id := range remaining {
			ready := true
			for _, dep := range g.edges[id] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			} else {
				rest = append(rest, id)
			}
		}
		for _, id := range wave {
			placed[id] = true
		}
		waves = append(waves, wave)
		remaining = rest
	}
	return waves, nil
}

// GetReady returns ascending IDs of subtasks whose dependencies are all
// complete and that are neither complete nor failed themselves.
func (g *DependencyGraph) GetReady() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []int
	for _, id := range g.sortedIDs() {
		if g.completed[id] || g.failed[id] {
			continue
		}
		ok := true
		for _, dep := range g.edges[id] {
			if !g.completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	g.logger.Debug("ready subtasks", zap.Ints("ids", ready))
	return ready
}

// MarkComplete marks a subtask as completed.
func (g *DependencyGraph) MarkComplete(id int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
}

// MarkFailed marks a subtask as failed. Its dependents never become ready.
func (g *DependencyGraph) MarkFailed(id int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed[id] = true
}

// IsFailed reports whether the subtask was marked failed.
func (g *DependencyGraph) IsFailed(id int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.failed[id]
}

// FailedDependency returns the first dependency of id that was marked failed.
func (g *DependencyGraph) FailedDependency(id int) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, dep := range g.edges[id] {
		if g.failed[dep] {
			return dep, true
		}
	}
	return 0, false
}

// Get returns the subtask for an ID.
func (g *DependencyGraph) Get(id int) (models.Subtask, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.nodes[id]
	return st, ok
}

// Size returns the number of subtasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs the given subtask depends on.
func (g *DependencyGraph) GetDependencies(id int) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.edges[id])
}

// GetDependents returns ascending IDs of subtasks that depend on the given one.
func (g *DependencyGraph) GetDependents(id int) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []int
	for _, other := range g.sortedIDs() {
		if slices.Contains(g.edges[other], id) {
			dependents = append(dependents, other)
		}
	}
	return dependents
}
