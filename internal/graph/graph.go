// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/pkg/models"
)

var (
	// ErrCycleDetected indicates a circular dependency was found in the task graph.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrSelfDependency indicates a task was asked to depend on itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")
	// ErrUnknownTask indicates an edge references a task not in the graph.
	ErrUnknownTask = errors.New("unknown task")
)

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
	logger    *zap.Logger
}

// Option configures a DependencyGraph.
type Option func(*DependencyGraph)

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(g *DependencyGraph) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a new empty dependency graph.
func New(opts ...Option) *DependencyGraph {
	g := &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Build constructs the dependency graph from a slice of tasks.
// Returns an error if a cycle is detected or dependencies reference unknown tasks.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		if task.Status == models.TaskStatusCompleted {
			g.completed[task.ID] = true
		}
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on %s: %w", task.ID, depID, ErrUnknownTask)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	g.logger.Debug("graph built", zap.Int("nodes", len(g.nodes)))
	return nil
}

// AddTask registers a task as a node without edges. Existing nodes are replaced
// but keep their edges.
func (g *DependencyGraph) AddTask(task *models.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[task.ID] = task
	if _, ok := g.edges[task.ID]; !ok {
		g.edges[task.ID] = nil
	}
}

// AddDependency records that taskID depends on dependsOnID.
// The edge is rejected without modifying the graph if it would create a cycle,
// which is the case when taskID is reachable from dependsOnID.
// The task's DependsOn slice is kept in step with the graph.
func (g *DependencyGraph) AddDependency(taskID, dependsOnID string) error {
	if taskID == dependsOnID {
		return fmt.Errorf("task %s: %w", taskID, ErrSelfDependency)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrUnknownTask)
	}
	if _, ok := g.nodes[dependsOnID]; !ok {
		return fmt.Errorf("task %s: %w", dependsOnID, ErrUnknownTask)
	}
	if contains(g.edges[taskID], dependsOnID) {
		return nil
	}

	cyclic, err := Reachable(dependsOnID, taskID, func(id string) ([]string, error) {
		return g.edges[id], nil
	})
	if err != nil {
		return err
	}
	if cyclic {
		return fmt.Errorf("%s -> %s: %w", taskID, dependsOnID, ErrCycleDetected)
	}

	g.edges[taskID] = append(g.edges[taskID], dependsOnID)
	if !contains(task.DependsOn, dependsOnID) {
		task.DependsOn = append(task.DependsOn, dependsOnID)
	}
	g.logger.Debug("dependency added", zap.String("task_id", taskID), zap.String("depends_on", dependsOnID))
	return nil
}

// RemoveDependency deletes the edge taskID -> dependsOnID.
// It returns false if the edge did not exist.
func (g *DependencyGraph) RemoveDependency(taskID, dependsOnID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	deps, ok := g.edges[taskID]
	if !ok || !contains(deps, dependsOnID) {
		return false
	}
	g.edges[taskID] = without(deps, dependsOnID)
	if task := g.nodes[taskID]; task != nil {
		task.DependsOn = without(task.DependsOn, dependsOnID)
	}
	return true
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	const (
		white = iota
		gray
		black
	)
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case gray:
				return true
			case white:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range g.sortedIDsLocked() {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns task IDs in an order where all dependencies
// come before the tasks that depend on them. Ties are broken by ID.
// Returns an error if the graph contains a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.sortedIDsLocked() {
		visit(id)
	}
	return result, nil
}

// GetReady returns task IDs that have no unmet dependencies and are not yet
// completed, sorted by ID. These tasks can be executed in parallel.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.sortedIDsLocked() {
		task := g.nodes[id]
		if g.completed[id] || task.Status.Terminal() {
			continue
		}
		allDone := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkComplete marks a task as completed in the graph.
// This affects subsequent calls to GetReady.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// GetDependents returns the IDs of tasks that depend on the given task, sorted.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for id, deps := range g.edges {
		if contains(deps, taskID) {
			dependents = append(dependents, id)
		}
	}
	sort.Strings(dependents)
	return dependents
}

func (g *DependencyGraph) sortedIDsLocked() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reachable reports whether target can be reached from start by following
// dependency edges. depsOf returns the direct dependencies of a node.
// The walk uses an explicit stack so deep chains do not grow the call stack.
func Reachable(start, target string, depsOf func(id string) ([]string, error)) (bool, error) {
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true, nil
		}
		deps, err := depsOf(id)
		if err != nil {
			return false, err
		}
		for _, dep := range deps {
			if !visited[dep] {
				visited[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func without(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
