package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ShayCichocki/hollon/pkg/models"
)

func TestNew(t *testing.T) {
	g := New()
	if g.Size() != 0 {
		t.Errorf("expected empty graph, got size %d", g.Size())
	}
}

func TestGraphBuildWithDependencies(t *testing.T) {
	g := New()
	tasks := []*models.Task{
		{ID: "task-1", Status: models.TaskStatusPending},
		{ID: "task-2", Status: models.TaskStatusPending, DependsOn: []string{"task-1"}},
		{ID: "task-3", Status: models.TaskStatusPending, DependsOn: []string{"task-1", "task-2"}},
	}

	if err := g.Build(tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deps := g.GetDependencies("task-3"); len(deps) != 2 {
		t.Errorf("expected 2 dependencies for task-3, got %d", len(deps))
	}
	if dependents := g.GetDependents("task-1"); len(dependents) != 2 {
		t.Errorf("expected 2 dependents for task-1, got %v", dependents)
	}
}

func TestGraphBuildUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{{ID: "a", DependsOn: []string{"ghost"}}})
	if !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Build() = %v, want ErrUnknownTask", err)
	}
}

func TestGraphBuildCycle(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		{ID: "a", DependsOn: []string{"c"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("Build() = %v, want ErrCycleDetected", err)
	}
}

func TestAddDependency(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr error
	}{
		{"valid edge", "c", "a", nil},
		{"self dependency", "a", "a", ErrSelfDependency},
		{"direct cycle", "a", "b", ErrCycleDetected},
		{"transitive cycle", "a", "c", ErrCycleDetected},
		{"unknown task", "a", "zzz", ErrUnknownTask},
		{"duplicate edge", "b", "a", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			a := &models.Task{ID: "a"}
			b := &models.Task{ID: "b", DependsOn: []string{"a"}}
			c := &models.Task{ID: "c", DependsOn: []string{"b"}}
			if err := g.Build([]*models.Task{a, b, c}); err != nil {
				t.Fatalf("Build: %v", err)
			}
			before := fmt.Sprint(g.GetDependencies(tt.from))

			err := g.AddDependency(tt.from, tt.to)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AddDependency(%s, %s) = %v, want %v", tt.from, tt.to, err, tt.wantErr)
			}
			if err != nil {
				if after := fmt.Sprint(g.GetDependencies(tt.from)); after != before {
					t.Errorf("failed insert changed edges: %s -> %s", before, after)
				}
			}
			if g.HasCycle() {
				t.Error("graph contains a cycle")
			}
		})
	}
}

func TestAddDependency_UpdatesTask(t *testing.T) {
	g := New()
	a := &models.Task{ID: "a"}
	b := &models.Task{ID: "b"}
	g.AddTask(a)
	g.AddTask(b)

	if err := g.AddDependency("b", "a"); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	if len(b.DependsOn) != 1 || b.DependsOn[0] != "a" {
		t.Errorf("b.DependsOn = %v, want [a]", b.DependsOn)
	}

	if !g.RemoveDependency("b", "a") {
		t.Fatal("RemoveDependency returned false for existing edge")
	}
	if len(b.DependsOn) != 0 {
		t.Errorf("b.DependsOn = %v after removal", b.DependsOn)
	}
	if g.RemoveDependency("b", "a") {
		t.Error("RemoveDependency returned true for missing edge")
	}
}

// Random insertions must never leave a cycle behind.
func TestAddDependency_NeverIntroducesCycle(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		g := New()
		const n = 12
		for i := 0; i < n; i++ {
			g.AddTask(&models.Task{ID: fmt.Sprintf("t%02d", i)})
		}
		for i := 0; i < 60; i++ {
			from := fmt.Sprintf("t%02d", rng.Intn(n))
			to := fmt.Sprintf("t%02d", rng.Intn(n))
			err := g.AddDependency(from, to)
			if err != nil && !errors.Is(err, ErrCycleDetected) && !errors.Is(err, ErrSelfDependency) {
				t.Fatalf("unexpected error: %v", err)
			}
			if g.HasCycle() {
				t.Fatalf("round %d: cycle after inserting %s -> %s", round, from, to)
			}
		}
		if _, err := g.TopologicalSort(); err != nil {
			t.Fatalf("TopologicalSort: %v", err)
		}
	}
}

func TestTopologicalSort(t *testing.T) {
	g := New()
	tasks := []*models.Task{
		{ID: "deploy", DependsOn: []string{"build", "test"}},
		{ID: "test", DependsOn: []string{"build"}},
		{ID: "build"},
	}
	if err := g.Build(tasks); err != nil {
		t.Fatalf("Build: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if pos[dep] > pos[task.ID] {
				t.Errorf("%s sorted after dependent %s: %v", dep, task.ID, order)
			}
		}
	}
}

func TestGetReadyAndMarkComplete(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{
		{ID: "a", Status: models.TaskStatusReady},
		{ID: "b", Status: models.TaskStatusBlocked, DependsOn: []string{"a"}},
		{ID: "c", Status: models.TaskStatusCancelled},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if ready := g.GetReady(); fmt.Sprint(ready) != "[a]" {
		t.Errorf("GetReady() = %v, want [a]", ready)
	}

	g.MarkComplete("a")
	if ready := g.GetReady(); fmt.Sprint(ready) != "[b]" {
		t.Errorf("GetReady() after completion = %v, want [b]", ready)
	}
}

func TestReachable_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Reachable("a", "b", func(string) ([]string, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("Reachable() = %v, want boom", err)
	}
}
