package graph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/conduct/pkg/models"
)

func plan(deps map[int][]int, n int) []models.Subtask {
	out := make([]models.Subtask, n)
	for i := 0; i < n; i++ {
		out[i] = models.Subtask{ID: i, DependsOn: deps[i]}
	}
	return out
}

func TestBuild_UnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]models.Subtask{{ID: 0, DependsOn: []int{7}}})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuild_DuplicateID(t *testing.T) {
	g := New()
	if err := g.Build([]models.Subtask{{ID: 1}, {ID: 1}}); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestBuild_Cycle(t *testing.T) {
	g := New()
	err := g.Build(plan(map[int][]int{0: {2}, 1: {0}, 2: {1}}, 3))
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("Build() error = %v, want ErrCycleDetected", err)
	}
}

func TestWaves(t *testing.T) {
	tests := []struct {
		name string
		deps map[int][]int
		n    int
		want [][]int
	}{
		{"independent", nil, 3, [][]int{{0, 1, 2}}},
		{"chain", map[int][]int{1: {0}, 2: {1}}, 3, [][]int{{0}, {1}, {2}}},
		{"diamond", map[int][]int{1: {0}, 2: {0}, 3: {1, 2}}, 4, [][]int{{0}, {1, 2}, {3}}},
		{"empty", nil, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			if err := g.Build(plan(tt.deps, tt.n)); err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			got, err := g.Waves()
			if err != nil {
				t.Fatalf("Waves() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Waves() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTopologicalSort_DependenciesFirst(t *testing.T) {
	g := New()
	_ = g.Build(plan(map[int][]int{0: {3}, 1: {3}, 2: {0, 1}}, 4))

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}
	pos := map[int]int{}
	for i, id := range order {
		pos[id] = i
	}
	for id, deps := range map[int][]int{0: {3}, 1: {3}, 2: {0, 1}} {
		for _, d := range deps {
			if pos[d] > pos[id] {
				t.Errorf("dependency %d ordered after %d: %v", d, id, order)
			}
		}
	}
}

func TestGetReady_Progression(t *testing.T) {
	g := New()
	_ = g.Build(plan(map[int][]int{1: {0}, 2: {0}, 3: {1, 2}}, 4))

	if diff := cmp.Diff([]int{0}, g.GetReady()); diff != "" {
		t.Errorf("initial ready mismatch:\n%s", diff)
	}
	g.MarkComplete(0)
	if diff := cmp.Diff([]int{1, 2}, g.GetReady()); diff != "" {
		t.Errorf("ready after 0 mismatch:\n%s", diff)
	}
	g.MarkComplete(1)
	g.MarkFailed(2)
	if got := g.GetReady(); len(got) != 0 {
		t.Errorf("subtask with failed dependency became ready: %v", got)
	}
	if dep, ok := g.FailedDependency(3); !ok || dep != 2 {
		t.Errorf("FailedDependency(3) = %d, %v", dep, ok)
	}
}

func TestGetDependents(t *testing.T) {
	g := New()
	_ = g.Build(plan(map[int][]int{1: {0}, 2: {0}, 3: {1}}, 4))

	if diff := cmp.Diff([]int{1, 2}, g.GetDependents(0)); diff != "" {
		t.Errorf("GetDependents(0) mismatch:\n%s", diff)
	}
	if got := g.GetDependencies(3); !cmp.Equal(got, []int{1}) {
		t.Errorf("GetDependencies(3) = %v", got)
	}
}
