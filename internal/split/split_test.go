package split

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTrainTest_Deterministic(t *testing.T) {
	a, err := TrainTest(257, 0.8, 853)
	if err != nil {
		t.Fatalf("TrainTest: %v", err)
	}
	b, _ := TrainTest(257, 0.8, 853)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed gave different partitions (-a +b):\n%s", diff)
	}
	c, _ := TrainTest(257, 0.8, 854)
	if cmp.Equal(a, c) {
		t.Error("different seeds gave identical partitions")
	}
}

func TestTrainTest_DisjointExhaustive(t *testing.T) {
	for _, n := range []int{0, 1, 4, 5, 10, 99, 1000} {
		p, err := TrainTest(n, 0.8, 7)
		if err != nil {
			t.Fatalf("TrainTest(%d): %v", n, err)
		}
		if got, want := len(p.Train), n*8/10; got != want {
			t.Errorf("n=%d: |train| = %d, want floor(0.8n) = %d", n, got, want)
		}
		all := append(slices.Clone(p.Train), p.Test...)
		slices.Sort(all)
		want := make([]int, n)
		for i := range want {
			want[i] = i
		}
		if diff := cmp.Diff(want, all, cmp.Comparer(func(a, b []int) bool { return slices.Equal(a, b) })); diff != "" {
			t.Errorf("n=%d: train ∪ test is not 0..n-1 exactly once:\n%s", n, diff)
		}
	}
}

func TestTrainTest_RejectsFraction(t *testing.T) {
	for _, f := range []float64{0, 1, -0.1, 1.5} {
		if _, err := TrainTest(10, f, 1); err == nil {
			t.Errorf("TrainTest fraction %v: expected error", f)
		}
	}
}

func TestTrainSize(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{{0, 0}, {1, 0}, {4, 3}, {5, 4}, {9, 7}, {2871, 2296}}
	for _, tc := range tests {
		if got := TrainSize(tc.n, 0.8); got != tc.want {
			t.Errorf("TrainSize(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestFolds_Balanced(t *testing.T) {
	folds, err := Folds(103, 10, 853)
	if err != nil {
		t.Fatalf("Folds: %v", err)
	}
	if len(folds) != 10 {
		t.Fatalf("got %d folds", len(folds))
	}
	seen := make(map[int]int)
	for _, f := range folds {
		if len(f) != 10 && len(f) != 11 {
			t.Errorf("fold size %d, want 10 or 11", len(f))
		}
		for _, i := range f {
			seen[i]++
		}
	}
	for i := 0; i < 103; i++ {
		if seen[i] != 1 {
			t.Errorf("index %d appears %d times", i, seen[i])
		}
	}
}

func TestFolds_Errors(t *testing.T) {
	if _, err := Folds(5, 10, 1); err == nil {
		t.Error("more folds than rows: expected error")
	}
	if _, err := Folds(5, 1, 1); err == nil {
		t.Error("one fold: expected error")
	}
}

func TestComplement(t *testing.T) {
	got := Complement(6, []int{4, 1})
	if diff := cmp.Diff([]int{0, 2, 3, 5}, got); diff != "" {
		t.Errorf("complement mismatch (-want +got):\n%s", diff)
	}
}
