// Package split partitions row indices into train/test sets and
// cross-validation folds from a seeded permutation.
package split

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Stream identifiers keep the split permutation and the fold permutation
// independent even when they share a seed.
const (
	streamSplit uint64 = 0x73706c6974 // "split"
	streamFolds uint64 = 0x666f6c6473 // "folds"
)

// Partition assigns every row index to exactly one of Train or Test.
type Partition struct {
	Train []int `json:"train"`
	Test  []int `json:"test"`
}

// Permutation returns a deterministic permutation of 0..n-1 for seed.
func Permutation(n int, seed, stream uint64) []int {
	return rand.New(rand.NewPCG(seed, stream)).Perm(n)
}

// TrainSize is floor(fraction·n).
func TrainSize(n int, fraction float64) int {
	return int(math.Floor(fraction * float64(n)))
}

// TrainTest permutes 0..n-1 with seed; the first floor(fraction·n) indices
// form the training set and the rest the test set.
func TrainTest(n int, fraction float64, seed uint64) (Partition, error) {
	if n < 0 {
		return Partition{}, fmt.Errorf("split: negative row count %d", n)
	}
	if fraction <= 0 || fraction >= 1 {
		return Partition{}, fmt.Errorf("split: train fraction %v outside (0, 1)", fraction)
	}
	perm := Permutation(n, seed, streamSplit)
	k := TrainSize(n, fraction)
	return Partition{Train: perm[:k:k], Test: perm[k:]}, nil
}

// Folds assigns a seeded permutation of 0..n-1 round-robin into k folds.
// Fold sizes differ by at most one and every index appears in exactly one
// fold.
func Folds(n, k int, seed uint64) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("split: need at least 2 folds, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("split: %d folds for %d rows", k, n)
	}
	folds := make([][]int, k)
	for i, idx := range Permutation(n, seed, streamFolds) {
		folds[i%k] = append(folds[i%k], idx)
	}
	return folds, nil
}

// Complement returns the indices of 0..n-1 not in held, in ascending order.
func Complement(n int, held []int) []int {
	out := make([]bool, n)
	for _, i := range held {
		out[i] = true
	}
	rest := make([]int, 0, n-len(held))
	for i, skip := range out {
		if !skip {
			rest = append(rest, i)
		}
	}
	return rest
}
