package dataset

import (
	"math"
	"math/rand"
	"sort"
)

// TrainTestSplit deterministically splits row indices into train and test
// sets, stratified by label. The same seed always produces the same split.
func TrainTestSplit(labels []int, testFraction float64, seed int64) (train, test []int) {
	byLabel := make(map[int][]int)
	for i, y := range labels {
		byLabel[y] = append(byLabel[y], i)
	}
	classes := make([]int, 0, len(byLabel))
	for y := range byLabel {
		classes = append(classes, y)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	for _, y := range classes {
		group := byLabel[y]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		nTest := int(math.Round(float64(len(group)) * testFraction))
		if nTest >= len(group) {
			nTest = len(group) - 1
		}
		if nTest < 0 {
			nTest = 0
		}
		test = append(test, group[:nTest]...)
		train = append(train, group[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// StratifiedKFold assigns rows to k folds with balanced class proportions,
// returning the validation indices of each fold. The same seed always
// produces the same folds.
func StratifiedKFold(labels []int, k int, seed int64) [][]int {
	if k < 2 {
		k = 2
	}
	byLabel := make(map[int][]int)
	for i, y := range labels {
		byLabel[y] = append(byLabel[y], i)
	}
	classes := make([]int, 0, len(byLabel))
	for y := range byLabel {
		classes = append(classes, y)
	}
	sort.Ints(classes)

	folds := make([][]int, k)
	rng := rand.New(rand.NewSource(seed))
	for _, y := range classes {
		group := byLabel[y]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		for pos, idx := range group {
			f := pos % k
			folds[f] = append(folds[f], idx)
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds
}

// Complement returns all indices in [0, n) that are not in exclude.
func Complement(n int, exclude []int) []int {
	skip := make(map[int]bool, len(exclude))
	for _, i := range exclude {
		skip[i] = true
	}
	out := make([]int, 0, n-len(exclude))
	for i := 0; i < n; i++ {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}

// SubsetLabels picks labels by index.
func SubsetLabels(labels []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}

// SubsetStrings picks strings by index.
func SubsetStrings(texts []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = texts[j]
	}
	return out
}
