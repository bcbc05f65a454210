package ml

import (
	"math"
	"math/rand"
)

// RandomForest averages bootstrap-trained trees whose leaves hold the share
// of positive labels. Training is deterministic for a given Seed.
type RandomForest struct {
	NTrees   int    `json:"n_trees"`
	MaxDepth int    `json:"max_depth"`
	MinLeaf  int    `json:"min_leaf"`
	Seed     int64  `json:"seed"`
	Features int    `json:"features"`
	Trees    []Tree `json:"trees"`
}

// NewRandomForest returns a forest with 100 trees of depth 8.
func NewRandomForest() *RandomForest {
	return &RandomForest{NTrees: 100, MaxDepth: 8, MinLeaf: 2, Seed: 1}
}

func (f *RandomForest) Kind() Kind { return KindForest }

func (f *RandomForest) Fit(X [][]float64, y []bool) error {
	d, err := checkTable(X, y)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(f.Seed))
	g := labels01(y)
	h := make([]float64, len(y))
	for i := range h {
		h[i] = 1
	}
	p := treeParams{
		MaxDepth:    f.MaxDepth,
		MinLeaf:     max(1, f.MinLeaf),
		MaxFeatures: max(1, int(math.Sqrt(float64(d)))),
	}

	n := len(X)
	f.Features = d
	f.Trees = make([]Tree, 0, f.NTrees)
	idx := make([]int, n)
	for t := 0; t < max(1, f.NTrees); t++ {
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		f.Trees = append(f.Trees, buildTree(X, g, h, idx, p, rng))
	}
	return nil
}

func (f *RandomForest) PredictProba(x []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errNotFitted
	}
	if err := checkWidth(x, f.Features); err != nil {
		return 0, err
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

func (f *RandomForest) Predict(x []float64) (bool, error) {
	p, err := f.PredictProba(x)
	return p > 0.5, err
}
