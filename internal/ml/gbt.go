package ml

import "math"

// GradientBoosted is a logistic-loss boosted ensemble of shallow regression
// trees with Newton-step leaves.
type GradientBoosted struct {
	Rounds       int     `json:"rounds"`
	LearningRate float64 `json:"learning_rate"`
	MaxDepth     int     `json:"max_depth"`
	MinLeaf      int     `json:"min_leaf"`
	Lambda       float64 `json:"lambda"`
	Features     int     `json:"features"`
	Base         float64 `json:"base"`
	Trees        []Tree  `json:"trees"`
}

// NewGradientBoosted returns 100 rounds of depth-3 trees at learning rate 0.1.
func NewGradientBoosted() *GradientBoosted {
	return &GradientBoosted{Rounds: 100, LearningRate: 0.1, MaxDepth: 3, MinLeaf: 2, Lambda: 1}
}

func (m *GradientBoosted) Kind() Kind { return KindGBT }

func (m *GradientBoosted) Fit(X [][]float64, y []bool) error {
	d, err := checkTable(X, y)
	if err != nil {
		return err
	}
	n := len(X)
	target := labels01(y)

	var pos float64
	for _, v := range target {
		pos += v
	}
	p0 := min(max(pos/float64(n), 1e-6), 1-1e-6)
	m.Base = math.Log(p0 / (1 - p0))
	m.Features = d
	m.Trees = make([]Tree, 0, m.Rounds)

	F := make([]float64, n)
	for i := range F {
		F[i] = m.Base
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	g := make([]float64, n)
	h := make([]float64, n)
	params := treeParams{MaxDepth: m.MaxDepth, MinLeaf: max(1, m.MinLeaf), Lambda: m.Lambda}

	for r := 0; r < m.Rounds; r++ {
		for i := range F {
			p := sigmoid(F[i])
			g[i] = target[i] - p
			h[i] = p * (1 - p)
		}
		tree := buildTree(X, g, h, idx, params, nil)
		for i, row := range X {
			F[i] += m.LearningRate * tree.Predict(row)
		}
		m.Trees = append(m.Trees, tree)
	}
	return nil
}

func (m *GradientBoosted) PredictProba(x []float64) (float64, error) {
	if m.Features == 0 {
		return 0, errNotFitted
	}
	if err := checkWidth(x, m.Features); err != nil {
		return 0, err
	}
	z := m.Base
	for i := range m.Trees {
		z += m.LearningRate * m.Trees[i].Predict(x)
	}
	return sigmoid(z), nil
}

func (m *GradientBoosted) Predict(x []float64) (bool, error) {
	p, err := m.PredictProba(x)
	return p > 0.5, err
}
