package ml

import (
	"fmt"
	"math/rand"
	"sort"

	"trading-simv1/internal/model"
)

// Node is one node of a flattened regression tree. Children always sit at
// higher indices than their parent.
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf,omitempty"`
}

// Tree is a binary regression tree stored as a node slice rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks x down to a leaf and returns its value.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: empty tree", model.ErrArtifactCorrupt)
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("%w: node %d splits on feature %d of %d", model.ErrArtifactCorrupt, i, n.Feature, width)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("%w: node %d has invalid children", model.ErrArtifactCorrupt, i)
		}
	}
	return nil
}

type treeParams struct {
	MaxDepth    int
	MinLeaf     int
	MaxFeatures int     // features tried per split; <= 0 means all
	Lambda      float64 // leaf regularisation
}

// treeBuilder grows a tree on targets g with weights h. Splits maximise
// GL²/(HL+λ) + GR²/(HR+λ) and leaves hold ΣG/(ΣH+λ). With h = 1 and λ = 0
// this is a plain variance-reduction regression tree; with gradient and
// hessian of the logistic loss it is a Newton boosting step.
type treeBuilder struct {
	X     [][]float64
	g, h  []float64
	p     treeParams
	rng   *rand.Rand
	nodes []Node
}

func buildTree(X [][]float64, g, h []float64, idx []int, p treeParams, rng *rand.Rand) Tree {
	b := &treeBuilder{X: X, g: g, h: h, p: p, rng: rng}
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Leaf: true, Value: b.leafValue(idx)})

	if depth >= b.p.MaxDepth || len(idx) < 2*b.p.MinLeaf {
		return id
	}
	feat, thr, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = Node{Feature: feat, Threshold: thr, Left: l, Right: r, Value: b.nodes[id].Value}
	return id
}

func (b *treeBuilder) leafValue(idx []int) float64 {
	var G, H float64
	for _, i := range idx {
		G += b.g[i]
		H += b.h[i]
	}
	if H+b.p.Lambda == 0 {
		return 0
	}
	return G / (H + b.p.Lambda)
}

func (b *treeBuilder) candidates() []int {
	d := len(b.X[0])
	if b.p.MaxFeatures <= 0 || b.p.MaxFeatures >= d {
		all := make([]int, d)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(d)[:b.p.MaxFeatures]
}

func (b *treeBuilder) bestSplit(idx []int) (feat int, thr float64, ok bool) {
	var G, H float64
	for _, i := range idx {
		G += b.g[i]
		H += b.h[i]
	}
	best := score(G, H, b.p.Lambda) + 1e-12

	sorted := make([]int, len(idx))
	for _, f := range b.candidates() {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var GL, HL float64
		for k := 0; k < len(sorted)-1; k++ {
			GL += b.g[sorted[k]]
			HL += b.h[sorted[k]]
			nL := k + 1
			if nL < b.p.MinLeaf || len(sorted)-nL < b.p.MinLeaf {
				continue
			}
			lo, hi := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			s := score(GL, HL, b.p.Lambda) + score(G-GL, H-HL, b.p.Lambda)
			if s > best {
				mid := lo + (hi-lo)/2
				if mid >= hi {
					mid = lo
				}
				best, feat, thr, ok = s, f, mid, true
			}
		}
	}
	return feat, thr, ok
}

func score(G, H, lambda float64) float64 {
	if H+lambda == 0 {
		return 0
	}
	return G * G / (H + lambda)
}
