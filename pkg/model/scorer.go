package model

import (
	"fmt"
)

// Scorer kinds
const (
	ScorerLinear = "linear"
	ScorerForest = "forest"
)

// Scorer predicts popularity for a normalized record. The caller clamps.
type Scorer interface {
	Predict(x ModelInput) (float64, error)
}

// LinearScorer is intercept + coefficients·x
type LinearScorer struct {
	Intercept    float64
	Coefficients [NumColumns]float64
}

// NewLinearScorer checks the coefficient count against the column order
func NewLinearScorer(intercept float64, coefficients []float64) (*LinearScorer, error) {
	if len(coefficients) != NumColumns {
		return nil, fmt.Errorf("linear scorer needs %d coefficients, got %d", NumColumns, len(coefficients))
	}
	s := &LinearScorer{Intercept: intercept}
	copy(s.Coefficients[:], coefficients)
	return s, nil
}

func (s *LinearScorer) Predict(x ModelInput) (float64, error) {
	y := s.Intercept
	for i, c := range s.Coefficients {
		y += c * x[i]
	}
	return y, nil
}

// Tree is a binary regression tree in flattened array form. A node whose
// left child is -1 is a leaf; otherwise samples with
// x[Feature] <= Threshold go left.
type Tree struct {
	ChildrenLeft  []int     `yaml:"children_left" json:"children_left"`
	ChildrenRight []int     `yaml:"children_right" json:"children_right"`
	Feature       []int     `yaml:"feature" json:"feature"`
	Threshold     []float64 `yaml:"threshold" json:"threshold"`
	Value         []float64 `yaml:"value" json:"value"`
}

const leaf = -1

func (t *Tree) validate() error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays disagree on node count %d", n)
	}
	for i := 0; i < n; i++ {
		if t.ChildrenLeft[i] == leaf {
			continue
		}
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		// children always come after their parent, so traversal terminates
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d has invalid children %d, %d", i, l, r)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= NumColumns {
			return fmt.Errorf("node %d splits on unknown feature %d", i, t.Feature[i])
		}
	}
	return nil
}

func (t *Tree) predict(x ModelInput) float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// ForestScorer averages the predictions of its trees
type ForestScorer struct {
	trees []Tree
}

// NewForestScorer validates every tree up front so Predict never indexes
// out of range
func NewForestScorer(trees []Tree) (*ForestScorer, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("forest scorer needs at least one tree")
	}
	for i := range trees {
		if err := trees[i].validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &ForestScorer{trees: trees}, nil
}

func (s *ForestScorer) Predict(x ModelInput) (float64, error) {
	sum := 0.0
	for i := range s.trees {
		sum += s.trees[i].predict(x)
	}
	return sum / float64(len(s.trees)), nil
}

// Trees reports the forest size
func (s *ForestScorer) Trees() int {
	return len(s.trees)
}
