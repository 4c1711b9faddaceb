package gbtree

import (
	"fmt"
	"time"
)

// Model is a fitted boosted-tree classifier.
type Model struct {
	Params       Params
	BaseScore    float64
	NumFeatures  int
	FeatureNames []string
	Trees        []Tree
	Meta         Metadata
}

// Metadata records where a model came from.
type Metadata struct {
	RunID     string
	Name      string // e.g. the variant class the model scores
	CreatedAt time.Time
	Rows      int
	Positives int
	Sources   []Source
}

// Source is a training input file.
type Source struct {
	Path    string
	Label   int
	Size    int64
	ModTime time.Time
}

// Margin returns the raw (log-odds) score of x.
func (m *Model) Margin(x []float64) float64 {
	sum := logit(m.BaseScore)
	for i := range m.Trees {
		sum += m.Trees[i].Predict(x)
	}
	return sum
}

// PredictProba returns the probability that x belongs to class 1.
func (m *Model) PredictProba(x []float64) float64 {
	return sigmoid(m.Margin(x))
}

// Predict returns 1 when PredictProba(x) > 0.5, else 0.
func (m *Model) Predict(x []float64) int {
	if m.PredictProba(x) > 0.5 {
		return 1
	}
	return 0
}

// Validate checks that the model is usable for vectors of width nf.
func (m *Model) Validate(nf int) error {
	if m.NumFeatures != nf {
		return fmt.Errorf("model expects %d features, got %d", m.NumFeatures, nf)
	}
	if m.BaseScore <= 0 || m.BaseScore >= 1 {
		return fmt.Errorf("model base score %g out of range", m.BaseScore)
	}
	for ti := range m.Trees {
		nodes := m.Trees[ti].Nodes
		if len(nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range nodes {
			if n.IsLeaf() {
				continue
			}
			if n.Feature < 0 || n.Feature >= nf {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(nodes) || n.Right >= len(nodes) {
				return fmt.Errorf("tree %d node %d: invalid children", ti, ni)
			}
		}
	}
	return nil
}
