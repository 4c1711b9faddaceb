// Package gbtree implements gradient-boosted decision trees for binary
// classification with a logistic objective.
//
// Trees are grown depth-wise with an exact greedy split search over
// pre-sorted feature columns. NaN feature values are treated as missing and
// sent down a default branch learned at training time.
package gbtree

import (
	"errors"
	"fmt"
)

// Params configures training.
type Params struct {
	NumTrees       int     // number of boosting rounds
	LearningRate   float64 // shrinkage applied to each leaf weight
	MaxDepth       int     // maximum tree depth
	MinChildWeight float64 // minimum hessian sum in a child
	Lambda         float64 // L2 regularization on leaf weights
	Gamma          float64 // minimum loss reduction to split, on the XGBoost gain scale
	Subsample      float64 // row sampling ratio per tree
	ColSample      float64 // feature sampling ratio per tree
	BaseScore      float64 // initial prediction probability
	Seed           uint64
	Threads        int // concurrent split searches; <= 0 means 1
}

// DefaultParams returns the usual boosted-tree defaults.
func DefaultParams() Params {
	return Params{
		NumTrees:       100,
		LearningRate:   0.3,
		MaxDepth:       6,
		MinChildWeight: 1,
		Lambda:         1,
		Gamma:          0,
		Subsample:      1,
		ColSample:      1,
		BaseScore:      0.5,
		Threads:        1,
	}
}

// ErrInvalidParams is wrapped by Validate errors.
var ErrInvalidParams = errors.New("invalid parameters")

// Validate checks parameter ranges.
func (p Params) Validate() error {
	switch {
	case p.NumTrees < 0:
		return fmt.Errorf("%w: NumTrees must be >= 0, got %d", ErrInvalidParams, p.NumTrees)
	case p.LearningRate <= 0:
		return fmt.Errorf("%w: LearningRate must be > 0, got %g", ErrInvalidParams, p.LearningRate)
	case p.MaxDepth < 1:
		return fmt.Errorf("%w: MaxDepth must be >= 1, got %d", ErrInvalidParams, p.MaxDepth)
	case p.MinChildWeight < 0:
		return fmt.Errorf("%w: MinChildWeight must be >= 0, got %g", ErrInvalidParams, p.MinChildWeight)
	case p.Lambda < 0:
		return fmt.Errorf("%w: Lambda must be >= 0, got %g", ErrInvalidParams, p.Lambda)
	case p.Gamma < 0:
		return fmt.Errorf("%w: Gamma must be >= 0, got %g", ErrInvalidParams, p.Gamma)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("%w: Subsample must be in (0, 1], got %g", ErrInvalidParams, p.Subsample)
	case p.ColSample <= 0 || p.ColSample > 1:
		return fmt.Errorf("%w: ColSample must be in (0, 1], got %g", ErrInvalidParams, p.ColSample)
	case p.BaseScore <= 0 || p.BaseScore >= 1:
		return fmt.Errorf("%w: BaseScore must be in (0, 1), got %g", ErrInvalidParams, p.BaseScore)
	}
	return nil
}

// String describes the configuration in one line.
func (p Params) String() string {
	return fmt.Sprintf("gbtree(trees=%d, eta=%g, depth=%d, seed=%d)",
		p.NumTrees, p.LearningRate, p.MaxDepth, p.Seed)
}
