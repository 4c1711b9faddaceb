// Package train builds labeled feature tables from true-positive and
// false-positive call sets and fits boosted-tree models on them.
package train

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Pair is a true-positive and a false-positive call set trained together.
type Pair struct {
	TruePos  string
	FalsePos string
}

// ErrPairMismatch is returned when the two path lists differ in length.
var ErrPairMismatch = errors.New("true-positive and false-positive lists differ in length")

// PairPaths splits two comma-separated path lists and pairs them by position.
// Every path must exist.
func PairPaths(truePos, falsePos string) ([]Pair, error) {
	tps, err := splitPaths(truePos)
	if err != nil {
		return nil, fmt.Errorf("true-positive paths: %w", err)
	}
	fps, err := splitPaths(falsePos)
	if err != nil {
		return nil, fmt.Errorf("false-positive paths: %w", err)
	}
	if len(tps) != len(fps) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrPairMismatch, len(tps), len(fps))
	}

	pairs := make([]Pair, len(tps))
	for i := range tps {
		pairs[i] = Pair{TruePos: tps[i], FalsePos: fps[i]}
	}
	return pairs, nil
}

func splitPaths(list string) ([]string, error) {
	if strings.TrimSpace(list) == "" {
		return nil, errors.New("no paths given")
	}

	var paths []string
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty path in %q", list)
		}
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
