package gbtree

import "math"

// Node is a tree node. Leaves have Left == Right == -1.
type Node struct {
	Feature     int
	Threshold   float64 // values < Threshold go left
	Left        int
	Right       int
	DefaultLeft bool    // branch for missing (NaN) values
	Value       float64 // leaf output, learning rate applied
	Gain        float64
	Cover       float64 // hessian sum of training rows reaching the node
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a single regression tree stored as a flat node slice; node 0 is the root.
type Tree struct {
	Nodes []Node
}

// Predict returns the leaf value reached by x.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		i = n.next(x[n.Feature])
	}
}

func (n *Node) next(v float64) int {
	switch {
	case math.IsNaN(v):
		if n.DefaultLeft {
			return n.Left
		}
		return n.Right
	case v < n.Threshold:
		return n.Left
	default:
		return n.Right
	}
}

// Depth returns the maximum depth of the tree (a single leaf has depth 0).
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// NumLeaves returns the number of leaves.
func (t *Tree) NumLeaves() int {
	count := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			count++
		}
	}
	return count
}
