package gbtree

import (
	"strconv"
	"time"

	"github.com/Jeffail/gabs"
)

// DumpJSON renders the model as indented JSON: metadata, parameters, and
// every tree as nested nodes in the usual boosted-tree dump layout
// (nodeid, depth, split, split_condition, yes, no, missing, children, leaf).
func (m *Model) DumpJSON() string {
	root := gabs.New()

	root.Set(m.Meta.RunID, "meta", "run_id")
	root.Set(m.Meta.Name, "meta", "name")
	root.Set(m.Meta.CreatedAt.UTC().Format(time.RFC3339), "meta", "created_at")
	root.Set(m.Meta.Rows, "meta", "rows")
	root.Set(m.Meta.Positives, "meta", "positives")
	root.Array("meta", "sources")
	for _, s := range m.Meta.Sources {
		src := gabs.New()
		src.Set(s.Path, "path")
		src.Set(s.Label, "label")
		src.Set(s.Size, "size")
		src.Set(s.ModTime.UTC().Format(time.RFC3339), "modtime")
		root.ArrayAppend(src.Data(), "meta", "sources")
	}

	root.Set(m.Params.NumTrees, "params", "num_trees")
	root.Set(m.Params.LearningRate, "params", "learning_rate")
	root.Set(m.Params.MaxDepth, "params", "max_depth")
	root.Set(m.Params.Lambda, "params", "lambda")
	root.Set(m.Params.Gamma, "params", "gamma")
	root.Set(m.Params.MinChildWeight, "params", "min_child_weight")
	root.Set(m.Params.Seed, "params", "seed")
	root.Set(m.BaseScore, "base_score")
	root.Set(m.NumFeatures, "num_features")
	root.Set(m.FeatureNames, "feature_names")

	root.Array("trees")
	for i := range m.Trees {
		root.ArrayAppend(m.dumpNode(&m.Trees[i], 0, 0).Data(), "trees")
	}

	return root.StringIndent("", "  ")
}

func (m *Model) dumpNode(t *Tree, id, depth int) *gabs.Container {
	n := &t.Nodes[id]
	c := gabs.New()
	c.Set(id, "nodeid")

	if n.IsLeaf() {
		c.Set(n.Value, "leaf")
		c.Set(n.Cover, "cover")
		return c
	}

	missing := n.Right
	if n.DefaultLeft {
		missing = n.Left
	}

	c.Set(depth, "depth")
	c.Set(m.featureName(n.Feature), "split")
	c.Set(n.Threshold, "split_condition")
	c.Set(n.Left, "yes")
	c.Set(n.Right, "no")
	c.Set(missing, "missing")
	c.Set(n.Gain, "gain")
	c.Set(n.Cover, "cover")
	c.ArrayAppend(m.dumpNode(t, n.Left, depth+1).Data(), "children")
	c.ArrayAppend(m.dumpNode(t, n.Right, depth+1).Data(), "children")
	return c
}

func (m *Model) featureName(f int) string {
	if f < len(m.FeatureNames) {
		return m.FeatureNames[f]
	}
	return "f" + strconv.Itoa(f)
}
