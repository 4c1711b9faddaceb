package gbtree

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// minGain is the smallest gain accepted for a split.
const minGain = 1e-6

// ErrEmptyDataset is returned when there is nothing to train on.
var ErrEmptyDataset = errors.New("empty training dataset")

// Trainer fits boosted-tree models.
type Trainer struct {
	params Params
	logger *zap.Logger
}

// NewTrainer creates a trainer with the given parameters.
func NewTrainer(p Params) *Trainer {
	return &Trainer{
		params: p,
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for progress messages.
func (t *Trainer) SetLogger(l *zap.Logger) {
	t.logger = l
}

// Train fits a model with default logging. See Trainer.Fit.
func Train(ctx context.Context, X [][]float64, y []int, p Params) (*Model, error) {
	return NewTrainer(p).Fit(ctx, X, y)
}

// Fit trains a model on rows X with binary labels y (0 or 1).
// The result depends only on the data and Params, never on Params.Threads.
func (t *Trainer) Fit(ctx context.Context, X [][]float64, y []int) (*Model, error) {
	p := t.params
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("row count %d does not match label count %d", len(X), len(y))
	}

	nf := len(X[0])
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), nf)
		}
	}
	labels := make([]float64, len(y))
	for i, l := range y {
		if l != 0 && l != 1 {
			return nil, fmt.Errorf("row %d: label must be 0 or 1, got %d", i, l)
		}
		labels[i] = float64(l)
	}

	b := newBuilder(X, labels, p)

	m := &Model{
		Params:      p,
		BaseScore:   p.BaseScore,
		NumFeatures: nf,
		Trees:       make([]Tree, 0, p.NumTrees),
	}

	margin := make([]float64, len(X))
	base := logit(p.BaseScore)
	for i := range margin {
		margin[i] = base
	}

	for round := 0; round < p.NumTrees; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b.computeGradients(margin)
		tree, err := b.growTree(ctx)
		if err != nil {
			return nil, err
		}
		for i, row := range X {
			margin[i] += tree.Predict(row)
		}
		m.Trees = append(m.Trees, tree)

		if (round+1)%100 == 0 {
			t.logger.Debug("boosting progress",
				zap.Int("round", round+1),
				zap.Int("of", p.NumTrees),
				zap.Float64("logloss", logLoss(margin, labels)))
		}
	}

	return m, nil
}

// split is a candidate split of one node.
type split struct {
	valid       bool
	feature     int
	threshold   float64
	defaultLeft bool
	gain        float64
	gl, hl      float64
	gr, hr      float64
}

// nodeStat holds gradient sums of a node.
type nodeStat struct {
	g, h float64
}

// builder holds per-training state reused across rounds.
type builder struct {
	X      [][]float64
	y      []float64
	p      Params
	rng    *rand.Rand
	sorted [][]int32 // per feature: non-missing row indices ordered by value
	grad   []float64
	hess   []float64
	rowPos []int32 // node index of each sampled row in the tree being grown, -1 if unsampled
}

func newBuilder(X [][]float64, y []float64, p Params) *builder {
	nf := len(X[0])
	b := &builder{
		X:      X,
		y:      y,
		p:      p,
		rng:    rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15)),
		sorted: make([][]int32, nf),
		grad:   make([]float64, len(X)),
		hess:   make([]float64, len(X)),
		rowPos: make([]int32, len(X)),
	}

	for f := 0; f < nf; f++ {
		idx := make([]int32, 0, len(X))
		for i, row := range X {
			if !math.IsNaN(row[f]) {
				idx = append(idx, int32(i))
			}
		}
		slices.SortStableFunc(idx, func(a, c int32) int {
			return cmp.Compare(X[a][f], X[c][f])
		})
		b.sorted[f] = idx
	}
	return b
}

func (b *builder) computeGradients(margin []float64) {
	for i, m := range margin {
		pr := sigmoid(m)
		b.grad[i] = pr - b.y[i]
		b.hess[i] = math.Max(pr*(1-pr), 1e-16)
	}
}

// growTree builds one tree level by level.
func (b *builder) growTree(ctx context.Context) (Tree, error) {
	p := b.p

	var root nodeStat
	for i := range b.rowPos {
		if p.Subsample < 1 && b.rng.Float64() >= p.Subsample {
			b.rowPos[i] = -1
			continue
		}
		b.rowPos[i] = 0
		root.g += b.grad[i]
		root.h += b.hess[i]
	}

	features := b.sampleFeatures()

	tree := Tree{Nodes: []Node{{Left: -1, Right: -1, Cover: root.h}}}
	stats := []nodeStat{root}
	active := []int{0}

	for depth := 0; depth < p.MaxDepth && len(active) > 0; depth++ {
		splits, err := b.findSplits(ctx, active, stats, len(tree.Nodes), features)
		if err != nil {
			return Tree{}, err
		}

		var next []int
		for k, nid := range active {
			s := splits[k]
			if !s.valid || s.gain < p.Gamma {
				continue
			}

			left := len(tree.Nodes)
			right := left + 1
			tree.Nodes = append(tree.Nodes,
				Node{Left: -1, Right: -1, Cover: s.hl},
				Node{Left: -1, Right: -1, Cover: s.hr})
			stats = append(stats, nodeStat{s.gl, s.hl}, nodeStat{s.gr, s.hr})

			n := &tree.Nodes[nid]
			n.Feature = s.feature
			n.Threshold = s.threshold
			n.DefaultLeft = s.defaultLeft
			n.Gain = s.gain
			n.Left = left
			n.Right = right

			next = append(next, left, right)
		}

		for i, pos := range b.rowPos {
			if pos < 0 {
				continue
			}
			n := &tree.Nodes[pos]
			if n.IsLeaf() {
				continue
			}
			b.rowPos[i] = int32(n.next(b.X[i][n.Feature]))
		}

		active = next
	}

	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if n.IsLeaf() {
			st := stats[i]
			n.Value = p.LearningRate * leafWeight(st.g, st.h, p.Lambda)
		}
	}
	return tree, nil
}

// sampleFeatures returns the feature columns considered for the next tree,
// in ascending order.
func (b *builder) sampleFeatures() []int {
	nf := len(b.sorted)
	if b.p.ColSample >= 1 {
		all := make([]int, nf)
		for i := range all {
			all[i] = i
		}
		return all
	}
	k := max(1, int(b.p.ColSample*float64(nf)))
	picked := b.rng.Perm(nf)[:k]
	slices.Sort(picked)
	return picked
}

// findSplits searches the best split for every active node. Each feature is
// scanned by its own goroutine; results are merged in feature order.
func (b *builder) findSplits(ctx context.Context, active []int, stats []nodeStat, numNodes int, features []int) ([]split, error) {
	slot := make([]int, numNodes)
	for i := range slot {
		slot[i] = -1
	}
	for k, nid := range active {
		slot[nid] = k
	}

	perFeature := make([][]split, len(features))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, b.p.Threads))
	for fi, f := range features {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perFeature[fi] = b.scanFeature(f, active, stats, slot)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := make([]split, len(active))
	for _, res := range perFeature {
		for k, s := range res {
			if s.valid && (!best[k].valid || s.gain > best[k].gain) {
				best[k] = s
			}
		}
	}
	return best, nil
}

// scanFeature enumerates split points of feature f for all active nodes.
func (b *builder) scanFeature(f int, active []int, stats []nodeStat, slot []int) []split {
	n := len(active)
	present := make([]nodeStat, n)
	for _, row := range b.sorted[f] {
		pos := b.rowPos[row]
		if pos < 0 || slot[pos] < 0 {
			continue
		}
		k := slot[pos]
		present[k].g += b.grad[row]
		present[k].h += b.hess[row]
	}

	best := make([]split, n)
	acc := make([]nodeStat, n)
	last := make([]float64, n)
	seen := make([]bool, n)

	lambda := b.p.Lambda
	mcw := b.p.MinChildWeight

	for _, row := range b.sorted[f] {
		pos := b.rowPos[row]
		if pos < 0 || slot[pos] < 0 {
			continue
		}
		k := slot[pos]
		v := b.X[row][f]

		if seen[k] && v != last[k] {
			thr := (last[k] + v) / 2
			if thr <= last[k] {
				thr = v
			}

			total := stats[active[k]]
			missing := nodeStat{total.g - present[k].g, total.h - present[k].h}

			// Missing values to the right.
			gl, hl := acc[k].g, acc[k].h
			gr, hr := total.g-gl, total.h-hl
			if hl >= mcw && hr >= mcw {
				gain := splitGain(gl, hl, gr, hr, lambda)
				if gain > minGain && (!best[k].valid || gain > best[k].gain) {
					best[k] = split{true, f, thr, false, gain, gl, hl, gr, hr}
				}
			}

			// Missing values to the left.
			if missing.h > 0 {
				gl, hl = acc[k].g+missing.g, acc[k].h+missing.h
				gr, hr = total.g-gl, total.h-hl
				if hl >= mcw && hr >= mcw {
					gain := splitGain(gl, hl, gr, hr, lambda)
					if gain > minGain && (!best[k].valid || gain > best[k].gain) {
						best[k] = split{true, f, thr, true, gain, gl, hl, gr, hr}
					}
				}
			}
		}

		acc[k].g += b.grad[row]
		acc[k].h += b.hess[row]
		last[k] = v
		seen[k] = true
	}

	return best
}

// splitGain is the loss reduction of splitting a node into the given
// children, on the same scale as Params.Gamma.
func splitGain(gl, hl, gr, hr, lambda float64) float64 {
	g, h := gl+gr, hl+hr
	return 0.5 * (gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - g*g/(h+lambda))
}

func leafWeight(g, h, lambda float64) float64 {
	return -g / (h + lambda)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func logLoss(margin, y []float64) float64 {
	const eps = 1e-15
	var sum float64
	for i, m := range margin {
		pr := math.Min(math.Max(sigmoid(m), eps), 1-eps)
		sum -= y[i]*math.Log(pr) + (1-y[i])*math.Log(1-pr)
	}
	return sum / float64(len(margin))
}
