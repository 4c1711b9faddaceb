package train

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ellis-anderson/evf/internal/features"
	"github.com/ellis-anderson/evf/internal/gbtree"
	"github.com/ellis-anderson/evf/internal/vcf"
)

// Tree counts per variant class.
const (
	SNPTrees   = 600
	IndelTrees = 1000
)

// Seed is the random seed of every trained model.
const Seed = 7

// ParamsFor returns the boosting parameters used for a variant class.
func ParamsFor(class vcf.Class, threads int) gbtree.Params {
	p := gbtree.DefaultParams()
	p.NumTrees = SNPTrees
	if class == vcf.ClassIndel {
		p.NumTrees = IndelTrees
	}
	p.LearningRate = 0.3
	p.MaxDepth = 6
	p.Seed = Seed
	p.Threads = max(1, threads)
	return p
}

// DefaultModelName returns the model file name used when none is given.
func DefaultModelName(class vcf.Class) string {
	return string(class) + ".filter.model"
}

// Options configures a training run.
type Options struct {
	TruePos  string // comma-separated true-positive call sets
	FalsePos string // comma-separated false-positive call sets, paired by position
	Class    vcf.Class
	Workers  int

	// SelectClass keeps only records of Class in the training tables.
	SelectClass bool

	// Params overrides ParamsFor(Class, Workers) when set.
	Params *gbtree.Params

	// RunID is stored in the model; a new UUID is generated when empty.
	RunID string

	// OnTables, if set, receives the tables before fitting.
	OnTables func(runID string, tables []*Table) error
}

// Trainer turns labeled call sets into a model.
type Trainer struct {
	logger *zap.Logger
}

// NewTrainer creates a trainer.
func NewTrainer() *Trainer {
	return &Trainer{logger: zap.NewNop()}
}

// SetLogger sets the logger for progress messages.
func (t *Trainer) SetLogger(l *zap.Logger) {
	t.logger = l
}

// Train pairs the inputs, builds their tables, and fits a model.
func (t *Trainer) Train(ctx context.Context, opts Options) (*gbtree.Model, error) {
	if opts.Class != vcf.ClassSNP && opts.Class != vcf.ClassIndel {
		return nil, vcf.ErrInvalidClass
	}

	pairs, err := PairPaths(opts.TruePos, opts.FalsePos)
	if err != nil {
		return nil, err
	}
	sources, err := modelSources(pairs)
	if err != nil {
		return nil, fmt.Errorf("fingerprint inputs: %w", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	b := &TableBuilder{
		OnPair: func(p Pair) {
			t.logger.Debug("reading pair", zap.String("true_pos", p.TruePos), zap.String("false_pos", p.FalsePos))
		},
	}
	if opts.SelectClass {
		b.Select = opts.Class
	}

	start := time.Now()
	tables, err := b.BuildTables(ctx, pairs, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("build training tables: %w", err)
	}
	for _, tb := range tables {
		t.logger.Info("read training table",
			zap.String("source", tb.Source),
			zap.Int("label", tb.Label),
			zap.Int("rows", len(tb.Rows)),
			zap.Int("skipped", tb.Skipped))
	}

	if opts.OnTables != nil {
		if err := opts.OnTables(runID, tables); err != nil {
			return nil, err
		}
	}

	X, y := Dataset(tables)
	positives := 0
	for _, l := range y {
		positives += l
	}
	if positives == 0 || positives == len(y) {
		if len(y) == 0 {
			return nil, gbtree.ErrEmptyDataset
		}
		return nil, errors.New("training data needs both true and false positives")
	}

	params := ParamsFor(opts.Class, opts.Workers)
	if opts.Params != nil {
		params = *opts.Params
	}

	t.logger.Info("fitting model",
		zap.String("class", string(opts.Class)),
		zap.Int("rows", len(y)),
		zap.Int("positives", positives),
		zap.Stringer("params", params))

	gt := gbtree.NewTrainer(params)
	gt.SetLogger(t.logger)
	model, err := gt.Fit(ctx, X, y)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}

	model.FeatureNames = slices.Clone(features.Names[:])
	model.Meta = gbtree.Metadata{
		RunID:     runID,
		Name:      string(opts.Class),
		CreatedAt: time.Now().UTC(),
		Rows:      len(y),
		Positives: positives,
		Sources:   sources,
	}

	t.logger.Info("training complete",
		zap.String("run_id", runID),
		zap.Int("trees", len(model.Trees)),
		zap.Duration("elapsed", time.Since(start)))
	return model, nil
}
