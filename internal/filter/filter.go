// Package filter scores VCF records with SNP and indel models and rewrites
// their FILTER column.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ellis-anderson/evf/internal/features"
	"github.com/ellis-anderson/evf/internal/gbtree"
	"github.com/ellis-anderson/evf/internal/vcf"
)

// FILTER values written by the filter.
const (
	FilterSNP   = "XGB_SNP"
	FilterIndel = "XGB_IND"
	FilterPass  = "."
)

// DefaultThreshold is the probability above which a record is kept.
const DefaultThreshold = 0.5

// HeaderLines declares the FILTER values in the output header.
var HeaderLines = []string{
	`##FILTER=<ID=XGB_SNP,Description="Likely FP SNP as determined by loaded model">`,
	`##FILTER=<ID=XGB_IND,Description="Likely FP InDel as determined by loaded model">`,
}

// Predictor scores a feature vector with the probability of a true positive.
type Predictor interface {
	PredictProba(x []float64) float64
}

// Decision is the outcome for one record.
type Decision struct {
	Class       vcf.Class
	Probability float64 // probability of a true positive
	Prediction  int     // 1 true positive, 0 false positive
	Filter      string
}

// Sink receives every decision made by Apply.
type Sink interface {
	Record(v *vcf.Variant, d Decision) error
	Flush() error
}

// Stats summarizes an Apply run.
type Stats struct {
	Records        int
	SNPs           int
	Indels         int
	FilteredSNPs   int
	FilteredIndels int
}

// Filtered returns the number of records marked as likely false positives.
func (s Stats) Filtered() int {
	return s.FilteredSNPs + s.FilteredIndels
}

// Filter applies a SNP model and an indel model to records.
type Filter struct {
	snp       Predictor
	indel     Predictor
	threshold float64
	sinks     []Sink
	logger    *zap.Logger
}

// New creates a filter from two predictors.
func New(snp, indel Predictor) *Filter {
	return &Filter{
		snp:       snp,
		indel:     indel,
		threshold: DefaultThreshold,
		logger:    zap.NewNop(),
	}
}

// Load reads the SNP and indel models from disk.
func Load(snpPath, indelPath string) (*Filter, error) {
	snp, err := loadModel(snpPath)
	if err != nil {
		return nil, err
	}
	indel, err := loadModel(indelPath)
	if err != nil {
		return nil, err
	}
	return New(snp, indel), nil
}

func loadModel(path string) (*gbtree.Model, error) {
	m, err := gbtree.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(features.NumFeatures); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return m, nil
}

// SetThreshold sets the probability above which a record is predicted true positive.
func (f *Filter) SetThreshold(t float64) {
	f.threshold = t
}

// SetLogger sets the logger for progress messages.
func (f *Filter) SetLogger(l *zap.Logger) {
	f.logger = l
}

// AddSink registers a receiver for every decision.
func (f *Filter) AddSink(s Sink) {
	f.sinks = append(f.sinks, s)
}

// Classify scores a single record with the model for its class.
func (f *Filter) Classify(v *vcf.Variant) (Decision, error) {
	vec, err := features.Extract(v)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Class: v.Class()}
	model := f.snp
	if d.Class == vcf.ClassIndel {
		model = f.indel
	}

	d.Probability = model.PredictProba(vec[:])
	if d.Probability > f.threshold {
		d.Prediction = 1
	}
	d.Filter = FilterFor(d.Class, d.Prediction)
	return d, nil
}

// FilterFor returns the FILTER value for a class and prediction.
func FilterFor(class vcf.Class, prediction int) string {
	if prediction != 0 {
		return FilterPass
	}
	if class == vcf.ClassSNP {
		return FilterSNP
	}
	return FilterIndel
}

// Apply writes the header with FILTER declarations, then every record with
// its FILTER column replaced by the decision. No other column is changed.
func (f *Filter) Apply(p vcf.VariantParser, w vcf.VariantWriter) (Stats, error) {
	var stats Stats

	if err := w.WriteHeader(vcf.InjectFilterLines(p.Header(), HeaderLines)); err != nil {
		return stats, fmt.Errorf("write header: %w", err)
	}

	for {
		v, err := p.Next()
		if err != nil {
			return stats, fmt.Errorf("read variant: %w", err)
		}
		if v == nil {
			break
		}

		d, err := f.Classify(v)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", p.LineNumber(), err)
		}
		stats.add(d)

		v.Filter = d.Filter
		if err := w.Write(v); err != nil {
			return stats, fmt.Errorf("write variant: %w", err)
		}
		for _, s := range f.sinks {
			if err := s.Record(v, d); err != nil {
				return stats, fmt.Errorf("record decision: %w", err)
			}
		}
	}

	for _, s := range f.sinks {
		if err := s.Flush(); err != nil {
			return stats, fmt.Errorf("flush decisions: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("flush output: %w", err)
	}

	f.logger.Info("filtered variants",
		zap.Int("records", stats.Records),
		zap.Int("snps", stats.SNPs),
		zap.Int("indels", stats.Indels),
		zap.Int("filtered_snps", stats.FilteredSNPs),
		zap.Int("filtered_indels", stats.FilteredIndels))

	return stats, nil
}

func (s *Stats) add(d Decision) {
	s.Records++
	filtered := d.Prediction == 0
	if d.Class == vcf.ClassSNP {
		s.SNPs++
		if filtered {
			s.FilteredSNPs++
		}
		return
	}
	s.Indels++
	if filtered {
		s.FilteredIndels++
	}
}

// OutputName returns the default output file name for an input path:
// the base name with its last extension replaced by ".filter.vcf".
func OutputName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + ".filter.vcf"
}
