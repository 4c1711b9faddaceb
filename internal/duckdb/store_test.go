package duckdb

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellis-anderson/evf/internal/features"
	"github.com/ellis-anderson/evf/internal/filter"
	"github.com/ellis-anderson/evf/internal/train"
	"github.com/ellis-anderson/evf/internal/vcf"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
	assert.Equal(t, "", s.Path())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AddRun(Run{ID: "r1", Kind: RunTrain, CreatedAt: time.Now()}))
	require.NoError(t, s.Close())

	// Reopening keeps existing rows.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)
}

func TestRuns(t *testing.T) {
	s := openInMemory(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddRun(Run{ID: "t1", Kind: RunTrain, CreatedAt: base, Description: "SNP"}))
	require.NoError(t, s.AddRun(Run{ID: "f1", Kind: RunFilter, CreatedAt: base.Add(time.Minute), Description: "calls.vcf"}))
	require.NoError(t, s.AddRun(Run{ID: "f2", Kind: RunFilter, CreatedAt: base.Add(2 * time.Minute)}))

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "t1", runs[0].ID)
	assert.Equal(t, RunTrain, runs[0].Kind)
	assert.Equal(t, "SNP", runs[0].Description)
	assert.True(t, base.Equal(runs[0].CreatedAt))

	latest, err := s.LatestRun(RunFilter)
	require.NoError(t, err)
	assert.Equal(t, "f2", latest)

	latest, err = s.LatestRun("missing")
	require.NoError(t, err)
	assert.Equal(t, "", latest)

	// Duplicate run ids are rejected.
	assert.Error(t, s.AddRun(Run{ID: "t1", Kind: RunTrain, CreatedAt: base}))
}

func TestWriteTrainingRows(t *testing.T) {
	s := openInMemory(t)

	var v1, v2 features.Vector
	v1[features.QD] = 30
	v1[features.RefFraction] = math.NaN()
	v2[features.QD] = 1

	tables := []*train.Table{
		{Source: "tp.vcf", Label: 1, Rows: []features.Vector{v1, v1, v1}},
		{Source: "fp.vcf", Label: 0, Rows: []features.Vector{v2}},
	}
	require.NoError(t, s.WriteTables("run-1", tables))
	require.NoError(t, s.WriteTrainingRows("run-2", []TrainingRow{{Source: "x", Label: 0, Features: v2}}))
	require.NoError(t, s.WriteTrainingRows("run-3", nil))

	sum, err := s.TrainingSummary("run-1")
	require.NoError(t, err)
	assert.Equal(t, []LabelSummary{{Label: 0, Rows: 1}, {Label: 1, Rows: 3}}, sum)

	var qd float64
	var source string
	require.NoError(t, s.DB().QueryRow(
		`SELECT source, qd FROM training_rows WHERE run_id = 'run-1' AND label = 0`).Scan(&source, &qd))
	assert.Equal(t, "fp.vcf", source)
	assert.Equal(t, 1.0, qd)

	sum, err = s.TrainingSummary("run-3")
	require.NoError(t, err)
	assert.Empty(t, sum)
}

func TestFilterResults(t *testing.T) {
	s := openInMemory(t)

	results := []FilterResult{
		{Chrom: "chr1", Pos: 100, Ref: "A", Alt: "G", Class: vcf.ClassSNP, Probability: 0.9, Prediction: 1, Filter: filter.FilterPass},
		{Chrom: "chr1", Pos: 200, Ref: "C", Alt: "T", Class: vcf.ClassSNP, Probability: 0.2, Prediction: 0, Filter: filter.FilterSNP},
		{Chrom: "chr2", Pos: 300, Ref: "AT", Alt: "A", Class: vcf.ClassIndel, Probability: 0.1, Prediction: 0, Filter: filter.FilterIndel},
	}
	require.NoError(t, s.WriteFilterResults("f1", results))
	require.NoError(t, s.WriteFilterResults("f2", results[:1]))

	sum, err := s.FilterSummary("f1")
	require.NoError(t, err)
	assert.Equal(t, []ClassSummary{
		{Class: "INDEL", Total: 1, Filtered: 1},
		{Class: "SNP", Total: 2, Filtered: 1},
	}, sum)

	sum, err = s.FilterSummary("f2")
	require.NoError(t, err)
	assert.Equal(t, []ClassSummary{{Class: "SNP", Total: 1, Filtered: 0}}, sum)
}

func TestFilterLog(t *testing.T) {
	s := openInMemory(t)
	log := s.NewFilterLog("f1", 2)

	var _ filter.Sink = log

	variants := []*vcf.Variant{
		{Chrom: "chr1", Pos: 1, Ref: "A", Alt: "G"},
		{Chrom: "chr1", Pos: 2, Ref: "A", Alt: "G"},
		{Chrom: "chr1", Pos: 3, Ref: "AT", Alt: "A"},
	}
	decisions := []filter.Decision{
		{Class: vcf.ClassSNP, Probability: 0.8, Prediction: 1, Filter: filter.FilterPass},
		{Class: vcf.ClassSNP, Probability: 0.3, Prediction: 0, Filter: filter.FilterSNP},
		{Class: vcf.ClassIndel, Probability: 0.6, Prediction: 1, Filter: filter.FilterPass},
	}
	for i := range variants {
		require.NoError(t, log.Record(variants[i], decisions[i]))
	}

	count := func() int {
		var n int
		require.NoError(t, s.DB().QueryRow(`SELECT count(*) FROM filter_results`).Scan(&n))
		return n
	}
	assert.Equal(t, 2, count(), "full batch is written")

	require.NoError(t, log.Flush())
	assert.Equal(t, 3, count())

	require.NoError(t, log.Flush())
	assert.Equal(t, 3, count(), "empty flush writes nothing")

	var filt string
	var prob float64
	require.NoError(t, s.DB().QueryRow(
		`SELECT filter, probability FROM filter_results WHERE pos = 2`).Scan(&filt, &prob))
	assert.Equal(t, filter.FilterSNP, filt)
	assert.InDelta(t, 0.3, prob, 1e-12)
}

func TestFilterLog_DefaultBatch(t *testing.T) {
	s := openInMemory(t)
	log := s.NewFilterLog("f1", 0)
	assert.Equal(t, 10000, log.batchSize)
}
