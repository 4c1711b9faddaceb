package train

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellis-anderson/evf/internal/features"
	"github.com/ellis-anderson/evf/internal/gbtree"
	"github.com/ellis-anderson/evf/internal/vcf"
)

const testHeader = "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tSAMPLE\n"

func record(pos int, ref, alt string, qd float64) string {
	return fmt.Sprintf("chr1\t%d\t.\t%s\t%s\t50\tPASS\tQD=%g;MQ=60;FS=1;SOR=1\tGT:AD\t0/1:10,%d\n",
		pos, ref, alt, qd, pos%7)
}

func writeVCF(t *testing.T, dir, name string, records ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := testHeader + strings.Join(records, "")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// callSets writes a true-positive set with high QD and a false-positive set
// with low QD.
func callSets(t *testing.T, dir, prefix string, n int) (tp, fp string) {
	t.Helper()
	var tps, fps []string
	for i := 0; i < n; i++ {
		tps = append(tps, record(1000+i, "A", "G", float64(20+i)))
		fps = append(fps, record(2000+i, "C", "T", float64(i)/2))
	}
	tps = append(tps, record(3000, "AT", "A", 25))
	fps = append(fps, record(4000, "G", "GCC", 1))
	return writeVCF(t, dir, prefix+".tp.vcf", tps...), writeVCF(t, dir, prefix+".fp.vcf", fps...)
}

func TestPairPaths(t *testing.T) {
	dir := t.TempDir()
	a := writeVCF(t, dir, "a.vcf")
	b := writeVCF(t, dir, "b.vcf")
	c := writeVCF(t, dir, "c.vcf")
	d := writeVCF(t, dir, "d.vcf")

	pairs, err := PairPaths(a+", "+b, c+","+d)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{a, c}, {b, d}}, pairs)

	t.Run("count mismatch", func(t *testing.T) {
		_, err := PairPaths(a+","+b, c)
		assert.ErrorIs(t, err, ErrPairMismatch)
	})
	t.Run("empty entry", func(t *testing.T) {
		_, err := PairPaths(a+",,"+b, c+","+d)
		assert.Error(t, err)
	})
	t.Run("empty list", func(t *testing.T) {
		_, err := PairPaths("", c)
		assert.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := PairPaths(a, filepath.Join(dir, "nope.vcf"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestMakeTable(t *testing.T) {
	dir := t.TempDir()
	path := writeVCF(t, dir, "calls.vcf",
		record(1, "A", "G", 30),
		record(2, "AT", "A", 12),
		record(3, "C", "T,CA", 4))

	b := &TableBuilder{}
	tb, err := b.MakeTable(path, LabelTruePositive)
	require.NoError(t, err)
	assert.Equal(t, path, tb.Source)
	assert.Equal(t, LabelTruePositive, tb.Label)
	require.Len(t, tb.Rows, 3)
	assert.Equal(t, 30.0, tb.Rows[0][features.QD])
	assert.Equal(t, 12.0, tb.Rows[1][features.QD])
	assert.Equal(t, 1.0, tb.Rows[0][features.Het])
	assert.Equal(t, 0, tb.Skipped)

	t.Run("select class", func(t *testing.T) {
		b := &TableBuilder{Select: vcf.ClassSNP}
		tb, err := b.MakeTable(path, LabelFalsePositive)
		require.NoError(t, err)
		assert.Len(t, tb.Rows, 2)
		assert.Equal(t, 1, tb.Skipped)
	})

	t.Run("bad info value", func(t *testing.T) {
		bad := writeVCF(t, dir, "bad.vcf",
			record(1, "A", "G", 30),
			"chr1\t2\t.\tA\tG\t50\tPASS\tQD=high\tGT:AD\t0/1:1,1\n")
		_, err := b.MakeTable(bad, LabelTruePositive)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad.vcf line 4")
		assert.Contains(t, err.Error(), "QD")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := b.MakeTable(filepath.Join(dir, "none.vcf"), LabelTruePositive)
		assert.Error(t, err)
	})
}

func TestDataset(t *testing.T) {
	var r1, r2, r3 features.Vector
	r1[features.QD] = 1
	r2[features.QD] = 2
	r3[features.QD] = 3

	X, y := Dataset([]*Table{
		{Label: 1, Rows: []features.Vector{r1, r2}},
		{Label: 0, Rows: []features.Vector{r3}},
		{Label: 1},
	})
	require.Len(t, X, 3)
	assert.Equal(t, []int{1, 1, 0}, y)
	assert.Equal(t, 3.0, X[2][features.QD])
	assert.Len(t, X[0], features.NumFeatures)
}

func TestBuildTables_Order(t *testing.T) {
	dir := t.TempDir()
	var pairs []Pair
	for i := 0; i < 5; i++ {
		tp, fp := callSets(t, dir, fmt.Sprintf("set%d", i), i+1)
		pairs = append(pairs, Pair{tp, fp})
	}

	b := &TableBuilder{}
	for _, workers := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			tables, err := b.BuildTables(context.Background(), pairs, workers)
			require.NoError(t, err)
			require.Len(t, tables, 2*len(pairs))
			for i, p := range pairs {
				assert.Equal(t, p.TruePos, tables[2*i].Source)
				assert.Equal(t, LabelTruePositive, tables[2*i].Label)
				assert.Equal(t, p.FalsePos, tables[2*i+1].Source)
				assert.Equal(t, LabelFalsePositive, tables[2*i+1].Label)
				assert.Len(t, tables[2*i].Rows, i+2)
			}
		})
	}
}

func TestBuildTables_Error(t *testing.T) {
	dir := t.TempDir()
	tp, fp := callSets(t, dir, "ok", 3)
	bad := writeVCF(t, dir, "bad.vcf", "chr1\tx\t.\tA\tG\t50\tPASS\tQD=1\tGT:AD\t0/1:1,1\n")

	b := &TableBuilder{}
	_, err := b.BuildTables(context.Background(), []Pair{{tp, fp}, {tp, bad}, {tp, fp}}, 2)
	require.Error(t, err)
	var perr *vcf.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestBuildTables_StopsAfterFailure(t *testing.T) {
	dir := t.TempDir()
	tp, fp := callSets(t, dir, "ok", 50)
	bad := writeVCF(t, dir, "bad.vcf", "chr1\tx\t.\tA\tG\t50\tPASS\tQD=1\tGT:AD\t0/1:1,1\n")

	pairs := []Pair{{tp, bad}}
	for i := 0; i < 40; i++ {
		pairs = append(pairs, Pair{tp, fp})
	}

	var read atomic.Int32
	b := &TableBuilder{OnPair: func(Pair) { read.Add(1) }}
	_, err := b.BuildTables(context.Background(), pairs, 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.Less(t, int(read.Load()), len(pairs)/2, "pairs after the failure are not read")
}

func TestBuildTables_Cancelled(t *testing.T) {
	dir := t.TempDir()
	tp, fp := callSets(t, dir, "ok", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &TableBuilder{}
	_, err := b.BuildTables(ctx, []Pair{{tp, fp}, {tp, fp}}, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrderedCollect(t *testing.T) {
	results := make(chan WorkResult, 4)
	results <- WorkResult{Seq: 2}
	results <- WorkResult{Seq: 0}
	results <- WorkResult{Seq: 3}
	results <- WorkResult{Seq: 1}
	close(results)

	var seqs []int
	err := OrderedCollect(results, func(r WorkResult) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, seqs)
}

func TestParamsFor(t *testing.T) {
	snp := ParamsFor(vcf.ClassSNP, 4)
	assert.Equal(t, 600, snp.NumTrees)
	assert.Equal(t, 0.3, snp.LearningRate)
	assert.Equal(t, 6, snp.MaxDepth)
	assert.Equal(t, uint64(7), snp.Seed)
	assert.Equal(t, 4, snp.Threads)
	require.NoError(t, snp.Validate())

	indel := ParamsFor(vcf.ClassIndel, 0)
	assert.Equal(t, 1000, indel.NumTrees)
	assert.Equal(t, 1, indel.Threads)
}

func TestDefaultModelName(t *testing.T) {
	assert.Equal(t, "SNP.filter.model", DefaultModelName(vcf.ClassSNP))
	assert.Equal(t, "INDEL.filter.model", DefaultModelName(vcf.ClassIndel))
}

func smallParams() *gbtree.Params {
	p := ParamsFor(vcf.ClassSNP, 1)
	p.NumTrees = 10
	return &p
}

func TestTrainer_Train(t *testing.T) {
	dir := t.TempDir()
	tp1, fp1 := callSets(t, dir, "a", 20)
	tp2, fp2 := callSets(t, dir, "b", 10)

	var seen []*Table
	opts := Options{
		TruePos:  tp1 + "," + tp2,
		FalsePos: fp1 + "," + fp2,
		Class:    vcf.ClassSNP,
		Workers:  2,
		Params:   smallParams(),
		RunID:    "run-1",
		OnTables: func(runID string, tables []*Table) error {
			assert.Equal(t, "run-1", runID)
			seen = tables
			return nil
		},
	}

	model, err := NewTrainer().Train(context.Background(), opts)
	require.NoError(t, err)
	assert.Len(t, seen, 4)
	assert.Len(t, model.Trees, 10)
	assert.Equal(t, features.NumFeatures, model.NumFeatures)
	assert.Equal(t, features.Names[:], model.FeatureNames)

	assert.Equal(t, "run-1", model.Meta.RunID)
	assert.Equal(t, "SNP", model.Meta.Name)
	assert.Equal(t, 64, model.Meta.Rows)
	assert.Equal(t, 32, model.Meta.Positives)
	require.Len(t, model.Meta.Sources, 4)
	assert.Equal(t, tp1, model.Meta.Sources[0].Path)
	assert.Equal(t, LabelTruePositive, model.Meta.Sources[0].Label)
	assert.Equal(t, fp1, model.Meta.Sources[1].Path)
	assert.Equal(t, LabelFalsePositive, model.Meta.Sources[1].Label)
	assert.Positive(t, model.Meta.Sources[0].Size)

	var hi, lo features.Vector
	hi[features.QD] = 30
	lo[features.QD] = 0.5
	assert.Equal(t, 1, model.Predict(hi[:]))
	assert.Equal(t, 0, model.Predict(lo[:]))
}

func TestTrainer_SelectClass(t *testing.T) {
	dir := t.TempDir()
	tp, fp := callSets(t, dir, "a", 10)

	model, err := NewTrainer().Train(context.Background(), Options{
		TruePos:     tp,
		FalsePos:    fp,
		Class:       vcf.ClassSNP,
		SelectClass: true,
		Params:      smallParams(),
	})
	require.NoError(t, err)
	assert.Equal(t, 20, model.Meta.Rows)
	assert.NotEmpty(t, model.Meta.RunID)
}

func TestTrainer_ReproducibleAcrossWorkers(t *testing.T) {
	dir := t.TempDir()
	tp1, fp1 := callSets(t, dir, "a", 15)
	tp2, fp2 := callSets(t, dir, "b", 8)

	fit := func(workers int) *gbtree.Model {
		p := smallParams()
		p.Threads = workers
		m, err := NewTrainer().Train(context.Background(), Options{
			TruePos:  tp1 + "," + tp2,
			FalsePos: fp1 + "," + fp2,
			Class:    vcf.ClassSNP,
			Workers:  workers,
			Params:   p,
		})
		require.NoError(t, err)
		return m
	}

	assert.Equal(t, fit(1).Trees, fit(4).Trees)
}

func TestTrainer_Errors(t *testing.T) {
	dir := t.TempDir()
	tp, fp := callSets(t, dir, "a", 5)
	empty := writeVCF(t, dir, "empty.vcf")

	tests := []struct {
		name string
		opts Options
	}{
		{"invalid class", Options{TruePos: tp, FalsePos: fp, Class: "MNP"}},
		{"unpaired", Options{TruePos: tp + "," + tp, FalsePos: fp, Class: vcf.ClassSNP}},
		{"only positives", Options{TruePos: tp, FalsePos: empty, Class: vcf.ClassSNP}},
		{"no rows", Options{TruePos: empty, FalsePos: empty, Class: vcf.ClassSNP}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Params = smallParams()
			_, err := NewTrainer().Train(context.Background(), tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestTrainer_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tp, fp := callSets(t, dir, "a", 10)

	model, err := NewTrainer().Train(context.Background(), Options{
		TruePos: tp, FalsePos: fp, Class: vcf.ClassIndel, Params: smallParams(),
	})
	require.NoError(t, err)

	path := filepath.Join(dir, "out", DefaultModelName(vcf.ClassIndel))
	require.NoError(t, model.SaveFile(path))

	loaded, err := gbtree.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, model.Meta.RunID, loaded.Meta.RunID)
	assert.Equal(t, "INDEL", loaded.Meta.Name)
	assert.Len(t, loaded.Trees, len(model.Trees))
}

func TestStatFile(t *testing.T) {
	dir := t.TempDir()
	path := writeVCF(t, dir, "a.vcf", record(1, "A", "G", 1))

	fp, err := StatFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, fp.Path)
	assert.Equal(t, int64(len(testHeader)+len(record(1, "A", "G", 1))), fp.Size)
	assert.False(t, fp.ModTime.IsZero())

	_, err = StatFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
