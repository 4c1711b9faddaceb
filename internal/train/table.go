package train

import (
	"fmt"

	"github.com/ellis-anderson/evf/internal/features"
	"github.com/ellis-anderson/evf/internal/vcf"
)

// Labels.
const (
	LabelFalsePositive = 0
	LabelTruePositive  = 1
)

// Table holds the feature vectors of one call set, all with the same label.
type Table struct {
	Source  string
	Label   int
	Rows    []features.Vector
	Skipped int // records dropped by class selection
}

// TableBuilder reads call sets into tables.
type TableBuilder struct {
	// Select, when set, keeps only records of that class.
	Select vcf.Class

	// OnPair, if set, is called from a worker before a pair is read.
	OnPair func(Pair)
}

// MakeTable reads every record of the VCF at path into a table with the given label.
func (b *TableBuilder) MakeTable(path string, label int) (*Table, error) {
	parser, err := vcf.NewParser(path)
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	t := &Table{Source: path, Label: label}
	for {
		v, err := parser.Next()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if v == nil {
			break
		}
		if b.Select != "" && v.Class() != b.Select {
			t.Skipped++
			continue
		}

		vec, err := features.Extract(v)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, parser.LineNumber(), err)
		}
		t.Rows = append(t.Rows, vec)
	}
	return t, nil
}

// PairTables builds the true-positive table followed by the false-positive table.
func (b *TableBuilder) PairTables(p Pair) ([]*Table, error) {
	tp, err := b.MakeTable(p.TruePos, LabelTruePositive)
	if err != nil {
		return nil, err
	}
	fp, err := b.MakeTable(p.FalsePos, LabelFalsePositive)
	if err != nil {
		return nil, err
	}
	return []*Table{tp, fp}, nil
}

// Dataset concatenates tables into a feature matrix and label column, in
// table order.
func Dataset(tables []*Table) (X [][]float64, y []int) {
	n := 0
	for _, t := range tables {
		n += len(t.Rows)
	}

	X = make([][]float64, 0, n)
	y = make([]int, 0, n)
	for _, t := range tables {
		for i := range t.Rows {
			X = append(X, t.Rows[i][:])
			y = append(y, t.Label)
		}
	}
	return X, y
}
