package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/ellis-anderson/evf/internal/features"
	"github.com/ellis-anderson/evf/internal/filter"
	"github.com/ellis-anderson/evf/internal/train"
	"github.com/ellis-anderson/evf/internal/vcf"
)

// TrainingRow is one labeled feature vector.
type TrainingRow struct {
	Source   string
	Label    int
	Features features.Vector
}

// FilterResult is one filter decision.
type FilterResult struct {
	Chrom       string
	Pos         int64
	Ref         string
	Alt         string
	Class       vcf.Class
	Probability float64
	Prediction  int
	Filter      string
}

// ClassSummary counts filter decisions for one variant class.
type ClassSummary struct {
	Class    string
	Total    int64
	Filtered int64
}

// LabelSummary counts training rows for one label.
type LabelSummary struct {
	Label int64
	Rows  int64
}

// withAppender runs fn with an appender on table.
func (s *Store) withAppender(table string, fn func(*goduckdb.Appender) error) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	if err := fn(appender); err != nil {
		return err
	}
	return appender.Flush()
}

// WriteTrainingRows batch-inserts training rows using the Appender API.
func (s *Store) WriteTrainingRows(runID string, rows []TrainingRow) error {
	if len(rows) == 0 {
		return nil
	}

	return s.withAppender("training_rows", func(a *goduckdb.Appender) error {
		for _, r := range rows {
			f := r.Features
			if err := a.AppendRow(
				runID, r.Source, int64(r.Label),
				f[features.QD], f[features.MQ], f[features.FS],
				f[features.MQRankSum], f[features.ReadPosRankSum], f[features.SOR],
				f[features.Het], f[features.RefDepth], f[features.AltDepth],
				f[features.RefFraction], f[features.AltRefRatio],
			); err != nil {
				return fmt.Errorf("append training row: %w", err)
			}
		}
		return nil
	})
}

// WriteTables logs every row of the training tables under runID.
func (s *Store) WriteTables(runID string, tables []*train.Table) error {
	var rows []TrainingRow
	for _, t := range tables {
		for _, vec := range t.Rows {
			rows = append(rows, TrainingRow{Source: t.Source, Label: t.Label, Features: vec})
		}
	}
	return s.WriteTrainingRows(runID, rows)
}

// WriteFilterResults batch-inserts filter decisions using the Appender API.
func (s *Store) WriteFilterResults(runID string, results []FilterResult) error {
	if len(results) == 0 {
		return nil
	}

	return s.withAppender("filter_results", func(a *goduckdb.Appender) error {
		for _, r := range results {
			if err := a.AppendRow(
				runID, r.Chrom, r.Pos, r.Ref, r.Alt,
				string(r.Class), r.Probability, int64(r.Prediction), r.Filter,
			); err != nil {
				return fmt.Errorf("append filter result: %w", err)
			}
		}
		return nil
	})
}

// FilterSummary counts decisions per class for a run.
func (s *Store) FilterSummary(runID string) ([]ClassSummary, error) {
	rows, err := s.db.Query(`SELECT
		class,
		count(*) AS total,
		count(*) FILTER (WHERE prediction = 0) AS filtered
		FROM filter_results
		WHERE run_id = ?
		GROUP BY class
		ORDER BY class`, runID)
	if err != nil {
		return nil, fmt.Errorf("query filter summary: %w", err)
	}
	defer rows.Close()

	var out []ClassSummary
	for rows.Next() {
		var cs ClassSummary
		if err := rows.Scan(&cs.Class, &cs.Total, &cs.Filtered); err != nil {
			return nil, fmt.Errorf("scan filter summary: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filter summary: %w", err)
	}
	return out, nil
}

// TrainingSummary counts training rows per label for a run.
func (s *Store) TrainingSummary(runID string) ([]LabelSummary, error) {
	rows, err := s.db.Query(`SELECT label, count(*) FROM training_rows
		WHERE run_id = ? GROUP BY label ORDER BY label`, runID)
	if err != nil {
		return nil, fmt.Errorf("query training summary: %w", err)
	}
	defer rows.Close()

	var out []LabelSummary
	for rows.Next() {
		var ls LabelSummary
		if err := rows.Scan(&ls.Label, &ls.Rows); err != nil {
			return nil, fmt.Errorf("scan training summary: %w", err)
		}
		out = append(out, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training summary: %w", err)
	}
	return out, nil
}

// FilterLog buffers filter decisions and writes them in batches.
// It satisfies filter.Sink.
type FilterLog struct {
	store     *Store
	runID     string
	batchSize int
	buf       []FilterResult
}

// NewFilterLog creates a decision log for a run.
func (s *Store) NewFilterLog(runID string, batchSize int) *FilterLog {
	if batchSize <= 0 {
		batchSize = 10000
	}
	return &FilterLog{store: s, runID: runID, batchSize: batchSize}
}

// Record buffers one decision, flushing when the batch is full.
func (l *FilterLog) Record(v *vcf.Variant, d filter.Decision) error {
	l.buf = append(l.buf, FilterResult{
		Chrom:       v.Chrom,
		Pos:         v.Pos,
		Ref:         v.Ref,
		Alt:         v.Alt,
		Class:       d.Class,
		Probability: d.Probability,
		Prediction:  d.Prediction,
		Filter:      d.Filter,
	})
	if len(l.buf) >= l.batchSize {
		return l.Flush()
	}
	return nil
}

// Flush writes buffered decisions.
func (l *FilterLog) Flush() error {
	if err := l.store.WriteFilterResults(l.runID, l.buf); err != nil {
		return err
	}
	l.buf = l.buf[:0]
	return nil
}
