package train

import (
	"context"
	"runtime"
	"sync"
)

// WorkItem is one pair of call sets waiting to be read.
type WorkItem struct {
	Seq  int
	Pair Pair
}

// WorkResult holds the tables built for a single pair.
type WorkResult struct {
	Seq    int
	Pair   Pair
	Tables []*Table
	Err    error
}

// ParallelBuild builds tables for work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
// Items taken after ctx is done are answered with ctx.Err() without being read.
func (b *TableBuilder) ParallelBuild(ctx context.Context, items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				if err := ctx.Err(); err != nil {
					results <- WorkResult{Seq: item.Seq, Pair: item.Pair, Err: err}
					continue
				}
				if b.OnPair != nil {
					b.OnPair(item.Pair)
				}
				tables, err := b.PairTables(item.Pair)
				results <- WorkResult{
					Seq:    item.Seq,
					Pair:   item.Pair,
					Tables: tables,
					Err:    err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect passes results to fn by ascending Seq, holding early
// arrivals until their predecessors are in. It returns once results is
// closed. After fn fails the rest of the channel is drained and discarded.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	held := make(map[int]WorkResult)
	want := 0

	for r := range results {
		held[r.Seq] = r
		for r, ok := held[want]; ok; r, ok = held[want] {
			delete(held, want)
			want++
			if err := fn(r); err != nil {
				for range results {
				}
				return err
			}
		}
	}
	return nil
}

// BuildTables reads every pair into its true-positive and false-positive
// tables. The returned tables follow the order of pairs regardless of the
// number of workers.
// The first failing pair stops the remaining pairs from being read.
func (b *TableBuilder) BuildTables(ctx context.Context, pairs []Pair, workers int) ([]*Table, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan WorkItem)
	go func() {
		defer close(items)
		for i, p := range pairs {
			select {
			case items <- WorkItem{Seq: i, Pair: p}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var tables []*Table
	err := OrderedCollect(b.ParallelBuild(ctx, items, workers), func(r WorkResult) error {
		if r.Err != nil {
			cancel()
			return r.Err
		}
		tables = append(tables, r.Tables...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tables, nil
}
