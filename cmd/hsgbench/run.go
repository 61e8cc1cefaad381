package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nav-graph/hsg"
	"github.com/nav-graph/hsg/metric"
)

func run(cmd *cobra.Command, trainPath, testPath, truthPath string, k, magnification, concurrency int) error {
	train, err := readVectors(trainPath)
	if err != nil {
		return err
	}
	test, err := readVectors(testPath)
	if err != nil {
		return err
	}
	truth, err := readNeighbors(truthPath)
	if err != nil {
		return err
	}

	idx, err := hsg.New(train.dimension, func(o *hsg.Options) {
		o.Metric = metric.SquaredL2
	})
	if err != nil {
		return err
	}

	for i, row := range train.rows {
		if err := idx.Insert(uint64(i), row); err != nil {
			return fmt.Errorf("hsgbench: inserting row %d: %w", i, err)
		}
	}

	type queryResult struct {
		index   int
		elapsed time.Duration
		hits    int
		err     error
	}

	results := make([]queryResult, len(test.rows))

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	for i, query := range test.rows {
		i, query := i, query
		g.Go(func() error {
			start := time.Now()
			got, err := idx.Search(query, k, magnification)
			elapsed := time.Since(start)

			hits := 0
			if err == nil && i < len(truth.rows) {
				wanted := make(map[uint64]bool, len(truth.rows[i]))
				for _, id := range truth.rows[i] {
					wanted[id] = true
				}
				for _, r := range got {
					if wanted[r.ID] {
						hits++
					}
				}
			}

			mu.Lock()
			results[i] = queryResult{index: i, elapsed: elapsed, hits: hits, err: err}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "query %d: error: %v\n", r.index, r.err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "query %d: %d us, %d/%d hits\n",
			r.index, r.elapsed.Microseconds(), r.hits, len(truth.rows[r.index]))
	}

	return nil
}
