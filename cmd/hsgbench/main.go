// Command hsgbench builds an index from a training corpus and reports
// per-query search latency and hit counts against a ground-truth neighbor
// file, mirroring the source's example harness.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		k             int
		magnification int
		concurrency   int
	)

	cmd := &cobra.Command{
		Use:   "hsgbench <train.bin> <test.bin> <truth.bin>",
		Short: "Build a navigable small-world index and benchmark it against ground truth",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], args[1], args[2], k, magnification, concurrency)
		},
	}

	cmd.Flags().IntVar(&k, "k", 10, "number of neighbors to request per query")
	cmd.Flags().IntVar(&magnification, "magnification", 0, "extra candidates beyond k during search")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of queries to run concurrently")

	return cmd
}
