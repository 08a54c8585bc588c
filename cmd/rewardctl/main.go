// Command rewardctl computes creator rewards from agency extracts against a
// CSV history file, without a database.
//
//	rewardctl --history history.csv --out ./out [--period-end 2025-10-31] [--dry-run] octobre.csv novembre.xlsx
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	opts := options{}
	flags := pflag.NewFlagSet("rewardctl", pflag.ExitOnError)
	flags.StringVarP(&opts.historyPath, "history", "H", "history.csv", "history CSV, updated in place unless --dry-run")
	flags.StringVarP(&opts.outDir, "out", "o", "out", "directory receiving the reward tables")
	flags.StringVar(&opts.periodEnd, "period-end", "", "period end date overriding the period labels (YYYY-MM-DD)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "compute without updating the history file")
	flags.StringSliceVarP(&opts.formats, "format", "f", []string{"csv"}, "table formats to write (csv, pdf)")
	flags.StringVar(&opts.policyFile, "policy", "", "reward policy file (rewards.yml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: rewardctl [flags] extract.csv [extract.xlsx ...]")
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])
	opts.files = flags.Args()
	if len(opts.files) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	log, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rewardctl:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, log); err != nil {
		log.Error("reward run failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
