package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/export"
	"github.com/smallbiznis/creatorpay/internal/history/csvstore"
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	"github.com/smallbiznis/creatorpay/internal/importer"
	"github.com/smallbiznis/creatorpay/internal/metricspush"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	rewardservice "github.com/smallbiznis/creatorpay/internal/reward/service"
	"github.com/smallbiznis/creatorpay/internal/runlock"
	"go.uber.org/zap"
)

const historyPreviewName = "creatorpay-history.csv"

type options struct {
	historyPath string
	outDir      string
	periodEnd   string
	dryRun      bool
	formats     []string
	policyFile  string
	verbose     bool
	files       []string
}

func run(ctx context.Context, opts options, log *zap.Logger) error {
	cfg := config.Load()
	if opts.policyFile != "" {
		cfg.RewardPolicyFile = opts.policyFile
	}

	formats := make([]export.Format, 0, len(opts.formats))
	for _, raw := range opts.formats {
		f, err := export.ParseFormat(raw)
		if err != nil {
			return err
		}
		formats = append(formats, f)
	}

	var periodEnd *time.Time
	if opts.periodEnd != "" {
		d, err := rewarddomain.ParseDate(opts.periodEnd)
		if err != nil {
			return fmt.Errorf("invalid --period-end %q: %w", opts.periodEnd, err)
		}
		periodEnd = &d
	}

	imported, err := importFiles(ctx, importer.New(log), opts.files)
	if err != nil {
		return err
	}

	policies, err := config.NewRewardPolicyHolder(cfg, log)
	if err != nil {
		return err
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}
	store := csvstore.NewFileStore(opts.historyPath)
	sysClock := clock.System()
	rewardMetrics := obsmetrics.Reward()

	svc := rewardservice.New(rewardservice.Params{
		Log:           log,
		GenID:         node,
		Cfg:           cfg,
		Policies:      policies,
		History:       store,
		Locker:        runlock.NewLocalLocker(sysClock),
		Clock:         sysClock,
		RewardMetrics: rewardMetrics,
	})

	before, err := store.Load(ctx)
	if err != nil {
		return err
	}

	// Every output file is staged before history is committed and only
	// moved into place afterwards, so a failed write never burns a bonus.
	out := &staging{dir: opts.outDir}
	result, runErr := svc.Run(ctx, rewarddomain.RunRequest{
		Records:   imported.Records,
		PeriodEnd: periodEnd,
		DryRun:    opts.dryRun,
		Source:    rewardservice.SourceCLI,
		Coercions: imported.Coercions,
		BeforeCommit: func(ctx context.Context, res *rewarddomain.RunResult) error {
			return writeOutputs(ctx, out, formats, before, res, log)
		},
	})
	// Failed runs are worth pushing too.
	pushMetrics(ctx, cfg, log, rewardMetrics)
	if runErr != nil {
		out.discard()
		return runErr
	}
	if err := out.commit(); err != nil {
		return fmt.Errorf("history committed but outputs not moved into %s: %w", opts.outDir, err)
	}

	creators, agents, managers := result.Totals()
	log.Info("rewards computed",
		zap.String("periods", result.Run.Periods),
		zap.Bool("dry_run", opts.dryRun),
		zap.Int("records", result.Run.Records),
		zap.Int("coercions", result.Run.Coercions),
		zap.Int("bonuses_paid", result.Run.BonusesPaid),
		zap.Int("history_writes", result.Run.HistoryWrites),
		zap.Int64("creator_total", creators),
		zap.Int64("agent_total", agents),
		zap.Int64("manager_total", managers),
		zap.String("out", opts.outDir),
	)
	return nil
}

func importFiles(ctx context.Context, imp *importer.Importer, paths []string) (*importer.Result, error) {
	files := make([]importer.File, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		files = append(files, importer.File{Name: filepath.Base(path), Body: f})
	}
	return imp.Import(ctx, files)
}

func writeOutputs(ctx context.Context, out *staging, formats []export.Format, before []historydomain.Entry, res *rewarddomain.RunResult, log *zap.Logger) error {
	if err := os.MkdirAll(out.dir, 0o755); err != nil {
		return err
	}
	exporter := export.NewService()
	for _, format := range formats {
		for _, table := range export.Tables {
			body, err := exporter.Render(ctx, format, export.Document{
				Title:  "Creator rewards",
				Label:  res.Run.Periods,
				Table:  table,
				Tables: res.Tables,
			})
			if err != nil {
				return err
			}
			name := export.Filename(res.Run.Periods, table, format)
			if err := out.write(name, func(w io.Writer) error {
				_, err := io.Copy(w, body)
				return err
			}); err != nil {
				return err
			}
			log.Debug("table staged", zap.String("file", name))
		}
	}

	// The preview holds the history as it stands after the run, dry or not.
	preview := historydomain.NewSnapshot(before...)
	for _, e := range res.Entries() {
		preview.Apply(e)
	}
	return out.write(historyPreviewName, func(w io.Writer) error {
		return csvstore.Encode(w, preview.Entries())
	})
}

type stagedFile struct {
	tmp, final string
}

// staging collects temp files in the output directory and renames them over
// their final names on commit.
type staging struct {
	dir   string
	files []stagedFile
}

func (s *staging) write(name string, fill func(io.Writer) error) error {
	f, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return err
	}
	s.files = append(s.files, stagedFile{tmp: f.Name(), final: filepath.Join(s.dir, name)})
	if err := fill(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *staging) commit() error {
	for _, f := range s.files {
		if err := os.Rename(f.tmp, f.final); err != nil {
			return err
		}
	}
	s.files = nil
	return nil
}

func (s *staging) discard() {
	for _, f := range s.files {
		_ = os.Remove(f.tmp)
	}
	s.files = nil
}

func pushMetrics(ctx context.Context, cfg config.Config, log *zap.Logger, m *obsmetrics.RewardMetrics) {
	pusher := metricspush.NewPusher(cfg, log)
	if pusher == nil {
		return
	}
	if err := metricspush.PushCollectors(ctx, pusher, m.Collectors()...); err != nil {
		log.Warn("failed to push run metrics", zap.Error(err))
		return
	}
	log.Debug("run metrics pushed", zap.String("exporter", cfg.Push.Exporter))
}
