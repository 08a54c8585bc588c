package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	obscontext "github.com/smallbiznis/creatorpay/internal/observability/context"
	obslogger "github.com/smallbiznis/creatorpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"github.com/smallbiznis/creatorpay/internal/runlock"
	pkgdb "github.com/smallbiznis/creatorpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HistoryLockKey serializes every run that writes the shared history.
const HistoryLockKey = "creatorpay:history"

const (
	SourceAPI    = "api"
	SourceImport = "import"
	SourceCLI    = "cli"
)

type Params struct {
	fx.In

	DB            *gorm.DB                   `optional:"true"`
	Repo          rewarddomain.RunRepository `optional:"true"`
	Log           *zap.Logger
	GenID         *snowflake.Node
	Cfg           config.Config
	Policies      *config.RewardPolicyHolder
	History       historydomain.Store
	Locker        runlock.Locker
	Clock         clock.Clock
	Metrics       *obsmetrics.Metrics       `optional:"true"`
	RewardMetrics *obsmetrics.RewardMetrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	repo          rewarddomain.RunRepository
	log           *zap.Logger
	genID         *snowflake.Node
	policies      *config.RewardPolicyHolder
	history       historydomain.Store
	locker        runlock.Locker
	clock         clock.Clock
	lockTTL       time.Duration
	metrics       *obsmetrics.Metrics
	rewardMetrics *obsmetrics.RewardMetrics
}

func New(p Params) rewarddomain.Service {
	ttl := time.Duration(p.Cfg.RunLockTTLSecond) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		db:            p.DB,
		repo:          p.Repo,
		log:           p.Log.Named("reward.service"),
		genID:         p.GenID,
		policies:      p.Policies,
		history:       p.History,
		locker:        p.Locker,
		clock:         p.Clock,
		lockTTL:       ttl,
		metrics:       p.Metrics,
		rewardMetrics: p.RewardMetrics,
	}
}

func (s *Service) Policy() rewarddomain.Policy {
	return s.policies.Get()
}

// Run computes one batch. Unless the request is a dry run, the history
// changes and the run record are committed together under the history lock.
func (s *Service) Run(ctx context.Context, req rewarddomain.RunRequest) (*rewarddomain.RunResult, error) {
	start := time.Now()
	source := normalizeSource(req.Source)

	id := s.genID.Generate()
	ctx = obscontext.WithRunID(ctx, id.String())

	result, err := s.run(ctx, id, source, req)

	s.rewardMetrics.ObserveRun(source, time.Since(start), err)
	outcome := "ok"
	if err != nil {
		outcome = obsmetrics.ClassifyRunReason(err)
	}
	s.metrics.RecordRun(ctx, source, outcome, req.DryRun)
	return result, err
}

func (s *Service) run(ctx context.Context, id snowflake.ID, source string, req rewarddomain.RunRequest) (*rewarddomain.RunResult, error) {
	log := obslogger.WithContext(ctx, s.log)
	policy := s.policies.Get()

	records, coercions, err := rewarddomain.Normalize(req.Records, policy.RequireFields)
	if err != nil {
		s.rewardMetrics.IncRunError(obsmetrics.RunStageNormalize, err)
		return nil, err
	}
	if len(records) == 0 {
		return nil, rewarddomain.ErrEmptyBatch
	}
	engine, err := NewEngine(policy)
	if err != nil {
		s.rewardMetrics.IncRunError(obsmetrics.RunStageCompute, err)
		return nil, err
	}

	if !req.DryRun {
		release, err := s.lock(ctx)
		if err != nil {
			s.rewardMetrics.IncRunError(obsmetrics.RunStageLock, err)
			return nil, err
		}
		defer release()
	}

	snapshot, err := s.loadHistory(ctx, records)
	if err != nil {
		s.rewardMetrics.IncRunError(obsmetrics.RunStageLoad, err)
		return nil, err
	}

	comp, err := engine.Compute(Batch{Records: records, PeriodEnd: req.PeriodEnd}, snapshot)
	if err != nil {
		s.rewardMetrics.IncRunError(obsmetrics.RunStageCompute, err)
		return nil, err
	}
	allCoercions := make([]rewarddomain.CoercionEvent, 0, len(req.Coercions)+len(coercions)+len(comp.Coercions))
	allCoercions = append(allCoercions, req.Coercions...)
	allCoercions = append(allCoercions, coercions...)
	allCoercions = append(allCoercions, comp.Coercions...)
	comp.Coercions = allCoercions

	entries := comp.Entries()
	run, err := s.newRun(id, source, req, records, policy, comp, len(entries))
	if err != nil {
		return nil, err
	}

	result := &rewarddomain.RunResult{Run: *run, Computation: *comp}
	if req.BeforeCommit != nil {
		if err := req.BeforeCommit(ctx, result); err != nil {
			s.rewardMetrics.IncRunError(obsmetrics.RunStageOutput, err)
			log.Error("reward run aborted before commit", zap.Error(err))
			return nil, err
		}
	}

	if !req.DryRun {
		if err := s.persistWithRetry(ctx, log, run, entries); err != nil {
			s.rewardMetrics.IncRunError(obsmetrics.RunStagePersist, err)
			log.Error("failed to commit reward run", zap.Error(err))
			return nil, err
		}
	}

	s.observe(ctx, comp, req.DryRun, len(entries))
	s.logCoercions(log, comp.Coercions)
	log.Info("reward run completed",
		zap.String("source", source),
		zap.Bool("dry_run", req.DryRun),
		zap.Int("records", run.Records),
		zap.Int("coercions", run.Coercions),
		zap.Int("bonuses_paid", run.BonusesPaid),
		zap.Int("history_writes", run.HistoryWrites),
		zap.Int64("creator_total", run.CreatorTotal),
		zap.Int64("agent_total", run.AgentTotal),
		zap.Int64("manager_total", run.ManagerTotal),
	)

	return result, nil
}

func (s *Service) lock(ctx context.Context) (func(), error) {
	started := time.Now()
	token, ok, err := s.locker.TryLock(ctx, HistoryLockKey, s.lockTTL)
	s.rewardMetrics.ObserveLockWait(time.Since(started))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rewarddomain.ErrRunLocked
	}
	return func() {
		// The request context may already be cancelled.
		if err := s.locker.Release(context.WithoutCancel(ctx), HistoryLockKey, token); err != nil {
			s.log.Warn("failed to release history lock", zap.Error(err))
		}
	}, nil
}

// loadHistory reads only the batch's creators when the store supports it.
func (s *Service) loadHistory(ctx context.Context, records []rewarddomain.ActivityRecord) (historydomain.Snapshot, error) {
	if loader, ok := s.history.(historydomain.KeyedLoader); ok {
		seen := make(map[string]struct{}, len(records))
		keys := make([]string, 0, len(records))
		for _, rec := range records {
			key := rec.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		entries, err := loader.LoadKeys(ctx, keys)
		if err != nil {
			return nil, err
		}
		return historydomain.NewSnapshot(entries...), nil
	}
	entries, err := s.history.Load(ctx)
	if err != nil {
		return nil, err
	}
	return historydomain.NewSnapshot(entries...), nil
}

const (
	maxPersistAttempts = 3
	persistBackoff     = 50 * time.Millisecond
)

// persistWithRetry retries the whole commit on serialization failures,
// deadlocks and busy databases. The history lock is still held, so a retry
// only races writers outside this service.
func (s *Service) persistWithRetry(ctx context.Context, log *zap.Logger, run *rewarddomain.RewardRun, entries []historydomain.Entry) error {
	var err error
	for attempt := 1; attempt <= maxPersistAttempts; attempt++ {
		if err = s.persist(ctx, run, entries); err == nil || !pkgdb.IsRetryableErr(err) {
			return err
		}
		if attempt == maxPersistAttempts {
			break
		}
		log.Warn("retrying reward run commit", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * persistBackoff):
		}
	}
	return err
}

// persist writes the run record and the history changes. With a database the
// two share one transaction; a history store that cannot join it is written
// last so a failure still rolls the run record back.
func (s *Service) persist(ctx context.Context, run *rewarddomain.RewardRun, entries []historydomain.Entry) error {
	now := s.clock.Now()
	for i := range entries {
		entries[i].UpdatedAt = now
	}

	if s.db == nil || s.repo == nil {
		if len(entries) == 0 {
			return nil
		}
		return s.history.Save(ctx, entries)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, run); err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		store := s.history
		if txStore, ok := s.history.(historydomain.TxStore); ok {
			store = txStore.WithTx(tx)
		}
		return store.Save(ctx, entries)
	})
}

func (s *Service) newRun(id snowflake.ID, source string, req rewarddomain.RunRequest, records []rewarddomain.ActivityRecord, policy rewarddomain.Policy, comp *rewarddomain.Computation, writes int) (*rewarddomain.RewardRun, error) {
	tables, err := json.Marshal(comp.Tables)
	if err != nil {
		return nil, err
	}
	deltas, err := json.Marshal(comp.Deltas)
	if err != nil {
		return nil, err
	}
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return nil, err
	}
	checksum, err := checksumRecords(records, req.PeriodEnd)
	if err != nil {
		return nil, err
	}

	bonuses := 0
	for _, c := range comp.Creators {
		if c.BonusTierPaid > 0 {
			bonuses++
		}
	}
	creators, agents, managers := comp.Totals()

	return &rewarddomain.RewardRun{
		ID:            id,
		Periods:       periodLabels(records),
		PeriodEnd:     req.PeriodEnd,
		Source:        source,
		DryRun:        req.DryRun,
		Records:       len(records),
		Coercions:     len(comp.Coercions),
		BonusesPaid:   bonuses,
		HistoryWrites: writes,
		CreatorTotal:  creators,
		AgentTotal:    agents,
		ManagerTotal:  managers,
		Checksum:      checksum,
		Policy:        datatypes.JSON(policyJSON),
		Tables:        datatypes.JSON(tables),
		Deltas:        datatypes.JSON(deltas),
		CreatedAt:     s.clock.Now(),
	}, nil
}

func (s *Service) observe(ctx context.Context, comp *rewarddomain.Computation, dryRun bool, writes int) {
	classes := map[rewarddomain.CreatorClass]int{}
	for _, c := range comp.Creators {
		classes[c.Class]++
		if !dryRun {
			s.metrics.RecordBonusPaid(ctx, c.BonusTierPaid)
		}
	}
	for class, n := range classes {
		s.rewardMetrics.AddRecords(string(class), n)
	}

	fields := map[string]int{}
	for _, e := range comp.Coercions {
		fields[e.Field]++
	}
	for field, n := range fields {
		s.metrics.RecordCoercions(ctx, field, n)
	}

	if dryRun {
		return
	}
	s.rewardMetrics.AddHistoryWrites(writes)
	for _, d := range comp.Deltas {
		if d.TierConsumed > 0 {
			s.rewardMetrics.IncTierConsumed(strconv.Itoa(d.TierConsumed))
		}
	}
	creators, agents, managers := comp.Totals()
	s.metrics.RecordRewardAmount(ctx, "creators", creators)
	s.metrics.RecordRewardAmount(ctx, "agents", agents)
	s.metrics.RecordRewardAmount(ctx, "managers", managers)
}

const maxLoggedCoercions = 20

func (s *Service) logCoercions(log *zap.Logger, events []rewarddomain.CoercionEvent) {
	if len(events) == 0 {
		return
	}
	for i, e := range events {
		if i == maxLoggedCoercions {
			log.Warn("further coercions omitted", zap.Int("omitted", len(events)-maxLoggedCoercions))
			break
		}
		log.Warn("value coerced",
			zap.Int("row", e.Row),
			zap.String("field", e.Field),
			zap.String("raw", e.Raw),
		)
	}
}

func (s *Service) GetRun(ctx context.Context, id string) (*rewarddomain.RewardRun, error) {
	runID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || runID <= 0 {
		return nil, rewarddomain.ErrInvalidRunID
	}
	if s.db == nil || s.repo == nil {
		return nil, rewarddomain.ErrRunNotFound
	}
	run, err := s.repo.FindByID(ctx, s.db, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, rewarddomain.ErrRunNotFound
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]rewarddomain.RewardRun, error) {
	if s.db == nil || s.repo == nil {
		return []rewarddomain.RewardRun{}, nil
	}
	return s.repo.List(ctx, s.db, limit)
}

func normalizeSource(source string) string {
	switch source = strings.ToLower(strings.TrimSpace(source)); source {
	case SourceAPI, SourceImport, SourceCLI:
		return source
	case "":
		return SourceAPI
	}
	return "other"
}

func periodLabels(records []rewarddomain.ActivityRecord) string {
	seen := map[string]struct{}{}
	labels := []string{}
	for _, rec := range records {
		if _, ok := seen[rec.Period]; ok {
			continue
		}
		seen[rec.Period] = struct{}{}
		labels = append(labels, rec.Period)
	}
	sort.Strings(labels)
	return strings.Join(labels, ",")
}

// checksumRecords fingerprints the normalized input so replays of the same
// extract can be spotted in the run list.
func checksumRecords(records []rewarddomain.ActivityRecord, periodEnd *time.Time) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	if err := enc.Encode(periodEnd); err != nil {
		return "", err
	}
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var _ rewarddomain.Service = (*Service)(nil)
