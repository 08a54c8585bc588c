package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	"github.com/smallbiznis/creatorpay/internal/history/memory"
	historyrepository "github.com/smallbiznis/creatorpay/internal/history/repository"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	rewardrepository "github.com/smallbiznis/creatorpay/internal/reward/repository"
	"github.com/smallbiznis/creatorpay/internal/runlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc     rewarddomain.Service
	history historydomain.Store
	locker  *runlock.LocalLocker
	clock   *clock.FakeClock
}

func newFixture(t *testing.T, db *gorm.DB, store historydomain.Store) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	holder, err := config.NewStaticPolicyHolder(rewarddomain.DefaultPolicy())
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC))
	locker := runlock.NewLocalLocker(fc)
	p := Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Cfg:      config.Config{RunLockTTLSecond: 60},
		Policies: holder,
		History:  store,
		Locker:   locker,
		Clock:    fc,
	}
	if db != nil {
		p.DB = db
		p.Repo = rewardrepository.Provide()
	}
	return &fixture{svc: New(p), history: store, locker: locker, clock: fc}
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&historydomain.Record{}, &rewarddomain.RewardRun{}))
	return db
}

func raw(period, user string, diamonds, days, hours float64, status string, relation *time.Time) rewarddomain.RawRecord {
	return rewarddomain.RawRecord{
		Period:       period,
		Username:     user,
		Agent:        "agent-a",
		Group:        "group-a",
		Diamonds:     rewarddomain.Float64(diamonds),
		LiveDays:     rewarddomain.Float64(days),
		LiveHours:    rewarddomain.Float64(hours),
		Status:       status,
		RelationDate: relation,
	}
}

func TestService_RunCommitsHistory(t *testing.T) {
	store := memory.New()
	f := newFixture(t, nil, store)
	ctx := context.Background()

	req := rewarddomain.RunRequest{Records: []rewarddomain.RawRecord{
		raw("2025-10", "alice", 80_000, 10, 20, "non-graduated", day(2025, 10, 21)),
	}}
	res, err := f.svc.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), res.Creators[0].TotalReward)
	assert.Equal(t, 1, res.Run.BonusesPaid)
	assert.Equal(t, 1, res.Run.HistoryWrites)
	assert.Equal(t, "2025-10", res.Run.Periods)
	assert.Equal(t, SourceAPI, res.Run.Source)
	assert.Len(t, res.Run.Checksum, 64)

	entry, err := store.Find(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.BonusTiersUsed.Has(1))
	assert.Equal(t, f.clock.Now(), entry.UpdatedAt)

	again, err := f.svc.Run(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, again.Creators[0].BonusAmount)
	assert.Zero(t, again.Run.HistoryWrites)
	assert.Equal(t, res.Run.Checksum, again.Run.Checksum)
	assert.NotEqual(t, res.Run.ID, again.Run.ID)
}

func TestService_DryRunLeavesHistoryUntouched(t *testing.T) {
	store := memory.New()
	f := newFixture(t, nil, store)

	res, err := f.svc.Run(context.Background(), rewarddomain.RunRequest{
		DryRun:  true,
		Records: []rewarddomain.RawRecord{raw("2025-10", "alice", 80_000, 10, 20, "debutant", day(2025, 10, 21))},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Creators[0].BonusAmount)
	assert.True(t, res.Run.DryRun)
	assert.Zero(t, store.Saves())
}

func TestService_BeforeCommitFailureLeavesHistory(t *testing.T) {
	store := memory.New()
	f := newFixture(t, nil, store)
	ctx := context.Background()
	records := []rewarddomain.RawRecord{raw("2025-10", "alice", 80_000, 10, 20, "non-graduated", day(2025, 10, 21))}

	var seen *rewarddomain.RunResult
	_, err := f.svc.Run(ctx, rewarddomain.RunRequest{
		Records: records,
		BeforeCommit: func(_ context.Context, res *rewarddomain.RunResult) error {
			seen = res
			return errors.New("disk full")
		},
	})
	require.EqualError(t, err, "disk full")
	require.NotNil(t, seen)
	assert.Equal(t, int64(500), seen.Creators[0].BonusAmount)
	assert.Zero(t, store.Saves())

	// The lock was released and the bonus is still payable.
	res, err := f.svc.Run(ctx, rewarddomain.RunRequest{Records: records})
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Creators[0].BonusAmount)
	assert.Equal(t, 1, store.Saves())
}

func TestService_BeforeCommitRunsForDryRuns(t *testing.T) {
	f := newFixture(t, nil, memory.New())
	called := false
	_, err := f.svc.Run(context.Background(), rewarddomain.RunRequest{
		DryRun:  true,
		Records: []rewarddomain.RawRecord{raw("2025-10", "bob", 1000, 1, 1, "", nil)},
		BeforeCommit: func(context.Context, *rewarddomain.RunResult) error {
			called = true
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, called)
}

// busyStore fails the first saves the way a locked sqlite file does.
type busyStore struct {
	*memory.Store
	failures int
	attempts int
	err      error
}

func (s *busyStore) Save(ctx context.Context, entries []historydomain.Entry) error {
	s.attempts++
	if s.attempts <= s.failures {
		return s.err
	}
	return s.Store.Save(ctx, entries)
}

func TestService_RetriesRetryableCommit(t *testing.T) {
	records := []rewarddomain.RawRecord{raw("2025-10", "alice", 80_000, 10, 20, "non-graduated", day(2025, 10, 21))}

	t.Run("busy then ok", func(t *testing.T) {
		store := &busyStore{Store: memory.New(), failures: 2, err: errors.New("database is locked (5) (SQLITE_BUSY)")}
		f := newFixture(t, nil, store)
		_, err := f.svc.Run(context.Background(), rewarddomain.RunRequest{Records: records})
		require.NoError(t, err)
		assert.Equal(t, 3, store.attempts)
		assert.Equal(t, 1, store.Saves())
	})

	t.Run("gives up", func(t *testing.T) {
		store := &busyStore{Store: memory.New(), failures: 10, err: errors.New("database is locked")}
		f := newFixture(t, nil, store)
		_, err := f.svc.Run(context.Background(), rewarddomain.RunRequest{Records: records})
		require.Error(t, err)
		assert.Equal(t, maxPersistAttempts, store.attempts)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		store := &busyStore{Store: memory.New(), failures: 10, err: errors.New("permission denied")}
		f := newFixture(t, nil, store)
		_, err := f.svc.Run(context.Background(), rewarddomain.RunRequest{Records: records})
		require.Error(t, err)
		assert.Equal(t, 1, store.attempts)
	})
}

func TestService_RunLocked(t *testing.T) {
	f := newFixture(t, nil, memory.New())
	ctx := context.Background()

	_, ok, err := f.locker.TryLock(ctx, HistoryLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	req := rewarddomain.RunRequest{Records: []rewarddomain.RawRecord{raw("2025-10", "bob", 1000, 1, 1, "", nil)}}
	_, err = f.svc.Run(ctx, req)
	assert.ErrorIs(t, err, rewarddomain.ErrRunLocked)

	req.DryRun = true
	_, err = f.svc.Run(ctx, req)
	assert.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	req.DryRun = false
	_, err = f.svc.Run(ctx, req)
	assert.NoError(t, err)
}

func TestService_StrictFieldsAndCoercions(t *testing.T) {
	f := newFixture(t, nil, memory.New())
	ctx := context.Background()

	missing := raw("2025-10", "carol", 1000, 1, 1, "", nil)
	missing.LiveHours = nil
	_, err := f.svc.Run(ctx, rewarddomain.RunRequest{Records: []rewarddomain.RawRecord{missing}})
	assert.ErrorIs(t, err, rewarddomain.ErrMissingField)

	negative := raw("2025-10", "carol", -5, 1, 1, "", nil)
	res, err := f.svc.Run(ctx, rewarddomain.RunRequest{
		DryRun:    true,
		Records:   []rewarddomain.RawRecord{negative},
		Coercions: []rewarddomain.CoercionEvent{{Row: 0, Key: "carol", Field: "live_days", Raw: "n/a"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Coercions, 2)
	assert.Equal(t, "live_days", res.Coercions[0].Field)
	assert.Equal(t, rewarddomain.FieldDiamonds, res.Coercions[1].Field)
	assert.Equal(t, 2, res.Run.Coercions)
	assert.Zero(t, res.Creators[0].Diamonds)

	_, err = f.svc.Run(ctx, rewarddomain.RunRequest{})
	assert.ErrorIs(t, err, rewarddomain.ErrEmptyBatch)
}

func TestService_PersistsRunWithHistory(t *testing.T) {
	db := setupDB(t)
	store := historyrepository.NewStore(historyrepository.StoreParams{DB: db, Repo: historyrepository.Provide(), Log: zap.NewNop()})
	f := newFixture(t, db, store)
	ctx := context.Background()

	res, err := f.svc.Run(ctx, rewarddomain.RunRequest{
		Source: "import",
		Records: []rewarddomain.RawRecord{
			raw("2025-11", "alice", 160_000, 15, 30, "Débutant", day(2025, 10, 21)),
			raw("2025-11", "bob", 3_000_000, 25, 90, "", nil),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1088), res.Creators[0].BonusAmount)
	assert.Equal(t, int64(120_000), res.Creators[1].TotalReward)

	run, err := f.svc.GetRun(ctx, res.Run.ID.String())
	require.NoError(t, err)
	assert.Equal(t, SourceImport, run.Source)
	assert.Equal(t, 2, run.Records)
	assert.Equal(t, res.Run.CreatorTotal, run.CreatorTotal)

	tables, err := run.DecodeTables()
	require.NoError(t, err)
	require.Len(t, tables.Creators, 2)
	assert.Equal(t, "alice", tables.Creators[0].CreatorKey)

	deltas, err := run.DecodeDeltas()
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	assert.True(t, deltas[1].BecameConfirmed)

	entry, err := store.Find(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Confirmed)

	runs, err := f.svc.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Run.ID, runs[0].ID)
}

func TestService_GetRunErrors(t *testing.T) {
	f := newFixture(t, setupDB(t), memory.New())
	ctx := context.Background()

	_, err := f.svc.GetRun(ctx, "not-a-number")
	assert.ErrorIs(t, err, rewarddomain.ErrInvalidRunID)

	_, err = f.svc.GetRun(ctx, "123456789")
	assert.ErrorIs(t, err, rewarddomain.ErrRunNotFound)

	noDB := newFixture(t, nil, memory.New())
	runs, err := noDB.svc.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNormalizeSource(t *testing.T) {
	assert.Equal(t, SourceAPI, normalizeSource(""))
	assert.Equal(t, SourceCLI, normalizeSource(" CLI "))
	assert.Equal(t, "other", normalizeSource("cron"))
}
