package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"gorm.io/gorm"
)

const (
	RunReasonMissingField         = "missing_field"
	RunReasonDuplicateRecord      = "duplicate_record"
	RunReasonEmptyBatch           = "empty_batch"
	RunReasonInvalidPolicy        = "invalid_policy"
	RunReasonInvalidHistory       = "invalid_history"
	RunReasonRunLocked            = "run_locked"
	RunReasonDeadlineExceeded     = "deadline_exceeded"
	RunReasonDBLockTimeout        = "db_lock_timeout"
	RunReasonSerializationFailure = "serialization_failure"
	RunReasonUniqueViolation      = "unique_violation"
	RunReasonUnknown              = "unknown"
)

const (
	RunStageNormalize = "normalize"
	RunStageLock      = "lock"
	RunStageLoad      = "load_history"
	RunStageCompute   = "compute"
	RunStageOutput    = "output"
	RunStagePersist   = "persist"
)

// RewardMetrics captures reward run health for the Prometheus scrape endpoint
// and for pushes from batch invocations.
type RewardMetrics struct {
	runs             *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runErrors        *prometheus.CounterVec
	recordsProcessed *prometheus.CounterVec
	historyWrites    prometheus.Counter
	tiersConsumed    *prometheus.CounterVec
	lockWait         prometheus.Observer
	registry         []prometheus.Collector
}

var (
	rewardMetricsOnce sync.Once
	rewardMetrics     *RewardMetrics
)

// Reward returns the singleton reward metrics registered on the default registry.
func Reward() *RewardMetrics {
	return RewardWithConfig(Config{})
}

// RewardWithConfig returns the singleton using config labels.
func RewardWithConfig(cfg Config) *RewardMetrics {
	rewardMetricsOnce.Do(func() {
		rewardMetrics = newRewardMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return rewardMetrics
}

// ResetRewardMetricsForTest resets the singleton for tests.
func ResetRewardMetricsForTest() {
	rewardMetricsOnce = sync.Once{}
	rewardMetrics = nil
}

func newRewardMetrics(registerer prometheus.Registerer, cfg Config) *RewardMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": cfg.serviceName(),
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creatorpay_reward_runs_total",
		Help:        "Reward runs by source and outcome.",
		ConstLabels: constLabels,
	}, []string{"source", "outcome"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "creatorpay_reward_run_duration_seconds",
		Help:        "Reward run latency from normalization to history commit.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"source"})
	runErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creatorpay_reward_run_errors_total",
		Help:        "Reward run failures by stage and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"stage", "reason"})
	recordsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creatorpay_records_processed_total",
		Help:        "Activity records evaluated by class.",
		ConstLabels: constLabels,
	}, []string{"class"})
	historyWrites := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "creatorpay_history_writes_total",
		Help:        "Creator history entries changed by committed runs.",
		ConstLabels: constLabels,
	})
	tiersConsumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creatorpay_bonus_tiers_consumed_total",
		Help:        "Beginner bonus tiers consumed by committed runs.",
		ConstLabels: constLabels,
	}, []string{"tier"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "creatorpay_run_lock_wait_seconds",
		Help:        "Time spent acquiring the history run lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	})

	collectors := []prometheus.Collector{
		runs,
		runDuration,
		runErrors,
		recordsProcessed,
		historyWrites,
		tiersConsumed,
		lockWait,
	}
	registerer.MustRegister(collectors...)

	return &RewardMetrics{
		runs:             runs,
		runDuration:      runDuration,
		runErrors:        runErrors,
		recordsProcessed: recordsProcessed,
		historyWrites:    historyWrites,
		tiersConsumed:    tiersConsumed,
		lockWait:         lockWait,
		registry:         collectors,
	}
}

// Collectors returns the underlying collectors, used to push batch metrics.
func (m *RewardMetrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records a finished run.
func (m *RewardMetrics) ObserveRun(source string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.runs.WithLabelValues(source, outcome).Inc()
	m.runDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// IncRunError counts a failed stage.
func (m *RewardMetrics) IncRunError(stage string, err error) {
	if m == nil || err == nil {
		return
	}
	m.runErrors.WithLabelValues(stage, ClassifyRunReason(err)).Inc()
}

// AddRecords counts evaluated records of a class.
func (m *RewardMetrics) AddRecords(class string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recordsProcessed.WithLabelValues(class).Add(float64(count))
}

// AddHistoryWrites counts committed history changes.
func (m *RewardMetrics) AddHistoryWrites(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.historyWrites.Add(float64(count))
}

// IncTierConsumed counts a bonus tier newly recorded in history.
func (m *RewardMetrics) IncTierConsumed(tier string) {
	if m == nil {
		return
	}
	m.tiersConsumed.WithLabelValues(tier).Inc()
}

// ObserveLockWait records run lock acquisition time.
func (m *RewardMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.lockWait.Observe(duration.Seconds())
}

// ClassifyRunReason maps run errors to low-cardinality reasons.
func ClassifyRunReason(err error) string {
	switch {
	case err == nil:
		return RunReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return RunReasonDeadlineExceeded
	case errors.Is(err, rewarddomain.ErrMissingField):
		return RunReasonMissingField
	case errors.Is(err, rewarddomain.ErrDuplicateRecord):
		return RunReasonDuplicateRecord
	case errors.Is(err, rewarddomain.ErrEmptyBatch):
		return RunReasonEmptyBatch
	case errors.Is(err, rewarddomain.ErrInvalidPolicy):
		return RunReasonInvalidPolicy
	case errors.Is(err, historydomain.ErrInvalidTier), errors.Is(err, historydomain.ErrEmptyKey):
		return RunReasonInvalidHistory
	case errors.Is(err, rewarddomain.ErrRunLocked):
		return RunReasonRunLocked
	case hasPGCode(err, "55P03"):
		return RunReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return RunReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return RunReasonUniqueViolation
	}
	return RunReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
