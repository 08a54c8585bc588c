package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyRunReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: RunReasonDeadlineExceeded},
		{name: "missing_field", err: &rewarddomain.MissingFieldError{Row: 2, Field: rewarddomain.FieldDiamonds}, want: RunReasonMissingField},
		{name: "duplicate", err: &rewarddomain.DuplicateRecordError{Period: "2024-05", Key: "alice"}, want: RunReasonDuplicateRecord},
		{name: "policy", err: fmt.Errorf("%w: bad basis", rewarddomain.ErrInvalidPolicy), want: RunReasonInvalidPolicy},
		{name: "locked", err: rewarddomain.ErrRunLocked, want: RunReasonRunLocked},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: RunReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: RunReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: RunReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: RunReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyRunReason(tc.err))
		})
	}
}

func TestRewardMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newRewardMetrics(registry, Config{ServiceName: "creatorpay", Environment: "test"})

	m.ObserveRun("api", 20*time.Millisecond, nil)
	m.ObserveRun("api", 5*time.Millisecond, errors.New("boom"))
	m.AddRecords("beginner", 4)
	m.AddHistoryWrites(3)
	m.IncTierConsumed("2")
	m.IncRunError(RunStageCompute, rewarddomain.ErrEmptyBatch)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("api", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("api", "error")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.recordsProcessed.WithLabelValues("beginner")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.historyWrites))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.tiersConsumed.WithLabelValues("2")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runErrors.WithLabelValues(RunStageCompute, RunReasonEmptyBatch)))
	assert.Len(t, m.Collectors(), 7)
}
