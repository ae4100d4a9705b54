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
	"github.com/smallbiznis/portal/internal/authorization"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"deadline":        {fmt.Errorf("invoice_sweep: %w", context.DeadlineExceeded), SchedulerJobReasonDeadlineExceeded},
		"forbidden":       {authorization.ErrForbidden, SchedulerJobReasonForbidden},
		"lock_timeout":    {&pgconn.PgError{Code: "55P03"}, SchedulerJobReasonDBLockTimeout},
		"serialization":   {&pgconn.PgError{Code: "40001"}, SchedulerJobReasonSerializationFailure},
		"unique":          {gorm.ErrDuplicatedKey, SchedulerJobReasonUniqueViolation},
		"firestore_abort": {fmt.Errorf("run tx: %w", status.Error(codes.Aborted, "too much contention")), SchedulerJobReasonContention},
		"unknown":         {errors.New("boom"), SchedulerJobReasonUnknown},
		"nil":             {nil, SchedulerJobReasonUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestSchedulerErrorTypeAndRetry(t *testing.T) {
	contention := status.Error(codes.Unavailable, "backend unavailable")

	assert.Equal(t, SchedulerErrorTypeDB, ClassifySchedulerErrorType(contention))
	assert.True(t, IsSchedulerErrorRetryable(contention))
	assert.True(t, IsSchedulerErrorRetryable(context.Canceled))

	business := errors.New("subscription has no client")
	assert.Equal(t, SchedulerErrorTypeBusinessRule, ClassifySchedulerErrorType(business))
	assert.False(t, IsSchedulerErrorRetryable(business))
	assert.False(t, IsSchedulerErrorRetryable(gorm.ErrRecordNotFound))
}

func TestSchedulerMetricsCounters(t *testing.T) {
	m := newSchedulerMetrics(prometheus.NewRegistry(), Config{ServiceName: "portal", Environment: "test"})

	m.IncJobSkipped("invoice_sweep", SchedulerSkipReasonLeaseHeld)
	m.IncJobSkipped("invoice_sweep", SchedulerSkipReasonLeaseHeld)
	m.IncJobError("invoice_sweep", &pgconn.PgError{Code: "40001"})
	m.IncJobError("invoice_sweep", nil)
	m.ObserveRunLoopLag(-time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(m.jobSkipped.WithLabelValues("invoice_sweep", SchedulerSkipReasonLeaseHeld)), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.jobErrors.WithLabelValues("invoice_sweep", SchedulerJobReasonSerializationFailure)), 0.001)
	assert.Equal(t, 1, testutil.CollectAndCount(m.jobErrors))
}

func TestNilSchedulerMetricsAreSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("invoice_sweep")
	m.IncJobError("invoice_sweep", errors.New("boom"))
	m.ObserveJobDuration("invoice_sweep", time.Second)
}
