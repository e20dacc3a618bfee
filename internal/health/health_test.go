package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(ctx context.Context) error { return nil }

func failing(ctx context.Context) error { return errors.New("connection refused") }

func TestReportAllHealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.Register(DatabaseCheck(ok))
	hc.Register(RedisCheck(ok))

	report := hc.Report(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, StatusHealthy, report.Checks["database"].Status)
}

func TestOptionalFailureDegrades(t *testing.T) {
	hc := NewHealthChecker()
	hc.Register(DatabaseCheck(ok))
	hc.Register(KafkaCheck(failing))

	report := hc.Report(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Checks["kafka"].Error)
}

func TestRequiredFailureIsUnhealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.Register(DatabaseCheck(failing))
	hc.Register(RedisCheck(failing))

	report := hc.Report(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, StatusDegraded, report.Checks["redis"].Status)
}

func TestSlowCheckDegrades(t *testing.T) {
	slow := NewPingCheck("slow", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}, 5*time.Millisecond, true)

	res := slow.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
}

func TestNoChecksIsHealthy(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewHealthChecker().Report(context.Background()).Status)
}
