package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func staticChecker(name string, status Status) Checker {
	return NewCheckFunc(name, func(context.Context) CheckResult {
		return NewCheckResult(name, status, "", nil)
	})
}

func TestNewUnhealthyResult_NilErrorIsStillUnhealthy(t *testing.T) {
	result := NewUnhealthyResult("database", nil)
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Empty(t, result.Error)
}

func TestNewCheckResult_ErrorForcesUnhealthy(t *testing.T) {
	result := NewCheckResult("redis", StatusHealthy, "ok", errors.New("boom"))
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "boom", result.Error)
}

func TestHealthChecker_Aggregation(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
		{"no checkers", nil, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(time.Second)
			for i, s := range tt.statuses {
				h.Register(staticChecker(string(rune('a'+i)), s))
			}
			status, results := h.Check(context.Background())
			assert.Equal(t, tt.want, status)
			assert.Len(t, results, len(tt.statuses))
		})
	}
}

func TestTimeoutChecker(t *testing.T) {
	slow := NewCheckFunc("slow", func(context.Context) CheckResult {
		time.Sleep(500 * time.Millisecond)
		return NewHealthyResult("slow", "late")
	})

	result := NewTimeoutChecker(slow, 10*time.Millisecond).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Contains(t, result.Error, "timed out")
}
