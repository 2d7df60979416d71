package settlement_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/settlement"
	"github.com/amc-simulator/amc_simulator/pkg/circuitbreaker"
)

func TestSimulate_Thresholds(t *testing.T) {
	tests := []struct {
		draw float64
		want settlement.Result
	}{
		{0, settlement.ResultSuccess},
		{0.8499, settlement.ResultSuccess},
		{0.85, settlement.ResultRejected},
		{0.9499, settlement.ResultRejected},
		{0.95, settlement.ResultTechnicalFailure},
		{0.9999, settlement.ResultTechnicalFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, settlement.Simulate(tt.draw), "draw %v", tt.draw)
	}
}

func TestSimulate_Distribution(t *testing.T) {
	const n = 10000
	counts := map[settlement.Result]int{}
	for i := 0; i < n; i++ {
		counts[settlement.Simulate((float64(i)+0.5)/n)]++
	}
	assert.InDelta(t, 0.85, float64(counts[settlement.ResultSuccess])/n, 0.01)
	assert.InDelta(t, 0.10, float64(counts[settlement.ResultRejected])/n, 0.01)
	assert.InDelta(t, 0.05, float64(counts[settlement.ResultTechnicalFailure])/n, 0.01)
}

// fixedRand replays draws in order and repeats the last one
type fixedRand struct {
	draws []float64
	i     int
}

func (r *fixedRand) Float64() float64 {
	d := r.draws[r.i]
	if r.i < len(r.draws)-1 {
		r.i++
	}
	return d
}

func (r *fixedRand) IntN(n int) int { return n / 2 }

func TestSimulatedClient_Outcomes(t *testing.T) {
	txn := &entities.Transaction{ID: uuid.New()}
	client := settlement.NewSimulatedClient(&fixedRand{draws: []float64{0.1, 0.9, 0.99}})

	out, err := client.Submit(context.Background(), txn)
	require.NoError(t, err)
	assert.Equal(t, settlement.ResultSuccess, out.Result)
	assert.True(t, strings.HasPrefix(out.Reference, "CAMS"))
	assert.Len(t, out.Reference, len("CAMS")+8+6)

	out, err = client.Submit(context.Background(), txn)
	require.NoError(t, err)
	assert.Equal(t, settlement.ResultRejected, out.Result)
	assert.Contains(t, settlement.RejectionReasons, out.Reason)

	out, err = client.Submit(context.Background(), txn)
	require.NoError(t, err)
	assert.Equal(t, settlement.ResultTechnicalFailure, out.Result)
	assert.Equal(t, settlement.TechnicalFailureReason, out.Reason)
}

func TestBreakerClient_OpensOnTechnicalFailures(t *testing.T) {
	inner := settlement.NewSimulatedClient(&fixedRand{draws: []float64{0.99}})
	client := settlement.NewBreakerClient(inner, circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
	})
	txn := &entities.Transaction{ID: uuid.New()}

	for i := 0; i < 3; i++ {
		out, err := client.Submit(context.Background(), txn)
		require.NoError(t, err)
		assert.Equal(t, settlement.ResultTechnicalFailure, out.Result)
	}

	_, err := client.Submit(context.Background(), txn)
	assert.ErrorIs(t, err, settlement.ErrRegistrarUnavailable)
}

func TestBreakerClient_RejectionsDoNotTrip(t *testing.T) {
	inner := settlement.NewSimulatedClient(&fixedRand{draws: []float64{0.9}})
	client := settlement.NewBreakerClient(inner, circuitbreaker.DefaultConfig())
	txn := &entities.Transaction{ID: uuid.New()}

	for i := 0; i < 10; i++ {
		out, err := client.Submit(context.Background(), txn)
		require.NoError(t, err)
		assert.Equal(t, settlement.ResultRejected, out.Result)
	}
}
