package harness

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookback-dev/lookback/internal/backend/sim"
	"github.com/lookback-dev/lookback/internal/scan"
	"github.com/lookback-dev/lookback/internal/slot"
)

func TestBatchAllPassing(t *testing.T) {
	r, err := New(sim.New(), log.NewNopLogger(), Config{
		Partitions: 16,
		Batches:    5,
		Watchdog:   30 * time.Second,
	})
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint32(5), summary.Passed)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, summary.Reports)
	assert.Equal(t, "5 / 5 ALL TESTS PASSED", summary.String())
}

func TestBatchCountsFailuresAndContinues(t *testing.T) {
	// Every run stalls; the batch must keep going and count each one.
	dev := sim.New(sim.WithStallPartition(1), sim.WithWorkers(1))
	r, err := New(dev, log.NewNopLogger(), Config{
		Partitions: 3,
		Batches:    3,
		Watchdog:   300 * time.Millisecond,
	})
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.Passed)
	assert.Equal(t, uint32(3), summary.Failed)
	require.Len(t, summary.Reports, 3)
	for _, report := range summary.Reports {
		assert.True(t, report.LivenessFailure())
	}
	assert.Equal(t, "0 / 3 TEST FAILED", summary.String())
}

func TestConfigBounds(t *testing.T) {
	_, err := New(sim.New(), nil, Config{Partitions: 0, Batches: 1})
	assert.Error(t, err)

	_, err = New(sim.New(), nil, Config{Partitions: 4, Batches: 0})
	assert.Error(t, err)

	_, err = New(sim.New(), nil, Config{Partitions: 4, Batches: scan.MaxBatches + 1})
	assert.Error(t, err)
}

func TestRunHonorsParentCancellation(t *testing.T) {
	r, err := New(sim.New(), nil, Config{Partitions: 8, Batches: 100})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTableString(t *testing.T) {
	table := make([]uint32, 8)
	for p := uint32(0); p < 4; p++ {
		v := scan.ExpectedInclusive(p)
		table[2*p] = slot.Pack(v, 0, slot.Inclusive)
		table[2*p+1] = slot.Pack(v, 1, slot.Inclusive)
	}

	assert.Equal(t, "1, 2, 3, 4", TableString(table, 10))
}
