package sim

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookback-dev/lookback/internal/scan"
	"github.com/lookback-dev/lookback/internal/slot"
)

func runOnce(t *testing.T, d *Device, partitions uint32) *scan.RunResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := d.Run(ctx, scan.Params{Partitions: partitions})
	require.NoError(t, err)
	return res
}

func TestClosedFormSmall(t *testing.T) {
	// The concrete scenario: G=4 must land on [1024 2048 3072 4096],
	// all Inclusive, diagnostics all-zero.
	d := New()
	res := runOnce(t, d, 4)

	require.Equal(t, scan.RunSuccess, res.Status)
	want := []uint32{1024, 2048, 3072, 4096}
	for p, v := range want {
		w0, w1 := res.Table[2*p], res.Table[2*p+1]
		status, ok := slot.PairStatus(w0, w1)
		require.True(t, ok, "partition %d: torn pair %#08x %#08x", p, w0, w1)
		assert.Equal(t, slot.Inclusive, status, "partition %d", p)
		assert.Equal(t, v, slot.Join(w0, w1), "partition %d", p)
	}
	for i, w := range res.Diag {
		assert.Zero(t, w, "diag word %d", i)
	}

	report := scan.Validate(res, scan.Params{Partitions: 4})
	assert.True(t, report.Passed(), "report: %s", report.Summary())
}

func TestClosedFormLarger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping larger dispatches in short mode")
	}
	for _, partitions := range []uint32{1, 2, 64, 256} {
		d := New()
		res := runOnce(t, d, partitions)
		report := scan.Validate(res, scan.Params{Partitions: partitions})
		assert.True(t, report.Passed(), "G=%d: %s", partitions, report.Summary())
	}
}

func TestAllocatorClaimsEachIndexOnce(t *testing.T) {
	d := New()
	res := runOnce(t, d, 128)

	require.NotNil(t, res.Claims)
	for p, n := range res.Claims {
		assert.Equal(t, uint32(1), n, "partition %d claimed %d times", p, n)
	}
}

func TestIdempotentReset(t *testing.T) {
	// Two runs from a fresh reset must produce identical value sets.
	d := New()
	first := runOnce(t, d, 64)
	second := runOnce(t, d, 64)

	if diff := cmp.Diff(first.Table, second.Table); diff != "" {
		t.Errorf("tables differ across reset (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Diag, second.Diag); diff != "" {
		t.Errorf("diagnostics differ across reset (-first +second):\n%s", diff)
	}
}

func TestStalledPartitionIsLivenessFailure(t *testing.T) {
	// Force partition 2 to publish Ready and never run its lookback.
	// A single worker keeps the launch after the stalled one off the
	// device, so partition 3 is a silent non-start.
	d := New(WithStallPartition(2), WithWorkers(1))
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	res, err := d.Run(ctx, scan.Params{Partitions: 4})
	require.NoError(t, err)
	assert.Equal(t, scan.RunTimeout, res.Status)

	for p := uint32(0); p < 2; p++ {
		status, ok := slot.PairStatus(res.Table[2*p], res.Table[2*p+1])
		require.True(t, ok)
		assert.Equal(t, slot.Inclusive, status, "partition %d", p)
		assert.Equal(t, scan.ExpectedInclusive(p), slot.Join(res.Table[2*p], res.Table[2*p+1]))
	}

	status2, ok := slot.PairStatus(res.Table[4], res.Table[5])
	require.True(t, ok)
	assert.Equal(t, slot.Ready, status2, "stalled partition must stay Ready")
	assert.Equal(t, scan.LocalPartial, slot.Join(res.Table[4], res.Table[5]))

	status3, ok := slot.PairStatus(res.Table[6], res.Table[7])
	require.True(t, ok)
	assert.Equal(t, slot.NotReady, status3, "partition behind the stall never starts")

	report := scan.Validate(res, scan.Params{Partitions: 4})
	assert.False(t, report.Passed())
	assert.Empty(t, report.Violations, "a stall must not read as a message violation")
	assert.True(t, report.LivenessFailure())
}

func TestStallClassification(t *testing.T) {
	d := New(WithStallPartition(2), WithWorkers(1))
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	res, err := d.Run(ctx, scan.Params{Partitions: 4})
	require.NoError(t, err)

	report := scan.Validate(res, scan.Params{Partitions: 4})
	require.Len(t, report.Failures, 2)
	assert.Equal(t, scan.SlotStalled, report.Failures[0].State)
	assert.Equal(t, scan.SlotNeverStarted, report.Failures[1].State)
}

func TestWidthMismatchIsFatalConfiguration(t *testing.T) {
	// One lane per workgroup cannot host the split-lane pair: the
	// kernel must record a configuration violation and publish nothing.
	d := New(WithWidth(1))
	res := runOnce(t, d, 2)

	require.Equal(t, scan.RunSuccess, res.Status)
	for p := uint32(0); p < 2; p++ {
		status, ok := slot.PairStatus(res.Table[2*p], res.Table[2*p+1])
		require.True(t, ok)
		assert.Equal(t, slot.NotReady, status, "partition %d published despite width check", p)

		base := p * scan.SplitLanes * 2
		assert.Equal(t, scan.ErrWidth, res.Diag[base], "partition %d lane 0 kind", p)
		assert.Equal(t, uint32(1), res.Diag[base+1], "partition %d offending width", p)
		assert.Zero(t, res.Diag[base+2], "width violation is recorded by the first lane only")
	}

	report := scan.Validate(res, scan.Params{Partitions: 2})
	assert.False(t, report.Passed())
	assert.False(t, report.LivenessFailure())
}

func TestRunRejectsBadParams(t *testing.T) {
	d := New()
	_, err := d.Run(context.Background(), scan.Params{Partitions: 0})
	assert.Error(t, err)
	_, err = d.Run(context.Background(), scan.Params{Partitions: scan.MaxPartitions + 1})
	assert.Error(t, err)
}

func TestNarrowWorkerPoolStillMakesProgress(t *testing.T) {
	// Forward progress must hold even when far fewer workgroups are
	// resident than dispatched.
	d := New(WithWorkers(2))
	res := runOnce(t, d, 64)
	report := scan.Validate(res, scan.Params{Partitions: 64})
	assert.True(t, report.Passed(), "report: %s", report.Summary())
}
