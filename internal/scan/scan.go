// Package scan defines the shared vocabulary of the decoupled-lookback
// validation suite: the run parameters, the buffer layout contract
// between a substrate and the host, the diagnostic codes the kernels
// emit, and the validation of a run's readback against the closed-form
// expected result.
//
// The protocol under test computes a single-pass prefix sum across
// dynamically indexed partitions. Every partition contributes the same
// fixed local partial, so partition p's final inclusive sum has exactly
// one valid value, (p+1)*LocalPartial, and every intermediate the
// protocol produces is predictable. That is what makes exhaustive
// inline conformance checking possible.
package scan

import (
	"context"
	"fmt"
)

const (
	// LocalPartial is the fixed per-partition contribution.
	LocalPartial uint32 = 1024

	// SplitLanes is the number of lanes per workgroup that publish and
	// traverse table slots. The rest of the workgroup is padding.
	SplitLanes = 2

	// MaxPartitions bounds a run's partition count (table indices must
	// stay joinable from two 16-bit halves).
	MaxPartitions = 65535

	// MaxBatches bounds the number of runs in one invocation.
	MaxBatches = 1023
)

// Diagnostic codes written by the in-kernel conformance checker.
const (
	// ErrNone marks a clean diagnostics entry.
	ErrNone uint32 = 0
	// ErrMessage: a loaded table word matched none of the valid state
	// patterns; the publish or the observation was corrupted.
	ErrMessage uint32 = 1
	// ErrShuffle: a post-join accumulated value missed its closed-form
	// expectation; the lane exchange ran with diverged lanes.
	ErrShuffle uint32 = 2
	// ErrWidth: the hardware subgroup width cannot host both split
	// lanes; fatal for the invocation, recorded once.
	ErrWidth uint32 = 3
)

// Params configures a single dispatch.
type Params struct {
	// Partitions is the number of workgroups dispatched, one partition
	// each. Must be in [1, MaxPartitions].
	Partitions uint32
}

// Validate checks the dispatch bounds.
func (p Params) Validate() error {
	if p.Partitions == 0 || p.Partitions > MaxPartitions {
		return fmt.Errorf("scan: partition count %d out of range [1, %d]", p.Partitions, MaxPartitions)
	}
	return nil
}

// TableWords returns the status-table length in 32-bit words.
func (p Params) TableWords() int { return int(p.Partitions) * SplitLanes }

// DiagWords returns the diagnostics-buffer length in 32-bit words:
// (kind, offending value) per partition per split lane.
func (p Params) DiagWords() int { return int(p.Partitions) * SplitLanes * 2 }

// RunStatus is the substrate's execution signal for one dispatch.
type RunStatus int

const (
	// RunSuccess: the dispatch retired normally.
	RunSuccess RunStatus = iota
	// RunTimeout: the watchdog cut the dispatch off; slots may be left
	// in any already-published state.
	RunTimeout
	// RunDeviceError: the substrate itself failed.
	RunDeviceError
)

func (s RunStatus) String() string {
	switch s {
	case RunSuccess:
		return "success"
	case RunTimeout:
		return "timeout"
	case RunDeviceError:
		return "device-error"
	default:
		return fmt.Sprintf("RunStatus(%d)", int(s))
	}
}

// RunResult is the host-visible readback of one dispatch.
type RunResult struct {
	// Table is the status table, two words per partition.
	Table []uint32
	// Diag is the diagnostics buffer, two words per partition per
	// split lane: (kind, offending value).
	Diag []uint32
	// Claims, when the substrate records it, counts how many
	// workgroups claimed each partition index. nil otherwise.
	Claims []uint32
	// Status is the substrate's execution signal.
	Status RunStatus
}

// Device is an execution substrate capable of running the protocol:
// it resets the shared buffers, dispatches one workgroup per
// partition, and reads the table and diagnostics back.
type Device interface {
	// Run executes one full reset+dispatch+readback cycle. The context
	// deadline acts as the watchdog: on expiry the dispatch is cut off
	// and the result reports RunTimeout. Run returns an error only for
	// substrate failures, never for protocol violations; those are
	// data, delivered through the result buffers.
	Run(ctx context.Context, params Params) (*RunResult, error)

	// Name identifies the substrate.
	Name() string

	// Release frees substrate resources.
	Release()
}

// ExpectedInclusive returns the only valid final value for partition p.
func ExpectedInclusive(p uint32) uint32 {
	return (p + 1) * LocalPartial
}
