// Package sim provides the goroutine-based execution substrate: the
// protocol runs as Go code, with workgroups, subgroup ballot/shuffle,
// barriers, and relaxed 32-bit atomics modeled on the Go runtime.
//
// It is the default substrate, works everywhere, and supports fault
// injection (stalled partitions, narrowed widths) for exercising the
// liveness and configuration failure paths.
package sim

import (
	internalsim "github.com/lookback-dev/lookback/internal/backend/sim"
	"github.com/lookback-dev/lookback/scan"
)

// Device is the simulated execution substrate.
type Device = internalsim.Device

// Option configures a Device.
type Option = internalsim.Option

// Compile-time check that Device implements scan.Device.
var _ scan.Device = (*Device)(nil)

// New creates a simulated device.
func New(opts ...Option) *Device {
	return internalsim.New(opts...)
}

// WithWidth sets the modeled subgroup width.
func WithWidth(lanes int) Option {
	return internalsim.WithWidth(lanes)
}

// WithWorkers bounds how many workgroups execute concurrently.
func WithWorkers(n int) Option {
	return internalsim.WithWorkers(n)
}

// WithStallPartition injects a stall fault into the workgroup that
// claims the given partition: it publishes Ready and never runs its
// lookback. Runs with a stall injected need a context deadline.
func WithStallPartition(partition uint32) Option {
	return internalsim.WithStallPartition(partition)
}
