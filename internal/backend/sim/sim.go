// Package sim implements the goroutine-based execution substrate.
//
// A dispatch runs one workgroup per partition. Each launched workgroup
// spawns one goroutine per lane; lanes synchronize on a workgroup
// barrier and the two split lanes share a rendezvous pair providing
// ballot and lane exchange. Launches flow through a bounded worker
// pool, which preserves the forward-progress guarantee the protocol
// depends on: partition indices are claimed in launch order, a resident
// workgroup only ever waits on lower indices, and every lower index is
// either retired or resident and preemptively scheduled by the Go
// runtime.
//
// Shared state is exactly the protocol's buffer layout: the bump
// counter, the two-word-per-partition status table, and the
// diagnostics buffer, touched only through 32-bit atomic operations.
package sim

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/lookback-dev/lookback/internal/scan"
	"github.com/lookback-dev/lookback/internal/subgroup"
)

// DefaultWidth is the modeled subgroup width. Only the two split lanes
// participate in the protocol; the rest are padding, as on hardware.
const DefaultWidth = 32

// initStride mirrors the reset kernel's dispatch shape: the zero-fill
// pass is striped across a fixed number of workers.
const initStride = 256

// arena is the shared memory a dispatch operates on. It persists
// across runs on one Device and is re-zeroed by the init pass, the way
// the device-resident buffers are reused between batches.
type arena struct {
	info   []uint32 // run parameter block: {partition count}
	bump   []uint32 // partition index allocator, 1 word
	table  []uint32 // status table, 2 words per partition
	diag   []uint32 // diagnostics, (kind, value) per partition per split lane
	claims []uint32 // claim counters, 1 word per partition
}

func newArena(params scan.Params) *arena {
	return &arena{
		info:   []uint32{params.Partitions},
		bump:   make([]uint32, 1),
		table:  make([]uint32, params.TableWords()),
		diag:   make([]uint32, params.DiagWords()),
		claims: make([]uint32, params.Partitions),
	}
}

// workgroup is the per-launch shared state of one group of lanes.
type workgroup struct {
	barrier   *subgroup.Barrier
	pair      *subgroup.Pair
	broadcast uint32 // claimed partition index, written by lane 0
}

// Device is the simulated substrate.
type Device struct {
	width   int
	workers int
	stall   int64 // partition stalled after its Ready publish; -1 for none

	mu  sync.Mutex
	mem *arena
}

// Option configures a Device.
type Option func(*Device)

// WithWidth sets the modeled subgroup width. Widths below the split
// lane count trip the kernel's configuration check, which is the point
// of allowing them.
func WithWidth(lanes int) Option {
	return func(d *Device) { d.width = lanes }
}

// WithWorkers bounds how many workgroups execute concurrently.
func WithWorkers(n int) Option {
	return func(d *Device) { d.workers = n }
}

// WithStallPartition injects a fault: the workgroup that claims the
// given partition publishes Ready and then halts until the watchdog
// fires. Runs with a stall injected need a context deadline.
func WithStallPartition(partition uint32) Option {
	return func(d *Device) { d.stall = int64(partition) }
}

// New creates a simulated device.
func New(opts ...Option) *Device {
	d := &Device{
		width:   DefaultWidth,
		workers: runtime.GOMAXPROCS(0),
		stall:   -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.width < 1 {
		d.width = 1
	}
	if d.workers < 1 {
		d.workers = 1
	}
	return d
}

// Name identifies the substrate.
func (d *Device) Name() string { return "sim" }

// Release frees substrate resources. The sim holds none beyond its
// arena, which the garbage collector handles.
func (d *Device) Release() {}

// Run executes one reset+dispatch+readback cycle.
func (d *Device) Run(ctx context.Context, params scan.Params) (*scan.RunResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mem == nil || len(d.mem.table) != params.TableWords() {
		d.mem = newArena(params)
	}
	d.initPass(d.mem, params)

	cancel := ctx.Done()
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup

launch:
	for g := uint32(0); g < params.Partitions; g++ {
		select {
		case sem <- struct{}{}:
		case <-cancel:
			// Remaining workgroups are never scheduled; their slots
			// stay NotReady.
			break launch
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			d.runWorkgroup(d.mem, cancel)
		}()
	}
	wg.Wait()

	status := scan.RunSuccess
	if ctx.Err() != nil {
		status = scan.RunTimeout
	}
	return d.readback(d.mem, params, status), nil
}

// initPass zeroes the shared buffers, striped across the worker pool
// the way the reset kernel stripes across workgroups.
func (d *Device) initPass(a *arena, params scan.Params) {
	atomic.StoreUint32(&a.info[0], params.Partitions)
	atomic.StoreUint32(&a.bump[0], 0)

	var wg sync.WaitGroup
	for offset := 0; offset < initStride; offset++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := offset; i < len(a.table); i += initStride {
				atomic.StoreUint32(&a.table[i], 0)
			}
			for i := offset; i < len(a.diag); i += initStride {
				atomic.StoreUint32(&a.diag[i], 0)
			}
			for i := offset; i < len(a.claims); i += initStride {
				atomic.StoreUint32(&a.claims[i], 0)
			}
		}(offset)
	}
	wg.Wait()
}

// runWorkgroup launches the lanes of one workgroup and waits for them
// to retire.
func (d *Device) runWorkgroup(a *arena, cancel <-chan struct{}) {
	g := &workgroup{
		barrier: subgroup.NewBarrier(d.width),
		pair:    subgroup.NewPair(),
	}
	var wg sync.WaitGroup
	for lane := 0; lane < d.width; lane++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			d.kernel(a, g, lane, cancel)
		}(lane)
	}
	wg.Wait()
}

// readback snapshots the shared buffers into a host-visible result.
func (d *Device) readback(a *arena, params scan.Params, status scan.RunStatus) *scan.RunResult {
	res := &scan.RunResult{
		Table:  make([]uint32, params.TableWords()),
		Diag:   make([]uint32, params.DiagWords()),
		Claims: make([]uint32, params.Partitions),
		Status: status,
	}
	for i := range res.Table {
		res.Table[i] = atomic.LoadUint32(&a.table[i])
	}
	for i := range res.Diag {
		res.Diag[i] = atomic.LoadUint32(&a.diag[i])
	}
	for i := range res.Claims {
		res.Claims[i] = atomic.LoadUint32(&a.claims[i])
	}
	return res
}
