//go:build windows

// Package webgpu implements the execution substrate on real GPU
// hardware through WebGPU. Uses go-webgpu (github.com/go-webgpu/webgpu)
// for zero-CGO WebGPU bindings; the protocol runs as WGSL compute
// kernels with hardware subgroups.
package webgpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/lookback-dev/lookback/internal/scan"
)

// Device is the WebGPU substrate.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	initPipe   *wgpu.ComputePipeline
	stressPipe *wgpu.ComputePipeline

	adapterInfo *wgpu.AdapterInfo

	mu   sync.Mutex
	bufs *buffers
}

// buffers holds the device-resident run state, reused across batches
// and recreated only when the partition count changes.
type buffers struct {
	partitions uint32

	info    *wgpu.Buffer // run parameter block: {size}
	bump    *wgpu.Buffer // partition index allocator
	table   *wgpu.Buffer // status table, 2 words per partition
	diag    *wgpu.Buffer // diagnostics, 4 words per partition
	staging *wgpu.Buffer // readback, sized for the larger of table/diag

	initBind   *wgpu.BindGroup
	stressBind *wgpu.BindGroup
}

// New creates a WebGPU device and compiles both kernels.
// Returns an error if no compatible GPU is available.
func New() (dev *Device, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}
	adapterInfo := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	d := &Device{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: &adapterInfo,
	}
	d.initPipe = d.device.CreateComputePipelineSimple(nil, d.device.CreateShaderModuleWGSL(initShader), "main")
	d.stressPipe = d.device.CreateComputePipelineSimple(nil, d.device.CreateShaderModuleWGSL(stressShader), "main")

	return d, nil
}

// IsAvailable checks whether a WebGPU adapter can be acquired.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// Name identifies the substrate and its adapter.
func (d *Device) Name() string {
	if d.adapterInfo != nil {
		return fmt.Sprintf("webgpu (%s %s)", d.adapterInfo.Name, d.adapterInfo.VendorName)
	}
	return "webgpu"
}

// AdapterInfo returns information about the GPU adapter.
func (d *Device) AdapterInfo() *wgpu.AdapterInfo {
	return d.adapterInfo
}

// Release frees all WebGPU resources.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.releaseBuffers()
	if d.initPipe != nil {
		d.initPipe.Release()
		d.initPipe = nil
	}
	if d.stressPipe != nil {
		d.stressPipe.Release()
		d.stressPipe = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

func (d *Device) releaseBuffers() {
	if d.bufs == nil {
		return
	}
	for _, b := range []*wgpu.Buffer{d.bufs.info, d.bufs.bump, d.bufs.table, d.bufs.diag, d.bufs.staging} {
		if b != nil {
			b.Release()
		}
	}
	if d.bufs.initBind != nil {
		d.bufs.initBind.Release()
	}
	if d.bufs.stressBind != nil {
		d.bufs.stressBind.Release()
	}
	d.bufs = nil
}

// Run executes one reset+dispatch+readback cycle on the GPU.
func (d *Device) Run(ctx context.Context, params scan.Params) (*scan.RunResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bufs == nil || d.bufs.partitions != params.Partitions {
		d.releaseBuffers()
		if err := d.createBuffers(params); err != nil {
			return nil, err
		}
	}

	// One submission: reset pass, then the stress dispatch. The GPU's
	// own watchdog is the only way a runaway spin ends; a device loss
	// surfaces as a readback error.
	encoder := d.device.CreateCommandEncoder(nil)

	initPass := encoder.BeginComputePass(nil)
	initPass.SetPipeline(d.initPipe)
	initPass.SetBindGroup(0, d.bufs.initBind, nil)
	initPass.DispatchWorkgroups(initWorkgroups, 1, 1)
	initPass.End()

	stressPass := encoder.BeginComputePass(nil)
	stressPass.SetPipeline(d.stressPipe)
	stressPass.SetBindGroup(0, d.bufs.stressBind, nil)
	stressPass.DispatchWorkgroups(params.Partitions, 1, 1)
	stressPass.End()

	d.queue.Submit(encoder.Finish(nil))

	table, err := d.readBuffer(d.bufs.table, uint64(params.TableWords())*4)
	if err != nil {
		return d.failedResult(ctx, params), nil
	}
	diag, err := d.readBuffer(d.bufs.diag, uint64(params.DiagWords())*4)
	if err != nil {
		return d.failedResult(ctx, params), nil
	}

	return &scan.RunResult{
		Table:  wordsOf(table),
		Diag:   wordsOf(diag),
		Status: scan.RunSuccess,
	}, nil
}

// failedResult maps a readback failure to the substrate's execution
// signal: a blown context deadline reads as the watchdog, anything
// else as a device error.
func (d *Device) failedResult(ctx context.Context, params scan.Params) *scan.RunResult {
	status := scan.RunDeviceError
	if ctx.Err() != nil {
		status = scan.RunTimeout
	}
	return &scan.RunResult{
		Table:  make([]uint32, params.TableWords()),
		Diag:   make([]uint32, params.DiagWords()),
		Status: status,
	}
}

// createBuffers allocates the run state for a partition count and
// binds it to both pipelines.
func (d *Device) createBuffers(params scan.Params) error {
	tableSize := uint64(params.TableWords()) * 4
	diagSize := uint64(params.DiagWords()) * 4

	info := make([]byte, 16) // uniform buffers want 16-byte alignment
	binary.LittleEndian.PutUint32(info[0:4], params.Partitions)

	b := &buffers{partitions: params.Partitions}
	b.info = d.createInitializedBuffer(info, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	b.bump = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage,
		Size:  4,
	})
	b.table = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:  tableSize,
	})
	b.diag = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:  diagSize,
	})
	b.staging = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  diagSize, // >= tableSize
	})

	entries := func(pipe *wgpu.ComputePipeline) *wgpu.BindGroup {
		return d.device.CreateBindGroupSimple(pipe.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
			wgpu.BufferBindingEntry(0, b.info, 0, 16),
			wgpu.BufferBindingEntry(1, b.bump, 0, 4),
			wgpu.BufferBindingEntry(2, b.table, 0, tableSize),
			wgpu.BufferBindingEntry(3, b.diag, 0, diagSize),
		})
	}
	b.initBind = entries(d.initPipe)
	b.stressBind = entries(d.stressPipe)

	d.bufs = b
	return nil
}

// createInitializedBuffer uploads initial data through a mapped-at-
// creation buffer.
func (d *Device) createInitializedBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies a storage buffer back to host memory through the
// staging buffer.
func (d *Device) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, d.bufs.staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := d.bufs.staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}
	mappedPtr := d.bufs.staging.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	out := make([]byte, size)
	copy(out, mappedSlice)
	d.bufs.staging.Unmap()

	return out, nil
}

// wordsOf reinterprets little-endian bytes as 32-bit words.
func wordsOf(data []byte) []uint32 {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words
}
