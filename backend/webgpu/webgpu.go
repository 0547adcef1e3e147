//go:build windows

// Package webgpu provides the real-GPU execution substrate via WebGPU.
//
// The protocol runs as WGSL compute kernels using hardware subgroups;
// this package handles device acquisition, kernel compilation, buffer
// management, and readback.
//
// Example:
//
//	if webgpu.IsAvailable() {
//	    dev, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer dev.Release()
//	    res, _ := dev.Run(ctx, scan.Params{Partitions: 4096})
//	}
package webgpu

import (
	internalwebgpu "github.com/lookback-dev/lookback/internal/backend/webgpu"
	"github.com/lookback-dev/lookback/scan"
)

// Device is the WebGPU execution substrate.
type Device = internalwebgpu.Device

// Compile-time check that Device implements scan.Device.
var _ scan.Device = (*Device)(nil)

// New creates a WebGPU device and compiles the protocol kernels.
// Returns an error if no compatible GPU is available.
func New() (*Device, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
// Useful for graceful fallback to the sim substrate.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
