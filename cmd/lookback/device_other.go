//go:build !windows

package main

import (
	"fmt"

	"github.com/lookback-dev/lookback/scan"
)

// newDevice creates the requested execution substrate. The webgpu
// substrate is gated to platforms the wgpu bindings ship for.
func newDevice(name string, width, workers int) (scan.Device, error) {
	switch name {
	case "sim":
		return newSimDevice(width, workers), nil
	case "webgpu":
		return nil, fmt.Errorf("backend %q is not available on this platform; use sim", name)
	default:
		return nil, fmt.Errorf("unknown backend %q (want sim or webgpu)", name)
	}
}
