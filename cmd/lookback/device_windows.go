//go:build windows

package main

import (
	"fmt"

	"github.com/lookback-dev/lookback/backend/webgpu"
	"github.com/lookback-dev/lookback/scan"
)

// newDevice creates the requested execution substrate.
func newDevice(name string, width, workers int) (scan.Device, error) {
	switch name {
	case "sim":
		return newSimDevice(width, workers), nil
	case "webgpu":
		return webgpu.New()
	default:
		return nil, fmt.Errorf("unknown backend %q (want sim or webgpu)", name)
	}
}
