// Package scan exposes the decoupled-lookback validation suite's core
// types: run parameters, the execution-substrate interface, readback
// results, and validation of a run against the protocol's closed-form
// expected state.
//
// Example:
//
//	import (
//	    "github.com/lookback-dev/lookback/backend/sim"
//	    "github.com/lookback-dev/lookback/scan"
//	)
//
//	func main() {
//	    dev := sim.New()
//	    defer dev.Release()
//
//	    res, err := dev.Run(ctx, scan.Params{Partitions: 4096})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    report := scan.Validate(res, scan.Params{Partitions: 4096})
//	    fmt.Println(report.Summary())
//	}
package scan

import (
	internalscan "github.com/lookback-dev/lookback/internal/scan"
)

// Core protocol constants.
const (
	LocalPartial  = internalscan.LocalPartial
	SplitLanes    = internalscan.SplitLanes
	MaxPartitions = internalscan.MaxPartitions
	MaxBatches    = internalscan.MaxBatches
)

// Params configures a single dispatch.
type Params = internalscan.Params

// Device is an execution substrate capable of running the protocol.
type Device = internalscan.Device

// RunResult is the host-visible readback of one dispatch.
type RunResult = internalscan.RunResult

// RunStatus is the substrate's execution signal.
type RunStatus = internalscan.RunStatus

// Substrate execution signals.
const (
	RunSuccess     = internalscan.RunSuccess
	RunTimeout     = internalscan.RunTimeout
	RunDeviceError = internalscan.RunDeviceError
)

// Report is the validation outcome of one run.
type Report = internalscan.Report

// Validate checks one run's readback against the protocol's testable
// properties and classifies every defect.
func Validate(res *RunResult, params Params) *Report {
	return internalscan.Validate(res, params)
}

// ExpectedInclusive returns the only valid final value for partition p.
func ExpectedInclusive(p uint32) uint32 {
	return internalscan.ExpectedInclusive(p)
}
