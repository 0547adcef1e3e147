// Package harness drives repeated protocol runs against a substrate
// and aggregates validation outcomes. It owns all host-side reporting;
// the kernels only ever write diagnostics words.
package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/lookback-dev/lookback/internal/scan"
	"github.com/lookback-dev/lookback/internal/slot"
)

// Config parameterizes a batch of runs.
type Config struct {
	// Partitions per run, in [1, scan.MaxPartitions].
	Partitions uint32
	// Batches is the number of independent runs, in [1, scan.MaxBatches].
	Batches uint32
	// Watchdog bounds each run; zero means no deadline.
	Watchdog time.Duration
	// PrintTable dumps the joined table (in units of the local
	// partial) after each run.
	PrintTable bool
}

// Validate checks the batch bounds.
func (c Config) Validate() error {
	if err := (scan.Params{Partitions: c.Partitions}).Validate(); err != nil {
		return err
	}
	if c.Batches == 0 || c.Batches > scan.MaxBatches {
		return fmt.Errorf("harness: batch count %d out of range [1, %d]", c.Batches, scan.MaxBatches)
	}
	return nil
}

// Summary aggregates a batch.
type Summary struct {
	Passed  uint32
	Failed  uint32
	Reports []*scan.Report // reports of failed runs only
}

// String renders the batch verdict in the suite's classic format.
func (s Summary) String() string {
	total := s.Passed + s.Failed
	if s.Failed == 0 {
		return fmt.Sprintf("%d / %d ALL TESTS PASSED", s.Passed, total)
	}
	return fmt.Sprintf("%d / %d TEST FAILED", s.Passed, total)
}

// Runner executes batches against one substrate.
type Runner struct {
	device scan.Device
	logger log.Logger
	cfg    Config
}

// New creates a Runner. A nil logger discards everything.
func New(device scan.Device, logger log.Logger, cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runner{device: device, logger: logger, cfg: cfg}, nil
}

// Run executes the configured batch. It stops early only when the
// parent context is cancelled or the substrate itself errors; a failed
// run is counted and the next run starts from a full reset.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	params := scan.Params{Partitions: r.cfg.Partitions}
	var summary Summary

	for batch := uint32(0); batch < r.cfg.Batches; batch++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		runCtx := ctx
		cancel := func() {}
		if r.cfg.Watchdog > 0 {
			runCtx, cancel = context.WithTimeout(ctx, r.cfg.Watchdog)
		}
		res, err := r.device.Run(runCtx, params)
		cancel()
		if err != nil {
			return summary, fmt.Errorf("harness: run %d: %w", batch, err)
		}

		report := scan.Validate(res, params)
		if report.Passed() {
			summary.Passed++
			level.Debug(r.logger).Log("msg", "run passed", "batch", batch)
		} else {
			summary.Failed++
			summary.Reports = append(summary.Reports, report)
			r.logFailure(batch, report)
		}

		if r.cfg.PrintTable {
			level.Info(r.logger).Log("msg", "table", "batch", batch, "values", TableString(res.Table, 10))
		}
	}

	return summary, nil
}

// logFailure reports one failed run in full detail.
func (r *Runner) logFailure(batch uint32, report *scan.Report) {
	level.Error(r.logger).Log(
		"msg", "run failed",
		"batch", batch,
		"status", report.Status,
		"detail", report.Summary(),
		"liveness", report.LivenessFailure(),
	)
	for _, v := range report.Violations {
		level.Error(r.logger).Log("msg", "violation", "batch", batch, "detail", v.String())
	}
	for _, f := range report.Failures {
		level.Error(r.logger).Log("msg", "bad slot", "batch", batch, "detail", f.String())
	}
}

// TableString renders the joined table values divided by the local
// partial, perLine entries per line. A conforming table of G
// partitions reads 1..G.
func TableString(table []uint32, perLine int) string {
	var b strings.Builder
	for i := 0; i*2+1 < len(table); i++ {
		joined := slot.Join(table[2*i], table[2*i+1])
		fmt.Fprintf(&b, "%d, ", joined/scan.LocalPartial)
		if (i+1)%perLine == 0 {
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), ", \n")
}
