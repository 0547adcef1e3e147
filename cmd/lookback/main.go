// Package main provides the lookback CLI: it dispatches the
// decoupled-lookback scan protocol repeatedly on a chosen execution
// substrate and reports how many runs conformed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	flag "github.com/spf13/pflag"

	"github.com/lookback-dev/lookback/backend/sim"
	"github.com/lookback-dev/lookback/internal/harness"
	"github.com/lookback-dev/lookback/scan"
)

// newSimDevice builds the default substrate from the CLI's sim flags.
func newSimDevice(width, workers int) *sim.Device {
	var opts []sim.Option
	if width > 0 {
		opts = append(opts, sim.WithWidth(width))
	}
	if workers > 0 {
		opts = append(opts, sim.WithWorkers(workers))
	}
	return sim.New(opts...)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flagSet := flag.NewFlagSet("lookback", flag.ContinueOnError)
	backendName := flagSet.String("backend", "sim", "execution substrate: sim or webgpu")
	width := flagSet.Int("width", 0, "sim only: modeled subgroup width (0 = default)")
	workers := flagSet.Int("workers", 0, "sim only: concurrent workgroups (0 = GOMAXPROCS)")
	watchdog := flagSet.Duration("watchdog", 10*time.Second, "per-run watchdog deadline (0 = none)")
	printTable := flagSet.Bool("print", false, "dump the joined table after each run")
	verbose := flagSet.Bool("verbose", false, "log passing runs too")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lookback [flags] <test size> <number of tests to run>\n\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if flagSet.NArg() != 2 {
		flagSet.Usage()
		return 2
	}

	size, ok := parseBounded(flagSet.Arg(0), scan.MaxPartitions)
	if !ok {
		fmt.Fprintf(os.Stderr, "Expected an integer no greater than %d for maximum test size.\n", scan.MaxPartitions)
		return 2
	}
	batches, ok := parseBounded(flagSet.Arg(1), scan.MaxBatches)
	if !ok {
		fmt.Fprintf(os.Stderr, "Expected an integer no greater than %d for number of tests to run.\n", scan.MaxBatches)
		return 2
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if !*verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	device, err := newDevice(*backendName, *width, *workers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer device.Release()
	level.Info(logger).Log("msg", "substrate ready", "name", device.Name())

	runner, err := harness.New(device, logger, harness.Config{
		Partitions: size,
		Batches:    batches,
		Watchdog:   *watchdog,
		PrintTable: *printTable,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Println(summary.String())
	if summary.Failed > 0 {
		return 1
	}
	return 0
}

// parseBounded parses a strict non-negative integer no greater than max.
func parseBounded(s string, max uint32) (uint32, bool) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || uint32(v) > max || v == 0 {
		return 0, false
	}
	return uint32(v), true
}
