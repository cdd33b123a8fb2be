// Package sys provides methods to read system information (CPU count) and to
// clamp GOMAXPROCS for a host process. The engines do not import it; the
// ExStack2 send and proceed poll paths yield via runtime.Gosched on every
// iteration regardless of CPU count.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"os"
	"runtime"

	"github.com/ais-hpc/exstack/cmn/nlog"
)

const maxProcsEnvVar = "GOMAXPROCS"

var ncpu = runtime.NumCPU()

func NumCPU() int { return ncpu }

// SetMaxProcs lowers GOMAXPROCS to NumCPU when it is higher, unless it is
// set via the Go environment; it never raises GOMAXPROCS.
func SetMaxProcs() {
	if val, exists := os.LookupEnv(maxProcsEnvVar); exists {
		nlog.Warningf("GOMAXPROCS is set via Go environment %q: %q", maxProcsEnvVar, val)
		return
	}
	maxprocs := runtime.GOMAXPROCS(0)
	if n := NumCPU(); maxprocs > n {
		nlog.Warningf("Reducing GOMAXPROCS (%d) to %d (num CPUs)", maxprocs, n)
		runtime.GOMAXPROCS(n)
	}
}
