//go:build !mono

// Package mono provides low-level monotonic time, used to timestamp log
// lines.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

// NanoTime is the portable fallback for the //go:linkname fast path built
// with the "mono" tag: it needs no runtime linkname trick, but it returns
// wall-clock nanoseconds since the Unix epoch, which are not monotonic and
// follow any adjustment of the system clock.
func NanoTime() int64 { return time.Now().UnixNano() }
